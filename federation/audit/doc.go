/*
包 audit 定义审计日志协作者接口及其落地实现。

生命周期迁移与联邦调用都会产生 {action, entityId, actorId, before, after}
审计条目。可选落地：zap 日志（默认）、数据库 audit_records 表、MongoDB 集合。
*/
package audit
