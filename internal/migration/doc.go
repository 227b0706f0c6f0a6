// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 agentfed 的数据库 Schema，支持 PostgreSQL、
MySQL 与 SQLite 三种方言，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中，覆盖组织与 Agent 目录、
联邦协议、暴露、通道密钥、组织签名密钥、消息日志、人工审批、
API 凭证与审计记录等表。

# 核心类型

  - Migrator / DefaultMigrator：Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close。
  - CLI：agentfed migrate 子命令的分发与格式化输出。
  - NewMigratorFromDatabaseConfig / NewMigratorFromURL：从配置或 URL 构造迁移器。

SQLite 连接使用纯 Go 驱动，不依赖 CGO。
*/
package migration
