// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责 agentfed 联邦存储的数据库接入。

Open 按 config.DatabaseConfig 的 driver 字段选择 GORM 方言
（postgres、mysql、sqlite 纯 Go 实现、sqlite3 cgo 实现），
建立连接后交给 PoolManager 托管。federation/store 只通过
PoolManager.DB() 取得 *gorm.DB，不直接持有驱动。

PoolManager 在后台按 PoolConfig.HealthCheckInterval 调用 Ping，
每轮把打开与空闲连接数交给 StatsRecorder（服务端为 Prometheus
Collector）。就绪检查复用同一个 Ping。

WithTransactionRetry 在死锁、序列化失败等可重试错误上按指数退避
重新执行整个事务；其余错误立即返回。
*/
package database
