/*
包 store 基于 GORM 实现联邦协议的持久化。

表结构由 internal/migration 的嵌入式 SQL 管理，本包只做读写，不调用 AutoMigrate。
协议状态迁移统一为一条带期望源状态的条件更新：

	UPDATE federation_agreements SET status = ? ... WHERE id = ? AND status = ?

受影响行数为 0 时返回 ErrConflict。首次激活在同一事务内写入治理参数、
Exposure 与封装后的通道密钥。消息日志只追加，不提供更新与删除。

Store 同时实现 channel.KeySource、signing.KeyStore、auth.CredentialStore
与 audit.RecordWriter。
*/
package store
