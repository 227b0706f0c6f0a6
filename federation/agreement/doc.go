/*
包 agreement 实现联邦协议的生命周期状态机。

	PENDING ──approve──▶ ACTIVE ──suspend──▶ SUSPENDED
	                       ▲                    │
	                       └────reactivate──────┘
	ACTIVE | SUSPENDED ──revoke──▶ REVOKED（终态）

每次迁移都是一条带期望源状态的条件更新，并发竞争中失败的一方得到
CONFLICT，不会静默覆盖。首次进入 ACTIVE 时在同一事务内创建 Exposure
并封存通道密钥；reactivate 只更新治理参数，不重新生成通道密钥。

迁移成功后通过 audit.Sink 上报审计条目，审计失败只记录日志。
*/
package agreement
