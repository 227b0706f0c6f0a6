// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 federation 定义跨租户智能体联邦协议的共享领域模型。

# 概述

一个组织的智能体在双边信任协议（Agreement）约束下调用另一个组织的智能体。
消息内容端到端加密并签名，每次交换都经过治理策略评估并写入只追加的消息日志。

# 核心模型

  - Agreement / Governance：双边协议及其治理参数，状态机 PENDING → ACTIVE ⇄ SUSPENDED → REVOKED
  - Exposure：协议下某一方对伙伴开放的 Agent 及技能集合
  - Message：一次交换的日志行，内容为密文，携带签名、策略结论与用量
  - Classification：数据分级 public < internal < confidential < restricted

# 子包

  - channel：AEAD 加解密、主密钥 Vault、协议通道密钥缓存
  - signing：Ed25519 签名与按版本解析的公钥
  - policy：治理策略引擎
  - ratelimit：调用方固定窗口限流
  - agreement：协议生命周期管理
  - journal：消息日志写入与会话检视
  - gateway：对外 JSON-RPC 网关
  - store：基于 GORM 的持久化
  - auth / audit / invoke：凭证解析、审计落地与 Agent 调用适配
*/
package federation
