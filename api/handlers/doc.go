// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供联邦管理面的 HTTP 请求处理器。

# 概述

handlers 包实现协议管理、会话查看、凭证管理与健康检查端点。
所有 Handler 遵循标准 net/http 接口，路由使用 Go 1.22 的方法与路径通配模式，
调用方身份由上游认证中间件写入 context（types.WithCaller）。

# 核心类型

  - AgreementHandler：协议创建、详情、approve/suspend/revoke/reactivate、Exposure 启停、人工审批
  - ConversationHandler：解密并验签后的会话消息与汇总
  - CredentialHandler：API Key 签发与吊销
  - HealthHandler：服务健康检查（/health, /healthz, /ready）
  - Response：统一 JSON 响应结构（success + data + error + timestamp）

# 错误映射

types.Error 的错误码经 types.StatusFor 映射为 HTTP 状态码；
非 types.Error 一律按 500 返回通用消息，细节只写日志。
*/
package handlers
