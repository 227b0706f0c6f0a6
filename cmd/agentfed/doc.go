// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 agentfed 服务端程序入口。

# 概述

cmd/agentfed 是跨组织 Agent 联邦服务的可执行入口，提供联邦 RPC 网关、
协议管理接口、数据库迁移、健康检查和版本查询等子命令。

# 核心类型

  - Server：主服务器，装配存储、联邦组件与 HTTP/Metrics 双端口
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、Metrics、
    OTelTracing、CORS、RateLimiter（基于 IP）、BearerAuth（API Key / JWT）
  - POST /a2a 由网关自行认证与限流，管理接口统一经过 BearerAuth
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP 与 Metrics → 释放审计、缓存、数据库与遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
