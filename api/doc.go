// Package api 汇集 agentfed 的 HTTP 管理与查看接口。
//
// # API 概览
//
//   - POST /a2a：联邦 RPC 入口（见 federation/gateway）
//   - /api/v1/federation/agreements：协议创建、详情与状态操作
//   - /api/v1/federation/exposures/{id}：Exposure 启停
//   - /api/v1/federation/agreements/{id}/conversations/{cid}：会话查看
//   - /api/v1/federation/credentials：API Key 签发与吊销
//   - /health, /healthz, /ready, /version：健康检查
//
// # Authentication
//
// 所有接口使用 Bearer 凭证：
//
//	Authorization: Bearer afk_<keyId>_<secret>
//
// 也接受配置了签名密钥的 JWT，claims 中 org_id 为调用方组织。
package api
