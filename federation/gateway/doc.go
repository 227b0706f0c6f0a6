/*
包 gateway 实现对外暴露的联邦 RPC 网关（POST /a2a）。

请求信封为 {jsonrpc: "2.0", id, method, params}，也接受以 protocolVersion
携带版本号的信封，响应沿用请求使用的字段名。处理顺序：

 1. Bearer 凭证解析，失败返回 -32000，id 为 null，此时不解析请求体
 2. 按 key:<keyId> 限流，超限返回 HTTP 429 与 Retry-After
 3. 信封校验（-32600），按方法解析为具体调用（-32601 / -32602）
 4. tasks/send：解析目标组织与 Agent，查找 ACTIVE 协议与 Exposure，
    策略评估，调用目标 Agent，加密签名落库，上报审计

应用层错误统一为 -32000；未预期的内部错误为 -32603，细节只写日志。
请求上下文已取消时不写消息也不写响应。
*/
package gateway
