/*
包 invoke 定义目标 Agent 调用的协作接口与默认适配器。

  - Invoker: 接收消息与会话 ID，返回回复文本、token 用量与成本
  - HTTPInvoker: 以 JSON POST 调用 Agent 的 endpoint，TLS 设置来自 internal/tlsutil
  - Func: 把普通函数适配为 Invoker
  - Echo: 回显消息，供本地开发与测试使用

调用失败统一包装为 ErrInvocationFailed。
*/
package invoke
