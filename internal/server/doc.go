// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理联邦网关的 HTTP/HTTPS 监听生命周期。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供非阻塞的
    Start/StartTLS、带超时的 Shutdown 以及异步错误通道 Errors()。
  - Config：监听地址、读写与空闲超时、请求头上限、优雅关闭超时，
    以及 MaxConnections 并发连接上限（基于 x/net/netutil）。

# 多服务器协同

agentfed 同时运行 API 端口与 Prometheus 指标端口。ShutdownAll 通过
errgroup 并发关闭多个 Manager；WaitForShutdown 阻塞到收到
SIGINT/SIGTERM 或任一服务器异常退出，随后统一关闭。

StartTLS 使用 tlsutil.ServerTLSConfig 的加固配置（TLS 1.2+，仅 AEAD 套件）。
*/
package server
