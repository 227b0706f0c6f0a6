// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的共享状态管理能力。

# 概述

本包封装 go-redis 客户端，为多副本部署的 agentfed 提供跨进程共享的
限流计数。Manager 负责连接生命周期管理，包括初始化、
健康检查与优雅关闭。

# 核心类型

  - Manager：缓存管理器，提供供调用方限流使用的 IncrWindow
    固定窗口计数与 Ping 探活。
  - Config：地址、密码、连接池大小与健康检查间隔。

# 错误语义

  - ErrClosed：Close 之后的任何调用。
*/
package cache
