// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentfed 各层共享的最小类型集合。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 federation、api、cmd
等上层模块提供统一的错误码与上下文传播契约，避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码与底层 Cause
  - Caller：经凭证解析后的外部调用方（虚拟组织）

# 主要能力

  - Context 传播：WithTraceID / WithCaller / WithRequestID
  - 错误工具链：NewError / AsError / IsErrorCode / GetErrorCode
*/
package types
