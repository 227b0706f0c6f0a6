// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 agentfed 测试的共享工具和辅助函数。

# 概述

testutil 为各包的单元测试提供统一的辅助能力，避免重复实现
数据库准备、日志捕获与异步断言等基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 数据库: NewSQLitePool 在临时目录创建 SQLite 文件，执行嵌入式迁移后
    返回 database.PoolManager，测试结束自动关闭
  - 日志: NewObservedLogger 返回 zap 观察者，用于断言日志字段
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue / AssertEventuallyEqual
  - 数据工具: MustJSON / MustParseJSON / Ptr

# 使用示例

	ctx := testutil.TestContext(t)
	pm := testutil.NewSQLitePool(t)
	st := store.New(pm, zap.NewNop())
*/
package testutil
