// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 crewcheck 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue
  - 数据工具: MustJSON / WriteFile，简化场景文件与测试数据构造

# 子包

  - testutil/fixtures: 五个预置 Agent 档案、Home Depot 与 RONA 记账任务、
    对应的回放夹具与船员
  - testutil/mocks: RecordingCapability（记录调用与并发度）、
    FlakySink（注入持久化故障，可选择先落盘再报错）

# 使用示例

	crew := fixtures.ExpenseCrew(t)
	rec := mocks.NewRecordingCapability(capability.NewReplay(fixtures.ExpenseReplay(), nil))
	report, err := crewcheck.New().Run(testutil.TestContext(t), crew, rec)
*/
package testutil
