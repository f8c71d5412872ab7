// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 crewcheck 各层共享的类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 profiles、tasks、crews、
evaluation、reporting 等模块提供统一的数据契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系：注册期错误（DUPLICATE_IDENTITY、
    UNKNOWN_AGENT、CAPABILITY_MISMATCH、CREW_INTEGRITY）、执行期错误
    （CAPABILITY_FAILURE、TIMEOUT、CANCELLED）与报告期错误（PERSISTENCE）
  - Outcome           — 外部能力对单个任务的原始结果（文本、字段、副作用、调用轨迹）
  - SideEffect        — 能力执行产生的副作用记录（如表格追加行、邮件已发送）
  - Invocation        — 能力内部的工具调用轨迹

# 错误工具链

  - GetErrorCode / IsCode / IsRetryable 基于 errors.As，可穿透 %w 包装
  - TransientFailure / PermanentFailure 用于能力实现区分可重试与不可重试失败
*/
package types
