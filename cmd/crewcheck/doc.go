// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 crewcheck 命令行入口。

# 概述

cmd/crewcheck 加载场景文件（agents、tasks、crews、fixtures），
通过 replay 或 HTTP capability 执行 crew，评估每个任务并持久化
一份运行报告。配置来自 YAML 文件与 CREWCHECK_* 环境变量。

# 子命令

  - run       — 执行场景，支持 --crew 选择、--verbose、--watch 重跑
  - validate  — 只校验场景，一次性列出全部错误
  - reports   — list / show 已保存的报告
  - migrate   — up / down / steps / force / status（run_reports 表）
  - version   — 版本信息

# 退出码

  - 0 全部通过
  - 1 存在 fail 或 error 判定
  - 2 配置、参数或场景定义无效
  - 3 报告无法持久化

# 运行时

启用 metrics 时在 metrics.addr 上暴露 /metrics 与 /healthz；
启用 telemetry 时通过 OTLP gRPC 导出 trace。构建注入：
Version、BuildTime、GitCommit 通过 ldflags 设置。
*/
package main
