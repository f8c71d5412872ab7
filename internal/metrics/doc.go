// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的 crew 运行指标采集能力，覆盖
任务执行、判定结果、运行耗时、报告持久化与数据库连接五个维度。

# 核心类型

  - Collector：指标收集器，同时实现 crews.Observer 与
    reporting.PersistObserver，可直接挂到编排器和报告器上。

# 主要能力

  - 任务指标：按 crew_id/agent_id/result 统计执行次数、耗时与重试次数，
    result 为 ok 或小写错误码（timeout、capability_failure 等）。
  - 判定指标：按 crew_id/status 统计 pass/fail/inconclusive/error。
  - 运行指标：运行次数（区分 partial）与整体耗时。
  - 持久化指标：报告写入结果计数与耗时（含重试）。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
