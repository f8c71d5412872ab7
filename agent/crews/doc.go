// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 crews 提供场景团队（Crew）的构建与执行编排。

# 概述

Crew 是一批经过校验的任务规格（TaskSpec）与参与的代理档案（AgentProfile）。
Build 在构建时一次性完成引用完整性校验，并返回全部违规项，而不是只报告第一个；
构建成功后的 Crew 不可变。

# 执行模型

  - Sequential：按声明顺序（存在 DependsOn 时为稳定拓扑序）逐个执行。
  - Concurrent：独立任务并行执行，受 MaxConcurrency 限制；共享同一代理的任务
    通过每代理令牌串行化，保证"每个代理同时只有一个会话"。
  - 单个任务的能力失败不会中止整批任务，而是记录为 error 结果。
  - 运行级超时与取消会传播到所有进行中的调用，未开始的任务同样留下记录，
    从而总能得到尽力而为的部分结果。
  - 可重试（瞬时）失败按指数退避重试，永久失败不重试。

# 与 evaluation 包协同

Orchestrator 只负责执行并产出 TaskRecord，通过/失败判定交给 evaluation 包完成。
*/
package crews
