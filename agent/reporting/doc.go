// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 reporting 将一次 crew 运行的 verdict 汇总为 RunReport 并写入日志 sink。

# 汇总

Summarize 统计 pass / fail / inconclusive / error 数量，
总耗时取所有带时间戳 verdict 的 (最大结束时间 - 最小开始时间)，
若没有任何时间戳则退化为各任务耗时之和。

# 持久化

Persist 以 run id 为键打开 sink，序列化为 JSON 后写入，
无论成功失败都会释放 writer。失败按 persistence.RetryConfig 指数退避重试，
最终失败返回 PERSISTENCE 错误，绝不吞掉，且不修改已计算的报告。
*/
package reporting
