// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 capability 提供 crews.Capability 的两种实现。

  - Replay: 按 task id 回放预先录制的 fixture，无需任何后端即可运行场景，
    支持延迟、瞬时失败次数与固定错误。
  - HTTPCapability: 调用被测助手后端，每个请求签发短期 HS256 JWT，
    使用 tlsutil 的加固 TLS 配置并注入 trace 上下文。
    429 / 5xx 映射为可重试错误，其余 4xx 为永久失败。
*/
package capability
