// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 crewcheck 运维 HTTP 服务器的生命周期管理。

# 概述

Manager 封装 net/http.Server，在场景运行期间（尤其是 `run --watch`）
暴露 Prometheus 指标与健康检查。NewOpsHandler 组装路由：

  - /metrics：promhttp 导出 internal/metrics 注册的指标。
  - /healthz：依次探测报告落地等依赖，任一失败返回 503。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务，Addr 返回实际监听地址。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空，可重复调用。
  - 错误传播：Errors() 返回异步错误通道。
*/
package server
