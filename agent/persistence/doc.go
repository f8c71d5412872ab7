// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供运行报告 (run report) 的只追加 (append-only) 存储抽象及多后端实现。

# 概述

每次 crew 运行结束后生成一份报告，以 run id 为键写入 sink。
同一个键只能写入一次，重复写入返回 ErrAlreadyExists，
已写入的报告永远不会被覆盖或修改。

# 核心接口

  - Sink: Open / Ping / Close，Open 返回一次性的 ReportWriter。
  - ReportWriter: Write 写入完整报告，Close 释放资源（失败后调用也安全）。
  - ReportReader: Load 按键读取，List 按创建时间倒序列出。
  - ReportStore: Sink 与 ReportReader 的组合。

# 后端实现

  - Memory: 内存实现，适合测试与 dry run。
  - File: 每次运行一个 JSON 文件，临时文件 + fsync + rename 原子写入。
  - Redis: SETNX 写入正文，Sorted Set 作为时间索引。
  - Database: 基于 gorm，支持 postgres / mysql / sqlite，表结构由 internal/migration 管理。
  - Mongo: 每次运行一个文档，_id 即 run id。

# 使用方式

	store, err := persistence.NewReportStore(ctx, cfg, logger)
	w, err := store.Open(ctx, runID)
	defer w.Close()
	err = w.Write(ctx, payload)

写入失败时按 RetryConfig 做指数退避重试，由 reporting 包负责。
*/
package persistence
