// Copyright 2026 AgentFlow Authors
// Use of this source code is governed by the project license.

/*
# 概述

包 declarative 提供基于 YAML/JSON 的声明式场景 (scenario) 定义与加载能力。

场景文件声明 agent、task、crew 以及用于回放的 fixture，
由本包加载并物化为 profiles.Registry、tasks.Store 和已构建的 crews.Crew。

# 核心接口

  - ScenarioLoader — 从文件或字节流加载 ScenarioDefinition，支持自动格式检测与 include
  - ScenarioFactory — 校验定义结构并物化为 Scenario

# 主要类型

  - ScenarioDefinition — 一个场景文件，可 include 其他文件（先合并 include）
  - AgentDefinition / TaskDefinition / CrewDefinition — 对应核心类型的声明
  - FixtureDefinition — 某个 task 的回放结果或错误
  - Duration — 同时支持 YAML 与 JSON 的 "30s" 形式时长

# 典型用法

	loader := declarative.NewYAMLLoader()
	def, err := loader.LoadFile("examples/scenarios/expenses.yaml")

	factory := declarative.NewScenarioFactory(logger)
	scenario, err := factory.Materialize(def)
	crew, _ := scenario.Crew("expenses")

# 设计约束

  - Materialize 一次性收集所有错误（errors.Join），便于 validate 命令一次报告全部问题
  - 存在任何错误时调用方不得执行该场景
  - 未知字段视为错误，避免拼写错误被静默忽略
*/
package declarative
