// Package config 提供 crewcheck 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（CREWCHECK_ 前缀）的顺序叠加，
// 并提供到编排器、评估器、报告落地与 HTTP 能力适配器配置的转换。
// ScenarioWatcher 基于 fsnotify 监听场景文件，供 `crewcheck run --watch` 使用。
package config
