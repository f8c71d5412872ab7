// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理数据库报告落地（run_reports 表）的 Schema 版本，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌。迁移器复用 internal/database
打开的连接（SQLite 为纯 Go 驱动），因此 `crewcheck migrate` 与
数据库 sink 使用同一套驱动与 DSN。

# 核心类型

  - Migrator / DefaultMigrator：Up/Down/Steps/Force/Version/Status/Info/Close。
  - Config：方言、已打开的 *sql.DB、迁移表名与锁超时。
  - CLI / Action：按 Op（up、down、steps、force、status）执行并输出迁移结果与状态表。
  - Open：按驱动名与 DSN 建立连接并返回迁移器。
*/
package migration
