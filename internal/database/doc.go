// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库打开与连接池管理，供 SQL 报告 sink 使用。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 与底层 sql.DB，
    提供 DB()、SQL()、Ping()、Stats()、Close() 与事务方法；迁移复用 SQL()。
  - PoolConfig：连接池配置，Validate 校验连接数约束。
  - Driver / Open：按驱动名（postgres、mysql、sqlite）打开数据库，
    sqlite 使用纯 Go 的 glebarez/sqlite。

# 主要能力

  - 可选的后台健康检查，Close 时同步停止。
  - WithTransactionRetry 对死锁、序列化失败、sqlite 锁、断连等错误做指数退避重试，
    首次退避由 PoolConfig.RetryBackoff 决定。
*/
package database
