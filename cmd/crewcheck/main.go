// =============================================================================
// crewcheck 主入口
// =============================================================================
// 场景验收命令行：加载场景文件，运行 crew，评估并持久化报告
//
// 使用方法:
//
//	crewcheck run -f examples/scenarios/expenses.yaml   # 运行场景
//	crewcheck run -f all.yaml --crew expenses --verbose  # 只运行一个 crew
//	crewcheck run -f expenses.yaml --watch               # 文件变更后重新运行
//	crewcheck validate -f all.yaml                      # 只校验，不执行
//	crewcheck reports list                              # 列出已保存的报告
//	crewcheck reports show <run id>                     # 打印一份报告
//	crewcheck migrate up                                # 运行数据库迁移
//	crewcheck version                                   # 显示版本信息
// =============================================================================

package main

import (
	"fmt"
	"os"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}
