package main

import (
	"fmt"
	"io"

	"github.com/BaSui01/crewcheck/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app is the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger

	stdout io.Writer
	stderr io.Writer
}

// newRootCmd builds the command tree. Output goes to stdout and stderr so
// tests can capture it.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "crewcheck",
		Short: "Scenario acceptance harness for conversational business assistants",
		Long: `crewcheck runs crews of agent tasks against an assistant backend (or
recorded fixtures), checks every outcome against its structured expectations
and stores one report per run.

Exit status: 0 all tasks passed, 1 a task failed or errored,
2 invalid configuration or scenario, 3 a report could not be persisted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file (YAML)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
		newReportsCmd(a),
		newMigrateCmd(a),
		newVersionCmd(a),
	)
	return root
}

// init loads the configuration and builds the logger.
func (a *app) init() error {
	loader := config.NewLoader()
	if a.configPath != "" {
		loader = loader.WithConfigPath(a.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return withExit(exitInvalid, fmt.Errorf("load config: %w", err))
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return withExit(exitInvalid, err)
	}
	a.cfg = cfg
	a.logger = initLogger(cfg.Log)
	return nil
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
