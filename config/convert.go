package config

import (
	"github.com/BaSui01/crewcheck/agent/capability"
	"github.com/BaSui01/crewcheck/agent/crews"
	"github.com/BaSui01/crewcheck/agent/evaluation"
	"github.com/BaSui01/crewcheck/agent/persistence"
	"github.com/BaSui01/crewcheck/internal/database"
	"github.com/BaSui01/crewcheck/internal/tlsutil"
)

// =============================================================================
// 🔄 配置转换：把文件/环境配置映射到各组件自己的配置类型
// =============================================================================

// OrchestratorConfig maps the run section onto crews.Config.
func (c *Config) OrchestratorConfig() crews.Config {
	return crews.Config{
		Process:        crews.ProcessType(c.Run.Process),
		MaxConcurrency: c.Run.MaxConcurrency,
		RunTimeout:     c.Run.RunTimeout,
		TaskTimeout:    c.Run.TaskTimeout,
		Retry: crews.RetryPolicy{
			MaxRetries:     c.Run.MaxRetries,
			InitialBackoff: c.Run.InitialBackoff,
			MaxBackoff:     c.Run.MaxBackoff,
			Multiplier:     c.Run.BackoffMultiplier,
		},
		RateLimit: c.Run.RateLimit,
		Burst:     c.Run.Burst,
	}
}

// EvaluatorConfig maps the evaluation section.
func (c *Config) EvaluatorConfig() evaluation.EvaluatorConfig {
	return evaluation.EvaluatorConfig{
		Concurrency:       c.Evaluation.Concurrency,
		SemanticThreshold: c.Evaluation.SemanticThreshold,
		KeepOutcome:       c.Evaluation.KeepOutcome,
	}
}

// HTTPCapabilityConfig maps the capability section for http mode.
func (c *Config) HTTPCapabilityConfig() capability.HTTPConfig {
	return capability.HTTPConfig{
		BaseURL:     c.Capability.BaseURL,
		Path:        c.Capability.Path,
		Timeout:     c.Capability.Timeout,
		JWTSecret:   c.Capability.JWTSecret,
		JWTIssuer:   c.Capability.JWTIssuer,
		JWTAudience: c.Capability.JWTAudience,
		TokenTTL:    c.Capability.TokenTTL,
		Headers:     c.Capability.Headers,
		TLS: tlsutil.ClientOptions{
			CAFile:             c.Capability.TLS.CAFile,
			ServerName:         c.Capability.TLS.ServerName,
			InsecureSkipVerify: c.Capability.TLS.InsecureSkipVerify,
		},
	}
}

// SinkRetry returns the report write retry policy.
func (c *Config) SinkRetry() persistence.RetryConfig {
	return persistence.RetryConfig{
		MaxRetries:        c.Sink.MaxRetries,
		InitialBackoff:    c.Sink.InitialBackoff,
		MaxBackoff:        c.Sink.MaxBackoff,
		BackoffMultiplier: c.Sink.BackoffMultiplier,
	}
}

// ReportStoreConfig assembles the persistence configuration for the selected sink.
// The database DSN is only resolved when the database sink is selected.
func (c *Config) ReportStoreConfig() (persistence.SinkConfig, error) {
	out := persistence.SinkConfig{
		Type:    persistence.SinkType(c.Sink.Type),
		BaseDir: c.Sink.BaseDir,
		Redis: persistence.RedisSinkConfig{
			Addr:      c.Redis.Addr,
			Password:  c.Redis.Password,
			DB:        c.Redis.DB,
			PoolSize:  c.Redis.PoolSize,
			KeyPrefix: c.Redis.KeyPrefix,
			TTL:       c.Redis.TTL,
		},
		Mongo: persistence.MongoSinkConfig{
			URI:        c.Mongo.URI,
			Database:   c.Mongo.Database,
			Collection: c.Mongo.Collection,
			Timeout:    c.Mongo.Timeout,
		},
		Retry: c.SinkRetry(),
	}
	if out.Type == persistence.SinkTypeDatabase {
		dsn, err := c.Database.ConnectionString()
		if err != nil {
			return persistence.SinkConfig{}, err
		}
		out.Database = persistence.DatabaseSinkConfig{
			Driver:      c.Database.Driver,
			DSN:         dsn,
			AutoMigrate: c.Database.AutoMigrate,
			Pool:        c.Database.PoolConfig(),
		}
	}
	return out, nil
}

// PoolConfig maps the connection limits onto database.PoolConfig.
func (d *DatabaseConfig) PoolConfig() database.PoolConfig {
	pool := database.DefaultPoolConfig()
	if d.MaxOpenConns > 0 {
		pool.MaxOpenConns = d.MaxOpenConns
	}
	if d.MaxIdleConns > 0 {
		pool.MaxIdleConns = d.MaxIdleConns
	}
	if d.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = d.ConnMaxLifetime
	}
	return pool
}
