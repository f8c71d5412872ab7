// =============================================================================
// 📦 crewcheck 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Run:        DefaultRunConfig(),
		Evaluation: DefaultEvaluationConfig(),
		Capability: DefaultCapabilityConfig(),
		Sink:       DefaultSinkConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		Mongo:      DefaultMongoConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Metrics:    DefaultMetricsConfig(),
	}
}

// DefaultRunConfig 返回默认编排配置
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Process:           "sequential",
		MaxConcurrency:    4,
		TaskTimeout:       2 * time.Minute,
		PersistTimeout:    30 * time.Second,
		MaxRetries:        2,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DefaultEvaluationConfig 返回默认评估配置
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{
		Concurrency:       4,
		SemanticThreshold: 0.6,
		KeepOutcome:       true,
	}
}

// DefaultCapabilityConfig 返回默认能力配置（回放模式）
func DefaultCapabilityConfig() CapabilityConfig {
	return CapabilityConfig{
		Mode:      "replay",
		Path:      "/v1/tasks/invoke",
		Timeout:   60 * time.Second,
		JWTIssuer: "crewcheck",
		TokenTTL:  5 * time.Minute,
	}
}

// DefaultSinkConfig 返回默认落地配置
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		Type:              "file",
		BaseDir:           "./logs",
		MaxRetries:        3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "crewcheck",
		Name:            "crewcheck.db",
		SSLMode:         "disable",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		PoolSize:  10,
		KeyPrefix: "crewcheck:",
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "crewcheck",
		Collection: "run_reports",
		Timeout:    10 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewcheck",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "crewcheck",
	}
}
