// =============================================================================
// 📦 crewcheck 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("crewcheck.yaml").
//	    WithEnvPrefix("CREWCHECK").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is prepended to every environment override.
const DefaultEnvPrefix = "CREWCHECK"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 crewcheck 的完整配置结构
type Config struct {
	// Run 编排与执行配置
	Run RunConfig `yaml:"run" env:"RUN"`

	// Evaluation 结果评估配置
	Evaluation EvaluationConfig `yaml:"evaluation" env:"EVALUATION"`

	// Capability 任务执行能力配置
	Capability CapabilityConfig `yaml:"capability" env:"CAPABILITY"`

	// Sink 运行报告落地配置
	Sink SinkConfig `yaml:"sink" env:"SINK"`

	// Database 数据库配置（sink.type=database）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 配置（sink.type=redis）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Mongo 配置（sink.type=mongo）
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics 指标暴露配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// RunConfig 编排配置
type RunConfig struct {
	// 默认执行方式: sequential, concurrent（crew 未声明时使用）
	Process string `yaml:"process" env:"PROCESS"`
	// 并发执行时的最大 worker 数
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	// 整个运行的超时，0 表示不限制
	RunTimeout time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT"`
	// 单个任务默认超时
	TaskTimeout time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
	// 报告落地超时，运行被取消后仍然生效
	PersistTimeout time.Duration `yaml:"persist_timeout" env:"PERSIST_TIMEOUT"`
	// 瞬时失败的重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 初始退避
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"INITIAL_BACKOFF"`
	// 最大退避
	MaxBackoff time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	// 退避倍数
	BackoffMultiplier float64 `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`
	// 每秒调用上限，0 表示不限速
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	// 限速突发量
	Burst int `yaml:"burst" env:"BURST"`
}

// EvaluationConfig 评估配置
type EvaluationConfig struct {
	// 并发评估数
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// 语义断言默认阈值
	SemanticThreshold float64 `yaml:"semantic_threshold" env:"SEMANTIC_THRESHOLD"`
	// 是否在 verdict 中保留原始输出
	KeepOutcome bool `yaml:"keep_outcome" env:"KEEP_OUTCOME"`
}

// CapabilityConfig 能力适配器配置
type CapabilityConfig struct {
	// 模式: replay（使用场景文件中的 fixtures）, http（调用被测后端）
	Mode string `yaml:"mode" env:"MODE"`
	// 后端地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 调用路径
	Path string `yaml:"path" env:"PATH"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// JWT 签名密钥，为空时不签名
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// JWT 签发者
	JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	// JWT 受众
	JWTAudience string `yaml:"jwt_audience" env:"JWT_AUDIENCE"`
	// Token 有效期
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	// 额外请求头（仅 YAML）
	Headers map[string]string `yaml:"headers"`
	// TLS 配置
	TLS TLSConfig `yaml:"tls" env:"TLS"`
}

// TLSConfig 客户端 TLS 配置
type TLSConfig struct {
	CAFile             string `yaml:"ca_file" env:"CA_FILE"`
	ServerName         string `yaml:"server_name" env:"SERVER_NAME"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
}

// SinkConfig 报告落地配置
type SinkConfig struct {
	// 类型: memory, file, redis, database, mongo
	Type string `yaml:"type" env:"TYPE"`
	// 文件落地目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// 写入重试
	MaxRetries        int           `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" env:"INITIAL_BACKOFF"`
	MaxBackoff        time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 完整连接串，设置后忽略 host/port 等字段
	DSN string `yaml:"dsn" env:"DSN"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时通过 gorm 建表，而不是执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 报告过期时间，0 表示永久保留
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI        string        `yaml:"uri" env:"URI"`
	Database   string        `yaml:"database" env:"DATABASE"`
	Collection string        `yaml:"collection" env:"COLLECTION"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用 /metrics 端点
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 用 PREFIX_SECTION_FIELD 环境变量覆盖配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return applyEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// applyEnv 沿 env 标签递归；叶子字段按 YAML 标量规则解码，
// 所以 "45s"、"0.75"、"false" 与配置文件中的写法一致
func applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := range v.NumField() {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field, key); err != nil {
				return err
			}
			continue
		}
		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			continue
		}
		if err := envNode(field.Type(), raw).Decode(field.Addr().Interface()); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// envNode 把原始字符串包装成 YAML 节点；切片按逗号拆分
func envNode(typ reflect.Type, raw string) *yaml.Node {
	scalar := func(k reflect.Kind, value string) *yaml.Node {
		n := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
		if k == reflect.String {
			n.Tag = "!!str"
		}
		return n
	}
	if typ.Kind() != reflect.Slice {
		return scalar(typ.Kind(), raw)
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, part := range strings.Split(raw, ",") {
		seq.Content = append(seq.Content, scalar(typ.Elem().Kind(), strings.TrimSpace(part)))
	}
	return seq
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var (
	validProcesses = map[string]bool{"": true, "sequential": true, "concurrent": true}
	validModes     = map[string]bool{"replay": true, "http": true}
	validSinks     = map[string]bool{"memory": true, "file": true, "redis": true, "database": true, "mongo": true}
	validDrivers   = map[string]bool{"postgres": true, "mysql": true, "sqlite": true}
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate 验证配置，一次返回全部问题
func (c *Config) Validate() error {
	var errs []string

	if !validProcesses[c.Run.Process] {
		errs = append(errs, fmt.Sprintf("run.process %q is not sequential or concurrent", c.Run.Process))
	}
	if c.Run.MaxConcurrency <= 0 {
		errs = append(errs, "run.max_concurrency must be positive")
	}
	if c.Run.RunTimeout < 0 || c.Run.TaskTimeout < 0 || c.Run.PersistTimeout < 0 {
		errs = append(errs, "run timeouts must not be negative")
	}
	if c.Run.MaxRetries < 0 {
		errs = append(errs, "run.max_retries must not be negative")
	}
	if c.Run.RateLimit < 0 {
		errs = append(errs, "run.rate_limit must not be negative")
	}

	if t := c.Evaluation.SemanticThreshold; t <= 0 || t > 1 {
		errs = append(errs, "evaluation.semantic_threshold must be in (0, 1]")
	}

	if !validModes[c.Capability.Mode] {
		errs = append(errs, fmt.Sprintf("capability.mode %q is not replay or http", c.Capability.Mode))
	}
	if c.Capability.Mode == "http" {
		if u, err := url.Parse(c.Capability.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "capability.base_url must be an absolute URL in http mode")
		}
	}

	if !validSinks[c.Sink.Type] {
		errs = append(errs, fmt.Sprintf("sink.type %q is not supported", c.Sink.Type))
	}
	if c.Sink.MaxRetries < 0 {
		errs = append(errs, "sink.max_retries must not be negative")
	}
	if c.Sink.Type == "file" && c.Sink.BaseDir == "" {
		errs = append(errs, "sink.base_dir is required for the file sink")
	}
	if c.Sink.Type == "database" && !validDrivers[c.Database.Driver] {
		errs = append(errs, fmt.Sprintf("database.driver %q is not postgres, mysql or sqlite", c.Database.Driver))
	}
	if c.Sink.Type == "redis" && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required for the redis sink")
	}
	if c.Sink.Type == "mongo" && c.Mongo.URI == "" {
		errs = append(errs, "mongo.uri is required for the mongo sink")
	}

	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid", c.Log.Level))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ErrNoDSN is returned by ConnectionString for unknown drivers.
var ErrNoDSN = errors.New("no dsn for driver")

// ConnectionString 返回数据库连接字符串，显式 DSN 优先
func (d *DatabaseConfig) ConnectionString() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		), nil
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		), nil
	case "sqlite":
		return d.Name, nil
	default:
		return "", fmt.Errorf("%w %q", ErrNoDSN, d.Driver)
	}
}
