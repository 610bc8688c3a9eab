package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// RuntimeConfig 包含了不同 Agent 运行时提供商的配置。
type RuntimeConfig struct {
	Provider string       `yaml:"provider"` // 运行时提供商 (例如: "ollama", "openai", "gemini", "scripted")
	Ollama   OllamaConfig `yaml:"ollama"`   // Ollama 运行时配置
	OpenAI   OpenAIConfig `yaml:"openai"`   // OpenAI 运行时配置
	Gemini   GeminiConfig `yaml:"gemini"`   // Gemini 运行时配置
}

// OllamaConfig 包含了 Ollama 运行时的配置。
type OllamaConfig struct {
	Model   string `yaml:"model"`   // 要使用的模型名称
	BaseURL string `yaml:"baseURL"` // Ollama 服务地址 (默认: "http://localhost:11434")
}

// OpenAIConfig 包含了 OpenAI 运行时的配置。
type OpenAIConfig struct {
	Model  string `yaml:"model"`  // 要使用的模型名称
	APIKey string `yaml:"apiKey"` // OpenAI API 密钥
}

// GeminiConfig 包含了 Gemini 运行时的配置。
type GeminiConfig struct {
	Model  string `yaml:"model"`  // Gemini 模型名称
	APIKey string `yaml:"apiKey"` // Gemini API 密钥
}

// CoordinatorConfig 定义了任务执行协调器的配置。
type CoordinatorConfig struct {
	MaxConcurrent  int                  `yaml:"maxConcurrent"`  // 全局并发执行上限
	DefaultTimeout string               `yaml:"defaultTimeout"` // 单个任务的默认超时时间 (例如: "5m")
	Throttle       RateLimiterConfig    `yaml:"throttle"`       // 运行时调用限流配置
	Breaker        CircuitBreakerConfig `yaml:"breaker"`        // 运行时调用熔断配置
}

// SecurityConfig 定义了路径与内容安全检查的配置。
type SecurityConfig struct {
	AllowedDirs       []string `yaml:"allowedDirs"`       // 允许访问的目录白名单；为空则拒绝所有路径
	DeniedPatterns    []string `yaml:"deniedPatterns"`    // 拒绝访问的 glob 模式黑名单
	AllowedExtensions []string `yaml:"allowedExtensions"` // 允许读取的文件扩展名；为空则不限制
	MaxPathDepth      int      `yaml:"maxPathDepth"`      // 解析后路径的最大目录深度
	MaxFileSizeBytes  int64    `yaml:"maxFileSizeBytes"`  // 可读取文件的最大字节数
	AllowSymlinks     bool     `yaml:"allowSymlinks"`     // 是否允许指向白名单之外的符号链接
	MaxAuditEvents    int      `yaml:"maxAuditEvents"`    // 内存中保留的审计事件上限
}

// CacheConfig 定义了上下文缓存的配置。
type CacheConfig struct {
	MaxEntries    int         `yaml:"maxEntries"`    // 快速层最大条目数
	MaxBytes      int         `yaml:"maxBytes"`      // 快速层所有条目的最大总字节数
	TTL           string      `yaml:"ttl"`           // 条目存活时间 (例如: "30m")
	SweepInterval string      `yaml:"sweepInterval"` // 周期清理的运行间隔 (例如: "5m")
	Store         StoreConfig `yaml:"store"`         // 持久层配置
}

// StoreConfig 定义了缓存持久层的配置。
type StoreConfig struct {
	Backend string          `yaml:"backend"` // 持久层后端 ("disk", "redis", "none")
	Disk    DiskStoreConfig `yaml:"disk"`    // 磁盘后端配置
	Redis   RedisConfig     `yaml:"redis"`   // Redis 后端配置
}

// DiskStoreConfig 定义了磁盘持久层的配置。
type DiskStoreConfig struct {
	Dir      string `yaml:"dir"`      // 缓存记录文件所在目录
	MaxBytes int64  `yaml:"maxBytes"` // 目录占用的字节上限，超出时淘汰最旧记录
}

// RedisConfig 定义了 Redis 的连接配置。
type RedisConfig struct {
	Address   string `yaml:"address"`   // Redis 服务器地址 (例如: "localhost:6379")
	Password  string `yaml:"password"`  // Redis 密码
	DB        int    `yaml:"db"`        // Redis 数据库编号
	KeyPrefix string `yaml:"keyPrefix"` // 写入 Redis 的键前缀
}

// HistoryConfig 定义了执行历史记录的配置。
type HistoryConfig struct {
	MaxEntries        int     `yaml:"maxEntries"`        // 历史记录最大条目数
	MaxBytes          int     `yaml:"maxBytes"`          // 历史记录最大总字节数
	PressureThreshold float64 `yaml:"pressureThreshold"` // 触发压力淘汰的字节占用比例 (0-1)
	PressureFraction  float64 `yaml:"pressureFraction"`  // 压力淘汰时清除的最旧条目比例 (0-1)
}

// OperatorConfig 定义了只读状态服务的配置。
type OperatorConfig struct {
	Enabled    bool             `yaml:"enabled"`    // 是否启动状态服务
	Address    string           `yaml:"address"`    // 监听地址 (例如: ":8080")
	Middleware MiddlewareConfig `yaml:"middleware"` // 中间件配置
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Algorithm   string            `yaml:"algorithm"` // 支持: "tokenBucket", "leakyBucket"
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
	LeakyBucket LeakyBucketConfig `yaml:"leakyBucket"`
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// LeakyBucketConfig 定义了漏桶算法的配置。
type LeakyBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App         AppInfo           `yaml:"app"`         // 应用程序信息
	Logger      LoggerConfig      `yaml:"logger"`      // 日志记录器配置
	Runtime     RuntimeConfig     `yaml:"runtime"`     // Agent 运行时配置
	Coordinator CoordinatorConfig `yaml:"coordinator"` // 任务执行协调器配置
	Security    SecurityConfig    `yaml:"security"`    // 路径与内容安全配置
	Cache       CacheConfig       `yaml:"cache"`       // 上下文缓存配置
	History     HistoryConfig     `yaml:"history"`     // 执行历史配置
	Operator    OperatorConfig    `yaml:"operator"`    // 状态服务配置
}

// Default 返回一份带有默认值的配置，YAML 文件中的字段会覆盖这些默认值。
func Default() *AppConfig {
	return &AppConfig{
		App: AppInfo{
			Name:        "friday",
			Version:     "dev",
			Environment: "development",
		},
		Logger: LoggerConfig{Level: "info"},
		Runtime: RuntimeConfig{
			Provider: "scripted",
			Ollama:   OllamaConfig{Model: "llama3", BaseURL: "http://localhost:11434"},
		},
		Coordinator: CoordinatorConfig{
			MaxConcurrent:  4,
			DefaultTimeout: "5m",
		},
		Security: SecurityConfig{
			DeniedPatterns:   []string{"**/.git/**", "**/.ssh/**", "**/*.pem", "**/*.key", "**/.env*"},
			MaxPathDepth:     12,
			MaxFileSizeBytes: 10 * 1024 * 1024,
			MaxAuditEvents:   1000,
		},
		Cache: CacheConfig{
			MaxEntries:    100,
			MaxBytes:      50 * 1024 * 1024,
			TTL:           "30m",
			SweepInterval: "5m",
			Store: StoreConfig{
				Backend: "disk",
				Disk: DiskStoreConfig{
					Dir:      ".friday/cache",
					MaxBytes: 200 * 1024 * 1024,
				},
				Redis: RedisConfig{
					Address:   "localhost:6379",
					KeyPrefix: "friday:cache:",
				},
			},
		},
		History: HistoryConfig{
			MaxEntries:        1000,
			MaxBytes:          10 * 1024 * 1024,
			PressureThreshold: 0.9,
			PressureFraction:  0.25,
		},
		Operator: OperatorConfig{
			Address: ":8080",
		},
	}
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体（未设置的字段保留默认值）。
//	error: 如果文件读取、解析或校验失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	cfg := Default() // 从默认配置出发，YAML 中出现的字段覆盖默认值。
	// 将 YAML 内容解析到 cfg 结构体中。
	err = yaml.Unmarshal(yamlFile, cfg)
	if err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil // 返回解析后的配置和nil错误。
}

// Validate 检查配置中的数值范围和可解析性，使启动阶段尽早暴露配置错误。
func (c *AppConfig) Validate() error {
	switch c.Runtime.Provider {
	case "ollama", "openai", "gemini", "scripted":
	default:
		return fmt.Errorf("unsupported runtime provider: %s", c.Runtime.Provider)
	}

	if c.Coordinator.MaxConcurrent <= 0 {
		return fmt.Errorf("coordinator.maxConcurrent must be positive, got %d", c.Coordinator.MaxConcurrent)
	}
	if _, err := time.ParseDuration(c.Coordinator.DefaultTimeout); err != nil {
		return fmt.Errorf("invalid coordinator.defaultTimeout: %w", err)
	}

	if c.Cache.MaxEntries <= 0 && c.Cache.MaxBytes <= 0 {
		return fmt.Errorf("cache requires maxEntries or maxBytes")
	}
	if c.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return fmt.Errorf("invalid cache.ttl: %w", err)
		}
	}
	if c.Cache.SweepInterval != "" {
		if _, err := time.ParseDuration(c.Cache.SweepInterval); err != nil {
			return fmt.Errorf("invalid cache.sweepInterval: %w", err)
		}
	}
	switch c.Cache.Store.Backend {
	case "disk", "redis", "none", "":
	default:
		return fmt.Errorf("unsupported cache store backend: %s", c.Cache.Store.Backend)
	}

	if c.History.MaxEntries <= 0 && c.History.MaxBytes <= 0 {
		return fmt.Errorf("history requires maxEntries or maxBytes")
	}
	if c.History.PressureThreshold < 0 || c.History.PressureThreshold > 1 {
		return fmt.Errorf("history.pressureThreshold must be in [0,1], got %v", c.History.PressureThreshold)
	}
	if c.History.PressureFraction < 0 || c.History.PressureFraction > 1 {
		return fmt.Errorf("history.pressureFraction must be in [0,1], got %v", c.History.PressureFraction)
	}

	if c.Coordinator.Breaker.Enabled {
		if _, err := time.ParseDuration(c.Coordinator.Breaker.Timeout); err != nil {
			return fmt.Errorf("invalid coordinator.breaker.timeout: %w", err)
		}
	}
	if c.Operator.Middleware.CircuitBreaker.Enabled {
		if _, err := time.ParseDuration(c.Operator.Middleware.CircuitBreaker.Timeout); err != nil {
			return fmt.Errorf("invalid operator.middleware.circuitBreaker.timeout: %w", err)
		}
	}
	return nil
}

// DefaultTaskTimeout 返回解析后的默认任务超时时间。
// 配置应当已通过 Validate，解析失败时回退到 5 分钟。
func (c CoordinatorConfig) DefaultTaskTimeout() time.Duration {
	d, err := time.ParseDuration(c.DefaultTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}
