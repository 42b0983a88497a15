package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address  string `yaml:"address"`  // MongoDB 服务器地址
	Username string `yaml:"username"` // 用户名
	Password string `yaml:"password"` // 密码
	Database string `yaml:"database"` // 数据库名称
}

// EtcdConfig 定义了 Etcd 服务发现的连接配置。
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"` // Etcd 节点地址列表
	Username  string   `yaml:"username"`  // 用户名
	Password  string   `yaml:"password"`  // 密码
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers          []string `yaml:"brokers"`          // Kafka Broker 地址列表
	GroupViewedTopic string   `yaml:"groupViewedTopic"` // 群组被打开的事件主题
	SyncResultTopic  string   `yaml:"syncResultTopic"`  // 对账结果主题
	ConsumerGroupID  string   `yaml:"consumerGroupID"`  // 消费者组 ID
}

// Topics 返回需要在启动时确保存在的全部主题。
func (k KafkaConfig) Topics() []string {
	var topics []string
	for _, t := range []string{k.GroupViewedTopic, k.SyncResultTopic} {
		if t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Redis   RedisConfig `yaml:"redis"`   // Redis 数据库配置
	MongoDB MongoConfig `yaml:"mongodb"` // MongoDB 数据库配置
	Etcd    EtcdConfig  `yaml:"etcd"`    // Etcd 服务发现配置
	Kafka   KafkaConfig `yaml:"kafka"`   // Kafka 消息队列配置
}

// GoogleOAuthConfig 定义了 Google OAuth 的认证配置。
type GoogleOAuthConfig struct {
	ClientID     string `yaml:"clientID"`     // Google OAuth 客户端ID
	ClientSecret string `yaml:"clientSecret"` // Google OAuth 客户端Secret
	RedirectURL  string `yaml:"redirectURL"`  // 重定向URL
}

// AuthConfig 用于配置认证相关设置。
type AuthConfig struct {
	JwtSecret string            `yaml:"jwtSecret"` // JWT 密钥
	Google    GoogleOAuthConfig `yaml:"google"`    // Google OAuth 配置
}

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

// ServerConfig 定义了 HTTP 服务和服务注册的配置。
type ServerConfig struct {
	Address     string `yaml:"address"`     // 监听地址，例如 ":8080"
	AdvertiseAs string `yaml:"advertiseAs"` // 注册到 etcd 的地址，为空时不注册
	RegisterTTL int64  `yaml:"registerTTL"` // etcd 租约 TTL（秒）
}

// SyncConfig 定义了资源名称对账的配置。
type SyncConfig struct {
	DebounceWindow       string `yaml:"debounceWindow"`       // 本地重命名后的防抖窗口，例如 "5s"
	MaxConcurrentUpdates int    `yaml:"maxConcurrentUpdates"` // 并发写入上限，0 表示不限制
	PassTimeout          string `yaml:"passTimeout"`          // 单次对账的总超时，空表示不限制
	FetchTimeout         string `yaml:"fetchTimeout"`         // 单个元数据请求的超时，空表示不限制
	Guard                string `yaml:"guard"`                // "local" 或 "redis"
	GuardTTL             string `yaml:"guardTTL"`             // redis 锁的过期时间
	GroupsCollection     string `yaml:"groupsCollection"`     // 群组集合名称
	DriveEndpoint        string `yaml:"driveEndpoint"`        // 覆盖 Drive API 地址，测试环境使用
}

// Durations 是 SyncConfig 中解析后的时间配置。
type Durations struct {
	DebounceWindow time.Duration
	PassTimeout    time.Duration
	FetchTimeout   time.Duration
	GuardTTL       time.Duration
}

// ParseDurations 解析 SyncConfig 中的时间字符串，空字符串解析为 0。
func (s SyncConfig) ParseDurations() (Durations, error) {
	var d Durations
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"debounceWindow", s.DebounceWindow, &d.DebounceWindow},
		{"passTimeout", s.PassTimeout, &d.PassTimeout},
		{"fetchTimeout", s.FetchTimeout, &d.FetchTimeout},
		{"guardTTL", s.GuardTTL, &d.GuardTTL},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return Durations{}, fmt.Errorf("sync.%s 格式错误 %q: %w", f.name, raw, err)
		}
		if v < 0 {
			return Durations{}, fmt.Errorf("sync.%s 不能为负数: %s", f.name, raw)
		}
		*f.dst = v
	}
	return d, nil
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了令牌桶限流器的配置。
type RateLimiterConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`

	// 按用户限流，PerUserRate 为 0 时关闭。
	PerUserRate     float64 `yaml:"perUserRate"`
	PerUserCapacity int     `yaml:"perUserCapacity"`
	MaxTrackedUsers int     `yaml:"maxTrackedUsers"`
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
	App        AppInfo          `yaml:"app"`        // 应用程序信息
	Auth       AuthConfig       `yaml:"auth"`       // 认证配置
	Logger     LoggerConfig     `yaml:"logger"`     // 日志记录器配置
	Databases  DatabaseConfigs  `yaml:"databases"`  // 数据库配置
	Server     ServerConfig     `yaml:"server"`     // HTTP 服务配置
	Sync       SyncConfig       `yaml:"sync"`       // 资源对账配置
	Middleware MiddlewareConfig `yaml:"middleware"` // 中间件配置
}

// 默认值。
const (
	DefaultDebounceWindow   = "5s"
	DefaultGroupsCollection = "groups"
	DefaultServerAddress    = ":8080"
	DefaultGuard            = "local"
	DefaultGuardTTL         = "2m"
	DefaultRegisterTTL      = 10
)

// ApplyDefaults 为未填写的配置项设置默认值。
func (c *AppConfig) ApplyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Sync.DebounceWindow == "" {
		c.Sync.DebounceWindow = DefaultDebounceWindow
	}
	if c.Sync.GroupsCollection == "" {
		c.Sync.GroupsCollection = DefaultGroupsCollection
	}
	if c.Sync.Guard == "" {
		c.Sync.Guard = DefaultGuard
	}
	if c.Sync.GuardTTL == "" {
		c.Sync.GuardTTL = DefaultGuardTTL
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
	if c.Server.RegisterTTL <= 0 {
		c.Server.RegisterTTL = DefaultRegisterTTL
	}
	if c.Databases.Kafka.GroupViewedTopic == "" {
		c.Databases.Kafka.GroupViewedTopic = "group_viewed"
	}
	if c.Databases.Kafka.SyncResultTopic == "" {
		c.Databases.Kafka.SyncResultTopic = "resource_sync_results"
	}
	if c.Databases.Kafka.ConsumerGroupID == "" {
		c.Databases.Kafka.ConsumerGroupID = "resource-sync-group"
	}
}

// Validate 检查配置的一致性。
func (c *AppConfig) Validate() error {
	switch c.Sync.Guard {
	case "local", "redis":
	default:
		return fmt.Errorf("不支持的 sync.guard: %q", c.Sync.Guard)
	}
	if c.Sync.MaxConcurrentUpdates < 0 {
		return fmt.Errorf("sync.maxConcurrentUpdates 不能为负数")
	}
	if _, err := c.Sync.ParseDurations(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Auth.JwtSecret) == "" {
		return fmt.Errorf("auth.jwtSecret 不能为空")
	}
	return nil
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析并填充默认值后的应用程序配置结构体。
//	error: 如果文件读取、解析或校验失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	// 将 YAML 内容解析到 cfg 结构体中。
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return &cfg, nil
}
