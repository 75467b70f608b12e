package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/stockkeeper/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Carrier     CarrierConfig     `mapstructure:"carrier"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Reservation ReservationConfig `mapstructure:"reservation"`
	Tracking    TrackingConfig    `mapstructure:"tracking"`
	Security    SecurityConfig    `mapstructure:"security"`
	CORS        CORSConfig        `mapstructure:"cors"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CarrierProviderConfig 单个承运商配置
type CarrierProviderConfig struct {
	Endpoint string `mapstructure:"endpoint"` // 下单接口地址
	APIKey   string `mapstructure:"api_key"`  // 接口密钥
}

// CarrierConfig 承运商网关配置
type CarrierConfig struct {
	TimeoutSeconds          int                              `mapstructure:"timeout_seconds"`            // 单次请求超时
	BreakerStore            string                           `mapstructure:"breaker_store"`              // memory / redis / db
	FailureThreshold        int                              `mapstructure:"failure_threshold"`          // 熔断失败阈值
	FailureWindowSeconds    int                              `mapstructure:"failure_window_seconds"`     // 失败滚动窗口
	CooldownSeconds         int                              `mapstructure:"cooldown_seconds"`           // 熔断冷却时间
	Providers               map[string]CarrierProviderConfig `mapstructure:"providers"`                  // 承运商列表
}

// Timeout 请求超时时间
func (c CarrierConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuditConfig 审计保留策略配置
type AuditConfig struct {
	RetentionDays int `mapstructure:"retention_days"` // 保留天数，0 取默认（约 7 年）
}

// ReservationConfig 预留清理配置
type ReservationConfig struct {
	ExpiryMinutes        int `mapstructure:"expiry_minutes"`         // 预留过期时长
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"` // 清理循环间隔
	SweepBatchSize       int `mapstructure:"sweep_batch_size"`       // 单轮释放上限
}

// TrackingConfig 运单状态轮询配置
type TrackingConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	PollIntervalSeconds int  `mapstructure:"poll_interval_seconds"`
	BatchSize           int  `mapstructure:"batch_size"`
}

// RateLimitRuleConfig 限流规则配置
type RateLimitRuleConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	ExportRateLimit RateLimitRuleConfig `mapstructure:"export_rate_limit"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// Load 加载配置：config.yaml + 环境变量覆盖（STOCKKEEPER_ 前缀）
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("STOCKKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.Warnw("config_read_failed", "error", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("unmarshal config failed: %w", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "stockkeeper.db")
	v.SetDefault("database.pool.max_open_conns", 25)
	v.SetDefault("database.pool.max_idle_conns", 5)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expire_hours", 24)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.concurrency", 10)

	v.SetDefault("carrier.timeout_seconds", 10)
	v.SetDefault("carrier.breaker_store", "memory")
	v.SetDefault("carrier.failure_threshold", 5)
	v.SetDefault("carrier.failure_window_seconds", 30)
	v.SetDefault("carrier.cooldown_seconds", 60)

	v.SetDefault("audit.retention_days", 0)

	v.SetDefault("reservation.expiry_minutes", 30)
	v.SetDefault("reservation.sweep_interval_seconds", 60)
	v.SetDefault("reservation.sweep_batch_size", 100)

	v.SetDefault("security.export_rate_limit.window_seconds", 60)
	v.SetDefault("security.export_rate_limit.max_requests", 10)

	v.SetDefault("tracking.enabled", true)
	v.SetDefault("tracking.poll_interval_seconds", 300)
	v.SetDefault("tracking.batch_size", 50)
}
