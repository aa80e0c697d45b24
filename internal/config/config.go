package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/payin/internal/logger"

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
	CORS        CORSConfig        `mapstructure:"cors"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	CartPayment CartPaymentConfig `mapstructure:"cart_payment"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Bootstrap   BootstrapConfig   `mapstructure:"bootstrap"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              string        `mapstructure:"port"`
	Mode              string        `mapstructure:"mode"` // debug / release
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
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
		Level:      c.Level,
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
	Driver   string             `mapstructure:"driver"`    // 数据库驱动（sqlite/postgres）
	DSN      string             `mapstructure:"dsn"`       // 数据库连接串
	LogLevel string             `mapstructure:"log_level"` // gorm 日志级别（silent/error/warn/info）
	Pool     DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig API 客户端令牌配置
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

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// StripeConfig 卡支付渠道配置
type StripeConfig struct {
	SecretKey               string        `mapstructure:"secret_key"`
	WebhookSecret           string        `mapstructure:"webhook_secret"`
	APIBaseURL              string        `mapstructure:"api_base_url"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	WebhookToleranceSeconds int           `mapstructure:"webhook_tolerance_seconds"`
}

// CartPaymentConfig 购物车支付编排配置
type CartPaymentConfig struct {
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
	LockWait             time.Duration `mapstructure:"lock_wait"`
	ReconcileDelay       time.Duration `mapstructure:"reconcile_delay"`
	ReconcileStaleAfter  time.Duration `mapstructure:"reconcile_stale_after"`
	ReconcileSweepCron   string        `mapstructure:"reconcile_sweep_cron"`
	ReconcileSweepLimit  int           `mapstructure:"reconcile_sweep_limit"`
	CaptureDelay         time.Duration `mapstructure:"capture_delay"`
	SnapshotTTL          time.Duration `mapstructure:"snapshot_ttl"`
	DefaultCountry       string        `mapstructure:"default_country"`
	DefaultCurrency      string        `mapstructure:"default_currency"`
	StatementDescriptor  string        `mapstructure:"statement_descriptor"`
	ApplicationFeeAmount int64         `mapstructure:"application_fee_amount"`
}

// RateLimitConfig 接口限流配置
type RateLimitConfig struct {
	CreatePayment RateLimitRuleConfig `mapstructure:"create_payment"`
	IssueToken    RateLimitRuleConfig `mapstructure:"issue_token"`
}

// RateLimitRuleConfig 单条限流规则
type RateLimitRuleConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// BootstrapConfig 首次启动时创建的 API 客户端
type BootstrapConfig struct {
	ClientKey    string `mapstructure:"client_key"`
	ClientSecret string `mapstructure:"client_secret"`
	Role         string `mapstructure:"role"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")     // 从当前目录查找
	viper.AddConfigPath("./")    // 备用路径
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	setDefaults(viper.GetViper())

	// 环境变量支持
	viper.AutomaticEnv()                                   // 自动读取环境变量
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	cfg.CartPayment.normalize()

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "payin.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/payin.db")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "payin")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"critical": 6,
		"default":  3,
		"low":      1,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"Idempotency-Key",
		"X-Requested-With",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.api_base_url", "https://api.stripe.com")
	v.SetDefault("stripe.timeout", "12s")
	v.SetDefault("stripe.webhook_tolerance_seconds", 300)
	v.SetDefault("cart_payment.lock_ttl", "30s")
	v.SetDefault("cart_payment.lock_wait", "5s")
	v.SetDefault("cart_payment.reconcile_delay", "30s")
	v.SetDefault("cart_payment.reconcile_stale_after", "10m")
	v.SetDefault("cart_payment.reconcile_sweep_cron", "@every 5m")
	v.SetDefault("cart_payment.reconcile_sweep_limit", 200)
	v.SetDefault("cart_payment.capture_delay", "0s")
	v.SetDefault("cart_payment.snapshot_ttl", "5m")
	v.SetDefault("cart_payment.default_country", "US")
	v.SetDefault("cart_payment.default_currency", "USD")
	v.SetDefault("cart_payment.statement_descriptor", "")
	v.SetDefault("cart_payment.application_fee_amount", 0)
	v.SetDefault("rate_limit.create_payment.window_seconds", 60)
	v.SetDefault("rate_limit.create_payment.max_requests", 30)
	v.SetDefault("rate_limit.create_payment.block_seconds", 60)
	v.SetDefault("rate_limit.issue_token.window_seconds", 300)
	v.SetDefault("rate_limit.issue_token.max_requests", 10)
	v.SetDefault("rate_limit.issue_token.block_seconds", 900)
	v.SetDefault("bootstrap.client_key", "")
	v.SetDefault("bootstrap.client_secret", "")
	v.SetDefault("bootstrap.role", "operator")
}

func (c *CartPaymentConfig) normalize() {
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.LockWait < 0 {
		c.LockWait = 0
	}
	if c.ReconcileDelay <= 0 {
		c.ReconcileDelay = 30 * time.Second
	}
	if c.ReconcileStaleAfter <= 0 {
		c.ReconcileStaleAfter = 10 * time.Minute
	}
	if c.ReconcileSweepLimit <= 0 {
		c.ReconcileSweepLimit = 200
	}
	if c.CaptureDelay < 0 {
		c.CaptureDelay = 0
	}
	c.DefaultCountry = strings.ToUpper(strings.TrimSpace(c.DefaultCountry))
	if c.DefaultCountry == "" {
		c.DefaultCountry = "US"
	}
	c.DefaultCurrency = strings.ToUpper(strings.TrimSpace(c.DefaultCurrency))
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "USD"
	}
}
