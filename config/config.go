package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Config 应用配置
type Config struct {
	Port        int      `env:"PORT" envDefault:"8080"`
	GinMode     string   `env:"GIN_MODE" envDefault:"debug"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	JWTKey      string   `env:"JWT_KEY" envDefault:"your-secret-key"` // 实际环境应替换为安全密钥

	StoreDriver string `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoURI    string `env:"MONGO_URI" envDefault:"mongodb://127.0.0.1:27017"`
	MongoDB     string `env:"MONGO_DB" envDefault:"crm"`

	// 为空时编码计数器落在 MongoDB
	RedisURL string `env:"REDIS_URL"`
	// 为空时不投递归属事件
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"crm.ownership"`

	Eviction EvictionConfig `envPrefix:"EVICTION_"`
	OTel     OTelConfig     `envPrefix:"OTEL_"`

	BatchConcurrency int `env:"BATCH_CONCURRENCY" envDefault:"8"`
	CodeRetries      int `env:"CODE_RETRIES" envDefault:"3"`
	CASRetries       int `env:"CAS_RETRIES" envDefault:"5"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// EvictionConfig 公海自动回收配置
type EvictionConfig struct {
	Enabled        bool `env:"ENABLED" envDefault:"true"`
	NoFollowUpDays int  `env:"NO_FOLLOW_UP_DAYS" envDefault:"30"`
	NoOrderDays    int  `env:"NO_ORDER_DAYS" envDefault:"90"`
	Hour           int  `env:"HOUR" envDefault:"2"`
	BatchSize      int  `env:"BATCH_SIZE" envDefault:"200"`
}

// OTelConfig 链路追踪配置，ENDPOINT 为空时不导出
type OTelConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"true"`
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"crm-pool"`
}

// Debug 是否为调试模式
func (c *Config) Debug() bool {
	return c.GinMode == "debug"
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Eviction.NoFollowUpDays <= 0 || c.Eviction.NoOrderDays <= 0 {
		return errors.New("eviction thresholds must be positive")
	}
	if c.Eviction.Hour < 0 || c.Eviction.Hour > 23 {
		return fmt.Errorf("EVICTION_HOUR out of range: %d", c.Eviction.Hour)
	}
	if c.BatchConcurrency < 1 {
		return errors.New("BATCH_CONCURRENCY must be at least 1")
	}
	return nil
}

// LoadConfig 读取 .env（若存在）后从环境变量加载配置
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
