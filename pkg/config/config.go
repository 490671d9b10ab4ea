package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sakashimaa/book-market/pkg/utils"
)

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"local"`
	LogLevel   string     `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	HTTP       HTTP       `yaml:"http"`
	Postgres   PG         `yaml:"postgres"`
	Redis      Redis      `yaml:"redis"`
	Kafka      Kafka      `yaml:"kafka"`
	Gateway    Gateway    `yaml:"gateway"`
	Payment    Payment    `yaml:"payment"`
	Auth       Auth       `yaml:"auth"`
	Limiter    Limiter    `yaml:"limiter"`
	Migrations Migrations `yaml:"migrations"`
	SMTP       SMTP       `yaml:"smtp"`
	Tracing    Tracing    `yaml:"tracing"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"10s"`
}

type PG struct {
	URL string `yaml:"url" env:"DB_URL"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"10m"`
}

type Kafka struct {
	Brokers string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic   string `yaml:"topic" env:"KAFKA_ORDER_TOPIC" env-default:"order_events"`
	GroupID string `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"notification-service-group"`
}

func (k Kafka) BrokerList() []string {
	parts := strings.Split(k.Brokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}

	return brokers
}

// Gateway holds the payment processor credentials. KeySecret must never be logged.
type Gateway struct {
	BaseURL   string        `yaml:"base_url" env:"GATEWAY_BASE_URL" env-default:"https://api.razorpay.com"`
	KeyID     string        `yaml:"key_id" env:"RAZORPAY_KEY_ID"`
	KeySecret string        `yaml:"key_secret" env:"RAZORPAY_KEY_SECRET"`
	Currency  string        `yaml:"currency" env:"GATEWAY_CURRENCY" env-default:"INR"`
	Timeout   time.Duration `yaml:"timeout" env:"GATEWAY_TIMEOUT" env-default:"5s"`
}

type Payment struct {
	// SignatureSecret defaults to Gateway.KeySecret when empty.
	SignatureSecret string `yaml:"signature_secret" env:"PAYMENT_SIGNATURE_SECRET"`
}

type Auth struct {
	AccessSecret string `yaml:"access_secret" env:"ACCESS_SECRET"`
}

type Limiter struct {
	Max    int           `yaml:"max" env:"LIMITER_MAX" env-default:"20"`
	Window time.Duration `yaml:"window" env:"LIMITER_WINDOW" env-default:"5s"`
}

type Migrations struct {
	Path    string `yaml:"path" env:"MIGRATIONS_PATH" env-default:"./services/market/migrations"`
	OnStart bool   `yaml:"on_start" env:"MIGRATIONS_ON_START" env-default:"false"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	OpsEmail string `yaml:"ops_email" env:"OPS_EMAIL"`
}

type Tracing struct {
	Endpoint    string  `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
	SampleRatio float64 `yaml:"sample_ratio" env:"TRACE_SAMPLE_RATIO" env-default:"1"`
}

func (c *Config) TracerOptions(serviceName string) utils.TracerOptions {
	return utils.TracerOptions{
		ServiceName: serviceName,
		Env:         c.Env,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

func (c *Config) SignatureSecret() string {
	if c.Payment.SignatureSecret != "" {
		return c.Payment.SignatureSecret
	}

	return c.Gateway.KeySecret
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/local.yaml"
	}

	var cfg Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Printf("config file %s not found, reading environment only", configPath)

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("error reading env config: %v", err)
		}

		return &cfg
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return &cfg
}
