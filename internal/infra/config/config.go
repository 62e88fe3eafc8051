package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Amsterdam"`
	Port   int    `envconfig:"PORT" default:"7777"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQPURL string `envconfig:"AMQP_URL"`

	Auth struct {
		JWTSecret string        `envconfig:"JWT_SECRET"`
		TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	} `envconfig:""`

	Reader struct {
		Debounce     time.Duration `envconfig:"READER_DEBOUNCE" default:"2s"`
		FlushTimeout time.Duration `envconfig:"READER_FLUSH_TIMEOUT" default:"5s"`
	} `envconfig:""`

	Queues struct {
		Opens string `envconfig:"OPEN_EVENTS_QUEUE_KEY" default:"open_events"`
	} `envconfig:""`

	StoreBaseURL string `envconfig:"STORE_BASE_URL" default:"http://localhost:7777"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
