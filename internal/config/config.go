package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	// RabbitMQURL is optional; without a broker state-change events are
	// discarded.
	RabbitMQURL string `env:"RABBITMQ_URL"`

	SMSProviderURL   string `env:"SMS_PROVIDER_URL,required=true"`
	ChatProviderURL  string `env:"CHAT_PROVIDER_URL"`
	EmailProviderURL string `env:"EMAIL_PROVIDER_URL"`

	RateLimitPerSec   int `env:"RATE_LIMIT_PER_SEC,default=50"`
	RunnerConcurrency int `env:"RUNNER_CONCURRENCY,default=16"`
	BatchLimit        int `env:"BATCH_LIMIT,default=100"`

	ClaimTimeoutSec     int `env:"CLAIM_TIMEOUT_SEC,default=600"`
	SentPendingGraceSec int `env:"SENT_PENDING_GRACE_SEC,default=21600"`
	ReaperIntervalSec   int `env:"REAPER_INTERVAL_SEC,default=60"`

	// TriggerToken guards the manual batch-run endpoints.
	TriggerToken string `env:"TRIGGER_TOKEN,required=true"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func (c *Config) ClaimTimeout() time.Duration {
	return time.Duration(c.ClaimTimeoutSec) * time.Second
}

func (c *Config) SentPendingGrace() time.Duration {
	return time.Duration(c.SentPendingGraceSec) * time.Second
}

func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalSec) * time.Second
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
