package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Ingress  Ingress  `yaml:"ingress"`
	Target   Target   `yaml:"target"`
	Queue    Queue    `yaml:"queue"`
	Kafka    Kafka    `yaml:"kafka"`
	NATS     NATS     `yaml:"nats"`
	Retry    Retry    `yaml:"retry"`
	Breaker  Breaker  `yaml:"breaker"`
	Worker   Worker   `yaml:"worker"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"webhook-proxy"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Ingress struct {
	// Provider and Secret configure the default webhook source. Additional
	// sources go in Providers (yaml only), name -> shared secret.
	Provider     string            `yaml:"provider" env:"WEBHOOK_PROVIDER" env-default:"github"`
	Secret       string            `yaml:"secret" env:"WEBHOOK_SECRET" env-default:""`
	Providers    map[string]string `yaml:"providers"`
	MaxBodyBytes int64             `yaml:"max_body_bytes" env:"MAX_BODY_BYTES" env-default:"1048576"`
}

// ProviderSecrets merges the default provider with any extra yaml providers.
func (i Ingress) ProviderSecrets() map[string]string {
	secrets := make(map[string]string, len(i.Providers)+1)
	for name, secret := range i.Providers {
		secrets[name] = secret
	}
	if i.Provider != "" {
		secrets[i.Provider] = i.Secret
	}
	return secrets
}

type Target struct {
	URL     string        `yaml:"url" env:"TARGET_URL" env-default:"http://localhost:9000/webhook"`
	Secret  string        `yaml:"secret" env:"TARGET_SECRET" env-default:""`
	Timeout time.Duration `yaml:"timeout" env:"TARGET_TIMEOUT" env-default:"30s"`
	// Port is where the bundled sample target listens.
	Port string `yaml:"port" env:"TARGET_PORT" env-default:"9000"`
}

type Queue struct {
	// Driver selects the delivery queue backend: "kafka" or "nats".
	Driver string `yaml:"driver" env:"QUEUE_DRIVER" env-default:"kafka"`
}

type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic       string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"webhook-events"`
	GroupID     string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"webhook-forwarder"`
	StartOffset string   `yaml:"start_offset" env:"KAFKA_START_OFFSET" env-default:"earliest"`
}

type NATS struct {
	URL     string        `yaml:"url" env:"NATS_URL" env-default:"nats://localhost:4222"`
	Durable string        `yaml:"durable" env:"NATS_DURABLE" env-default:"webhook-forwarder"`
	AckWait time.Duration `yaml:"ack_wait" env:"NATS_ACK_WAIT" env-default:"30s"`
}

type Retry struct {
	MaxDeliveries int           `yaml:"max_deliveries" env:"RETRY_MAX_DELIVERIES" env-default:"5"`
	BaseDelay     time.Duration `yaml:"base_delay" env:"RETRY_BASE_DELAY" env-default:"1s"`
	MaxDelay      time.Duration `yaml:"max_delay" env:"RETRY_MAX_DELAY" env-default:"2m"`
	Factor        float64       `yaml:"factor" env:"RETRY_FACTOR" env-default:"2.0"`
	Jitter        float64       `yaml:"jitter" env:"RETRY_JITTER" env-default:"0.2"`
}

type Breaker struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"BREAKER_FAILURE_THRESHOLD" env-default:"5"`
	CoolDown         time.Duration `yaml:"cool_down" env:"BREAKER_COOL_DOWN" env-default:"30s"`
}

type Worker struct {
	Count       int    `yaml:"count" env:"WORKER_COUNT" env-default:"4"`
	MetricsPort string `yaml:"metrics_port" env:"WORKER_METRICS_PORT" env-default:"9093"`
}

type Postgres struct {
	// Empty Host disables the dead letter store.
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:""`
	Port     int    `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"webhooks"`
}

type Redis struct {
	// Empty Addr disables delivery deduplication marks.
	Addr    string        `yaml:"addr" env:"REDIS_ADDR" env-default:""`
	MarkTTL time.Duration `yaml:"mark_ttl" env:"REDIS_MARK_TTL" env-default:"24h"`
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		cleanenv.ReadEnv(cfg)
	}

	return cfg, nil
}
