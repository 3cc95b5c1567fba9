package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location; CONFIG_PATH overrides it.
const ConfigPath = "config.yaml"

// Job sources.
const (
	SourceRedis    = "redis"
	SourceRabbitMQ = "rabbitmq"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	TimeZone  string `yaml:"timeZone"`

	Source string `yaml:"source"`

	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	MailQueueStream  string `yaml:"mailQueueStream"`
	QueueConcurrency int    `yaml:"queueConcurrency"`
	QueueMaxRetries  int    `yaml:"queueMaxRetries"`
	QueueRetryDelay  string `yaml:"queueRetryDelay"`

	RabbitMQURL      string `yaml:"rabbitmqURL"`
	RabbitMQQueue    string `yaml:"rabbitmqQueue"`
	RabbitMQPrefetch int    `yaml:"rabbitmqPrefetch"`

	SMTPHost               string `yaml:"smtpHost"`
	SMTPPort               int    `yaml:"smtpPort"`
	SMTPUser               string `yaml:"smtpUser"`
	SMTPPassword           string `yaml:"smtpPassword"`
	SMTPFrom               string `yaml:"smtpFrom"`
	SMTPInsecureSkipVerify bool   `yaml:"smtpInsecureSkipVerify"`

	RatePerSecond float64 `yaml:"ratePerSecond"`
	RateBurst     int     `yaml:"rateBurst"`
}

// Load reads config from path (defaults to CONFIG_PATH, then config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("MAILER_SOURCE"); v != "" {
		cfg.Source = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.RabbitMQURL = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SMTPPort = n
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.SMTPUser = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTPPassword = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.SMTPFrom = v
	}
	if v := os.Getenv("MAILER_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.RatePerSecond = f
		}
	}
	if cfg.Source == "" {
		cfg.Source = SourceRedis
	}
	if cfg.MailQueueStream == "" {
		cfg.MailQueueStream = "gobarber:mail"
	}
	if cfg.RabbitMQQueue == "" {
		cfg.RabbitMQQueue = "gobarber.mail"
	}
	if cfg.QueueConcurrency <= 0 {
		cfg.QueueConcurrency = 2
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	switch cfg.Source {
	case SourceRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis source")
		}
	case SourceRabbitMQ:
		if strings.TrimSpace(cfg.RabbitMQURL) == "" {
			return errors.New("config: rabbitmqURL is required for the rabbitmq source")
		}
	default:
		return fmt.Errorf("config: unknown source %q (redis or rabbitmq)", cfg.Source)
	}
	if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
		return errors.New("config: smtpHost and smtpFrom are required")
	}
	if cfg.RatePerSecond < 0 || cfg.QueueMaxRetries < 0 {
		return errors.New("config: ratePerSecond and queueMaxRetries must be >= 0")
	}
	if _, err := ParseRetryDelay(cfg.QueueRetryDelay); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseRetryDelay parses the optional queue retry delay.
func ParseRetryDelay(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid queueRetryDelay duration: %w", err)
	}
	return dur, nil
}
