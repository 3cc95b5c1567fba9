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

// Mail dispatch modes.
const (
	MailDispatchSync     = "sync"
	MailDispatchRedis    = "redis"
	MailDispatchRabbitMQ = "rabbitmq"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`
	DatabaseURL string `yaml:"databaseURL"`
	TimeZone    string `yaml:"timeZone"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	JWTSecret   string `yaml:"jwtSecret"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`
	TokenTTL    string `yaml:"tokenTTL"`

	MinioEndpoint      string `yaml:"minioEndpoint"`
	MinioAccessKey     string `yaml:"minioAccessKey"`
	MinioSecretKey     string `yaml:"minioSecretKey"`
	MinioBucket        string `yaml:"minioBucket"`
	MinioUseSSL        bool   `yaml:"minioUseSSL"`
	MinioPublicBaseURL string `yaml:"minioPublicBaseURL"`
	MinioPresignExpiry string `yaml:"minioPresignExpiry"`

	MailDispatch           string `yaml:"mailDispatch"`
	MailQueueStream        string `yaml:"mailQueueStream"`
	SMTPHost               string `yaml:"smtpHost"`
	SMTPPort               int    `yaml:"smtpPort"`
	SMTPUser               string `yaml:"smtpUser"`
	SMTPPassword           string `yaml:"smtpPassword"`
	SMTPFrom               string `yaml:"smtpFrom"`
	SMTPInsecureSkipVerify bool   `yaml:"smtpInsecureSkipVerify"`
	RabbitMQURL            string `yaml:"rabbitmqURL"`
	RabbitMQQueue          string `yaml:"rabbitmqQueue"`

	KafkaBrokers []string `yaml:"kafkaBrokers"`
	KafkaTopic   string   `yaml:"kafkaTopic"`

	SignupRateLimitPerMinute int      `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int      `yaml:"loginRateLimitPerMinute"`
	MaxUploadBytes           int64    `yaml:"maxUploadBytes"`
	AllowedOrigins           []string `yaml:"allowedOrigins"`
	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`
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
	applyEnv(&cfg)
	if cfg.MailDispatch == "" {
		cfg.MailDispatch = MailDispatchSync
	}
	if cfg.MailQueueStream == "" {
		cfg.MailQueueStream = "gobarber:mail"
	}
	if cfg.RabbitMQQueue == "" {
		cfg.RabbitMQQueue = "gobarber.mail"
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "gobarber.appointments"
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setString("PORT", &cfg.Port)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOG_FORMAT", &cfg.LogFormat)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("TZ_NAME", &cfg.TimeZone)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setString("JWT_SECRET", &cfg.JWTSecret)
	setString("JWT_ISSUER", &cfg.JWTIssuer)
	setString("JWT_AUDIENCE", &cfg.JWTAudience)
	setString("JWT_LEEWAY", &cfg.JWTLeeway)
	setString("JWT_TTL", &cfg.TokenTTL)
	setString("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	setString("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	setString("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	setString("MINIO_BUCKET", &cfg.MinioBucket)
	setString("MINIO_PUBLIC_BASE_URL", &cfg.MinioPublicBaseURL)
	setString("MAIL_DISPATCH", &cfg.MailDispatch)
	setString("SMTP_HOST", &cfg.SMTPHost)
	setString("SMTP_USER", &cfg.SMTPUser)
	setString("SMTP_PASSWORD", &cfg.SMTPPassword)
	setString("SMTP_FROM", &cfg.SMTPFrom)
	setString("RABBITMQ_URL", &cfg.RabbitMQURL)
	setString("KAFKA_TOPIC", &cfg.KafkaTopic)

	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SMTPPort = n
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitCSV(v)
	}
	if v := os.Getenv("API_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("API_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("API_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("API_SIGNUP_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SignupRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("API_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set JWT_SECRET)")
	}
	if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
		return errors.New("config: minioEndpoint and minioBucket are required")
	}
	switch cfg.MailDispatch {
	case MailDispatchSync:
		if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
			return errors.New("config: smtpHost and smtpFrom are required for sync mail dispatch")
		}
	case MailDispatchRedis:
	case MailDispatchRabbitMQ:
		if cfg.RabbitMQURL == "" {
			return errors.New("config: rabbitmqURL is required for rabbitmq mail dispatch")
		}
	default:
		return fmt.Errorf("config: unknown mailDispatch %q (sync, redis or rabbitmq)", cfg.MailDispatch)
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if _, err := cfg.ParseDurations(); err != nil {
		return err
	}
	return nil
}

// Durations holds the parsed duration settings; zero means the default.
type Durations struct {
	JWTLeeway     time.Duration
	TokenTTL      time.Duration
	PresignExpiry time.Duration
}

// ParseDurations parses every duration field of the config.
func (c FileConfig) ParseDurations() (Durations, error) {
	var out Durations
	for _, field := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"jwtLeeway", c.JWTLeeway, &out.JWTLeeway},
		{"tokenTTL", c.TokenTTL, &out.TokenTTL},
		{"minioPresignExpiry", c.MinioPresignExpiry, &out.PresignExpiry},
	} {
		dur, err := ParseDuration(field.value)
		if err != nil {
			return Durations{}, fmt.Errorf("config: %s: %w", field.name, err)
		}
		*field.dst = dur
	}
	return out, nil
}

// ParseDuration parses an optional duration string; empty means zero.
func ParseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
