package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	AppBaseURL  string
	JWTSecret   string
	TokenPepper string
	LogLevel    string
	LogFormat   string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPass     string
	DBName     string
	SQLitePath string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	Storage StorageConfig

	RabbitMQURL      string
	RabbitMQHost     string
	RabbitMQPort     string
	RabbitMQUser     string
	RabbitMQPass     string
	RabbitMQVhost    string
	RabbitMQPrefetch int

	RetireWorkerConcurrency int
	RetireRate              float64
	RetireBurst             int
	RetireRetryMax          int
	RetireRetryDelays       []time.Duration
	RetireDeleteTimeout     time.Duration
	RetireLease             time.Duration
	RetireGrace             time.Duration
	RetireSweepInterval     time.Duration
	RetireSweepBatch        int

	MailEnabled  bool
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPTLS      bool
	SMTPStartTLS bool
	SMTPTimeout  time.Duration

	MaxRecipients int
	AccessRate    float64
	AccessBurst   int

	// Warnings holds non-fatal problems found while loading the config file.
	Warnings []string
}

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDurationList(key string, defaultValue []time.Duration) []time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := parseDurationList(strings.Split(raw, ","))
	if err != nil || len(parsed) == 0 {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationList(parts []string) ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}

// Default returns the built-in configuration before any file or env overlay.
func Default() *Config {
	return &Config{
		HTTPAddr:   ":8000",
		AppBaseURL: "http://localhost:8000",
		LogLevel:   "info",
		LogFormat:  "json",

		DBDriver:   "mysql",
		DBHost:     "localhost",
		DBPort:     "3306",
		DBUser:     "root",
		DBPass:     "root",
		DBName:     "Go_Drop",
		SQLitePath: "godrop.db",

		RedisHost: "localhost",
		RedisPort: "6379",

		Storage: defaultStorageConfig(),

		RabbitMQHost:     "localhost",
		RabbitMQPort:     "5672",
		RabbitMQUser:     "guest",
		RabbitMQPass:     "guest",
		RabbitMQVhost:    "/",
		RabbitMQPrefetch: 8,

		RetireWorkerConcurrency: 4,
		RetireRate:              5,
		RetireBurst:             10,
		RetireRetryMax:          8,
		RetireRetryDelays:       []time.Duration{10 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute, 30 * time.Minute},
		RetireDeleteTimeout:     10 * time.Second,
		RetireLease:             time.Minute,
		RetireGrace:             15 * time.Minute,
		RetireSweepInterval:     time.Minute,
		RetireSweepBatch:        100,

		SMTPHost:    "smtp.qq.com",
		SMTPPort:    "465",
		SMTPTLS:     true,
		SMTPTimeout: 30 * time.Second,

		MaxRecipients: 50,
		AccessRate:    5,
		AccessBurst:   20,
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.AppBaseURL = strings.TrimRight(getEnv("APP_BASE_URL", cfg.AppBaseURL), "/")
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenPepper = getEnv("TOKEN_PEPPER", cfg.TokenPepper)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	cfg.DBDriver = strings.ToLower(getEnv("DB_DRIVER", cfg.DBDriver))
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPass = getEnv("DB_PASS", cfg.DBPass)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)

	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnv("REDIS_PORT", cfg.RedisPort)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)

	loadStorageEnv(&cfg.Storage)

	cfg.RabbitMQHost = getEnv("RABBITMQ_HOST", cfg.RabbitMQHost)
	cfg.RabbitMQPort = getEnv("RABBITMQ_PORT", cfg.RabbitMQPort)
	cfg.RabbitMQUser = getEnv("RABBITMQ_USER", cfg.RabbitMQUser)
	cfg.RabbitMQPass = getEnv("RABBITMQ_PASSWORD", cfg.RabbitMQPass)
	cfg.RabbitMQVhost = getEnv("RABBITMQ_VHOST", cfg.RabbitMQVhost)
	cfg.RabbitMQURL = getEnv("RABBITMQ_URL", cfg.RabbitMQURL)
	if cfg.RabbitMQURL == "" {
		cfg.RabbitMQURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(cfg.RabbitMQUser),
			url.PathEscape(cfg.RabbitMQPass),
			cfg.RabbitMQHost,
			cfg.RabbitMQPort,
			url.PathEscape(cfg.RabbitMQVhost),
		)
	}
	cfg.RabbitMQPrefetch = getEnvInt("RABBITMQ_PREFETCH", cfg.RabbitMQPrefetch)

	cfg.RetireWorkerConcurrency = getEnvInt("RETIRE_WORKER_CONCURRENCY", cfg.RetireWorkerConcurrency)
	cfg.RetireRate = getEnvFloat("RETIRE_RATE", cfg.RetireRate)
	cfg.RetireBurst = getEnvInt("RETIRE_BURST", cfg.RetireBurst)
	cfg.RetireRetryMax = getEnvInt("RETIRE_RETRY_MAX", cfg.RetireRetryMax)
	cfg.RetireRetryDelays = getEnvDurationList("RETIRE_RETRY_DELAYS", cfg.RetireRetryDelays)
	cfg.RetireDeleteTimeout = getEnvDuration("RETIRE_DELETE_TIMEOUT", cfg.RetireDeleteTimeout)
	cfg.RetireLease = getEnvDuration("RETIRE_LEASE", cfg.RetireLease)
	cfg.RetireGrace = getEnvDuration("RETIRE_GRACE", cfg.RetireGrace)
	cfg.RetireSweepInterval = getEnvDuration("RETIRE_SWEEP_INTERVAL", cfg.RetireSweepInterval)
	cfg.RetireSweepBatch = getEnvInt("RETIRE_SWEEP_BATCH", cfg.RetireSweepBatch)

	cfg.MailEnabled = getEnvBool("MAIL_ENABLED", cfg.MailEnabled)
	cfg.SMTPHost = getEnv("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = getEnv("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUser = getEnv("SMTP_USER", cfg.SMTPUser)
	cfg.SMTPPass = getEnv("SMTP_PASS", cfg.SMTPPass)
	cfg.SMTPFrom = getEnv("SMTP_FROM", cfg.SMTPFrom)
	cfg.SMTPTLS = getEnvBool("SMTP_TLS", cfg.SMTPTLS)
	cfg.SMTPStartTLS = getEnvBool("SMTP_STARTTLS", cfg.SMTPStartTLS)
	cfg.SMTPTimeout = getEnvDuration("SMTP_TIMEOUT", cfg.SMTPTimeout)

	cfg.MaxRecipients = getEnvInt("MAX_RECIPIENTS", cfg.MaxRecipients)
	cfg.AccessRate = getEnvFloat("ACCESS_RATE", cfg.AccessRate)
	cfg.AccessBurst = getEnvInt("ACCESS_BURST", cfg.AccessBurst)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.TokenPepper) == "" {
		errs = append(errs, errors.New("TOKEN_PEPPER is required"))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if _, err := url.ParseRequestURI(c.AppBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid APP_BASE_URL: %w", err))
	}
	if c.MaxRecipients <= 0 {
		errs = append(errs, errors.New("MAX_RECIPIENTS must be positive"))
	}
	if c.RetireDeleteTimeout <= 0 {
		errs = append(errs, errors.New("RETIRE_DELETE_TIMEOUT must be positive"))
	}
	if len(c.RetireRetryDelays) == 0 {
		errs = append(errs, errors.New("RETIRE_RETRY_DELAYS must not be empty"))
	}
	return errors.Join(errs...)
}
