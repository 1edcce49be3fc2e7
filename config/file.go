package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the TOML layout of CONFIG_FILE. Empty values leave the
// defaults untouched.
type fileConfig struct {
	HTTPAddr    string `toml:"http_addr"`
	AppBaseURL  string `toml:"app_base_url"`
	JWTSecret   string `toml:"jwt_secret"`
	TokenPepper string `toml:"token_pepper"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	Database struct {
		Driver     string `toml:"driver"`
		Host       string `toml:"host"`
		Port       string `toml:"port"`
		User       string `toml:"user"`
		Password   string `toml:"password"`
		Name       string `toml:"name"`
		SQLitePath string `toml:"sqlite_path"`
	} `toml:"database"`

	Redis struct {
		Host     string `toml:"host"`
		Port     string `toml:"port"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
	} `toml:"redis"`

	Storage struct {
		Host          string `toml:"host"`
		Port          string `toml:"port"`
		Username      string `toml:"username"`
		Password      string `toml:"password"`
		UseSSL        *bool  `toml:"use_ssl"`
		Bucket        string `toml:"bucket"`
		PublicBaseURL string `toml:"public_base_url"`
		URLExpiry     string `toml:"url_expiry"`
	} `toml:"storage"`

	RabbitMQ struct {
		URL      string `toml:"url"`
		Prefetch int    `toml:"prefetch"`
	} `toml:"rabbitmq"`

	Retire struct {
		WorkerConcurrency int      `toml:"worker_concurrency"`
		Rate              float64  `toml:"rate"`
		Burst             int      `toml:"burst"`
		RetryMax          int      `toml:"retry_max"`
		RetryDelays       []string `toml:"retry_delays"`
		DeleteTimeout     string   `toml:"delete_timeout"`
		Lease             string   `toml:"lease"`
		Grace             string   `toml:"grace"`
		SweepInterval     string   `toml:"sweep_interval"`
		SweepBatch        int      `toml:"sweep_batch"`
	} `toml:"retire"`

	Mail struct {
		Enabled  *bool  `toml:"enabled"`
		Host     string `toml:"host"`
		Port     string `toml:"port"`
		User     string `toml:"user"`
		Password string `toml:"password"`
		From     string `toml:"from"`
		TLS      *bool  `toml:"tls"`
		StartTLS *bool  `toml:"starttls"`
		Timeout  string `toml:"timeout"`
	} `toml:"mail"`

	Share struct {
		MaxRecipients int     `toml:"max_recipients"`
		AccessRate    float64 `toml:"access_rate"`
		AccessBurst   int     `toml:"access_burst"`
	} `toml:"share"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var fc fileConfig
	md, err := toml.Decode(string(data), &fc)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("config file %s contains undecoded keys: %s", path, strings.Join(keys, ", ")))
	}
	return overlayFileConfig(cfg, &fc)
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func overlayFileConfig(cfg *Config, fc *fileConfig) error {
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.AppBaseURL, fc.AppBaseURL)
	setString(&cfg.JWTSecret, fc.JWTSecret)
	setString(&cfg.TokenPepper, fc.TokenPepper)
	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFormat, fc.Log.Format)

	setString(&cfg.DBDriver, fc.Database.Driver)
	setString(&cfg.DBHost, fc.Database.Host)
	setString(&cfg.DBPort, fc.Database.Port)
	setString(&cfg.DBUser, fc.Database.User)
	setString(&cfg.DBPass, fc.Database.Password)
	setString(&cfg.DBName, fc.Database.Name)
	setString(&cfg.SQLitePath, fc.Database.SQLitePath)

	setString(&cfg.RedisHost, fc.Redis.Host)
	setString(&cfg.RedisPort, fc.Redis.Port)
	setString(&cfg.RedisPassword, fc.Redis.Password)
	setInt(&cfg.RedisDB, fc.Redis.DB)

	setString(&cfg.Storage.MinioHost, fc.Storage.Host)
	setString(&cfg.Storage.MinioPort, fc.Storage.Port)
	setString(&cfg.Storage.MinioUsername, fc.Storage.Username)
	setString(&cfg.Storage.MinioPassword, fc.Storage.Password)
	setBool(&cfg.Storage.MinioUseSSL, fc.Storage.UseSSL)
	setString(&cfg.Storage.BucketName, fc.Storage.Bucket)
	setString(&cfg.Storage.PublicBaseURL, fc.Storage.PublicBaseURL)
	if err := setDuration(&cfg.Storage.URLExpiry, "storage.url_expiry", fc.Storage.URLExpiry); err != nil {
		return err
	}

	setString(&cfg.RabbitMQURL, fc.RabbitMQ.URL)
	setInt(&cfg.RabbitMQPrefetch, fc.RabbitMQ.Prefetch)

	setInt(&cfg.RetireWorkerConcurrency, fc.Retire.WorkerConcurrency)
	setFloat(&cfg.RetireRate, fc.Retire.Rate)
	setInt(&cfg.RetireBurst, fc.Retire.Burst)
	setInt(&cfg.RetireRetryMax, fc.Retire.RetryMax)
	if len(fc.Retire.RetryDelays) > 0 {
		delays, err := parseDurationList(fc.Retire.RetryDelays)
		if err != nil {
			return fmt.Errorf("invalid retire.retry_delays: %w", err)
		}
		cfg.RetireRetryDelays = delays
	}
	if err := setDuration(&cfg.RetireDeleteTimeout, "retire.delete_timeout", fc.Retire.DeleteTimeout); err != nil {
		return err
	}
	if err := setDuration(&cfg.RetireLease, "retire.lease", fc.Retire.Lease); err != nil {
		return err
	}
	if err := setDuration(&cfg.RetireGrace, "retire.grace", fc.Retire.Grace); err != nil {
		return err
	}
	if err := setDuration(&cfg.RetireSweepInterval, "retire.sweep_interval", fc.Retire.SweepInterval); err != nil {
		return err
	}
	setInt(&cfg.RetireSweepBatch, fc.Retire.SweepBatch)

	setBool(&cfg.MailEnabled, fc.Mail.Enabled)
	setString(&cfg.SMTPHost, fc.Mail.Host)
	setString(&cfg.SMTPPort, fc.Mail.Port)
	setString(&cfg.SMTPUser, fc.Mail.User)
	setString(&cfg.SMTPPass, fc.Mail.Password)
	setString(&cfg.SMTPFrom, fc.Mail.From)
	setBool(&cfg.SMTPTLS, fc.Mail.TLS)
	setBool(&cfg.SMTPStartTLS, fc.Mail.StartTLS)
	if err := setDuration(&cfg.SMTPTimeout, "mail.timeout", fc.Mail.Timeout); err != nil {
		return err
	}

	setInt(&cfg.MaxRecipients, fc.Share.MaxRecipients)
	setFloat(&cfg.AccessRate, fc.Share.AccessRate)
	setInt(&cfg.AccessBurst, fc.Share.AccessBurst)
	return nil
}
