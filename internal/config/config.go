package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type DispatchConfig struct {
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

type WorkerConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	RetryWindow   time.Duration `mapstructure:"retry_window"`
}

type AuthConfig struct {
	Secret      string        `mapstructure:"secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

// WebhookConfig controls provider callback verification. An empty secret
// disables signature checks.
type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// secrets is populated from NOTIFY_* environment variables and takes
// precedence over anything in the config file. Credentials never have to
// live on disk.
type secrets struct {
	DBPassword    string `envconfig:"DB_PASSWORD"`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD"`
	AuthSecret    string `envconfig:"AUTH_SECRET"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
	RedisURL      string `envconfig:"REDIS_URL"`
}

func LoadConfig() (*Config, error) {
	return LoadConfigFrom(".", "./config", "/app", "/app/config")
}

// LoadConfigFrom reads config.yml from the first of paths that has one.
func LoadConfigFrom(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var sec secrets
	if err := envconfig.Process("notify", &sec); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	if sec.DBPassword != "" {
		config.Database.Password = sec.DBPassword
	}
	if sec.SMTPPassword != "" {
		config.SMTP.Password = sec.SMTPPassword
	}
	if sec.AuthSecret != "" {
		config.Auth.Secret = sec.AuthSecret
	}
	if sec.WebhookSecret != "" {
		config.Webhook.Secret = sec.WebhookSecret
	}
	if sec.RedisURL != "" {
		config.Redis.URL = sec.RedisURL
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = 100
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = 200
	}
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = 50
	}
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = 5 * time.Second
	}
	if c.Worker.RetryInterval <= 0 {
		c.Worker.RetryInterval = time.Minute
	}
	if c.Worker.MaxAttempts <= 0 {
		c.Worker.MaxAttempts = 3
	}
	if c.Worker.RetryBackoff <= 0 {
		c.Worker.RetryBackoff = 30 * time.Second
	}
	if c.Auth.TokenExpiry <= 0 {
		c.Auth.TokenExpiry = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
