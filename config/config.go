package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // session-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

type Redis struct {
	Addr string `yaml:"addr"`
}

type Bus struct {
	Enabled bool `yaml:"enabled"` // межинстансовый fanout через redis pub/sub
}

type Sweep struct {
	Interval string `yaml:"interval"` // "@every 5m" и т.п.
}

type Exec struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"` // "30s"
}

type OAuth struct {
	TokenURL     string `yaml:"tokenUrl"`
	ProfileURL   string `yaml:"profileUrl"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	RedirectURI  string `yaml:"redirectUri"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Logging   Logging   `yaml:"logging"`
	Postgres  Postgres  `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Bus       Bus       `yaml:"bus"`
	Sweep     Sweep     `yaml:"sweep"`
	Exec      Exec      `yaml:"exec"`
	OAuth     OAuth     `yaml:"oauth"`
	CORS      CORS      `yaml:"cors"`
	RateLimit RateLimit `yaml:"ratelimit"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Exec.URL == "" {
		return errors.New("exec.url is required")
	}
	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "session-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 10
	}
	if c.Sweep.Interval == "" {
		c.Sweep.Interval = "@every 5m"
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RPS) * 2
	}
	return nil
}

// ExecTimeout парсит exec.timeout; дефолт 30s.
func (c *Config) ExecTimeout() time.Duration {
	return parseDurationOr(30*time.Second, c.Exec.Timeout)
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
