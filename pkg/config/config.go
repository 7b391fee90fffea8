package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Gateway struct {
	Addr string `yaml:"addr"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Scylla struct {
	Hosts    []string `yaml:"hosts"`
	Keyspace string   `yaml:"keyspace"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
}

type Redis struct {
	Addr string `yaml:"addr"`
}

type Blob struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"baseUrl"`
	Secret  string `yaml:"secret"`
}

type Cache struct {
	MemberTTL time.Duration `yaml:"memberTtl"`
	UserTTL   time.Duration `yaml:"userTtl"`
}

type Config struct {
	Gateway  Gateway  `yaml:"gateway"`
	Postgres Postgres `yaml:"postgres"`
	Scylla   Scylla   `yaml:"scylla"`
	Kafka    Kafka    `yaml:"kafka"`
	Redis    Redis    `yaml:"redis"`
	Blob     Blob     `yaml:"blob"`
	Cache    Cache    `yaml:"cache"`
}

// Load reads the YAML config named by CONFIG_PATH, falling back to
// ./config/config.yaml.
func Load() (*Config, error) {
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
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Blob.Secret == "" {
		return errors.New("blob.secret is required")
	}
	if c.Gateway.Addr == "" {
		c.Gateway.Addr = ":8080"
	}
	if len(c.Scylla.Hosts) == 0 {
		c.Scylla.Hosts = []string{"localhost:9042"}
	}
	if c.Scylla.Keyspace == "" {
		c.Scylla.Keyspace = "chat"
	}
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Blob.Dir == "" {
		c.Blob.Dir = "./data/blobs"
	}
	if c.Blob.BaseURL == "" {
		c.Blob.BaseURL = "http://localhost:8080"
	}
	if c.Cache.MemberTTL <= 0 {
		c.Cache.MemberTTL = 30 * time.Second
	}
	if c.Cache.UserTTL <= 0 {
		c.Cache.UserTTL = 60 * time.Second
	}
	return nil
}
