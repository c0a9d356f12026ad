package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"emailthing/pkg/config"
)

type Config struct {
	Env    string              `yaml:"-"`
	DB     config.DBConfig     `yaml:"db"`
	MQ     config.MQConfig     `yaml:"mq"`
	Redis  config.RedisConfig  `yaml:"redis"`
	JWT    config.JWTConfig    `yaml:"jwt"`
	Server config.ServerConfig `yaml:"server"`
	List   config.ListConfig   `yaml:"list"`
	Cache  config.CacheConfig  `yaml:"cache"`
	Otel   config.OtelConfig   `yaml:"otel"`
	// SQLitePath, when set, serves reads from a local SQLite mirror instead of PostgreSQL.
	SQLitePath string `yaml:"sqlite_path"`
	// AutoMigrate applies goose migrations on startup.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// Load reads the service config for CONFIG_ENV from CONFIG_DIR and exits on failure.
func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfg, err := LoadFrom(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom loads config from configDir. Environment overrides win over files.
func LoadFrom(env, configDir string) (*Config, error) {
	var cfg Config
	if err := config.Decode(env, configDir, &cfg); err != nil {
		return nil, err
	}
	cfg.Env = env

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.MQ.AccessQueue == "" {
		cfg.MQ.AccessQueue = "emailthing.mailbox_access"
	}
	if cfg.Otel.ServiceName == "" {
		cfg.Otel.ServiceName = "emailthing"
	}
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" || strings.HasPrefix(c.JWT.Secret, "${") {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.SQLitePath == "" && c.DB.Host == "" {
		return fmt.Errorf("db.host or sqlite_path is required")
	}
	if c.List.MaxPageSize < 0 || c.List.DefaultPageSize < 0 {
		return fmt.Errorf("list page sizes must not be negative")
	}
	return nil
}
