package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// SyncConfig 同步调度配置
type SyncConfig struct {
	IntervalSeconds  int `yaml:"interval_seconds"`
	Workers          int `yaml:"workers"`
	MaxRetries       int `yaml:"max_retries"`
	RetryBaseMillis  int `yaml:"retry_base_millis"`
	StalenessSeconds int `yaml:"staleness_seconds"`
}

type ProviderConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	TokenTTLSecs   int    `yaml:"token_ttl_seconds"`
}

type CredstoreConfig struct {
	// Key is the hex-encoded 32-byte secretbox key.
	Key string `yaml:"key"`
}

type Config struct {
	DB        DBConfig        `yaml:"db"`
	MQ        MQConfig        `yaml:"mq"`
	Redis     RedisConfig     `yaml:"redis"`
	Server    ServerConfig    `yaml:"server"`
	Sync      SyncConfig      `yaml:"sync"`
	Provider  ProviderConfig  `yaml:"provider"`
	Credstore CredstoreConfig `yaml:"credstore"`
}

func Load() *Config {
	f, err := os.Open("config.yaml")
	if err != nil {
		log.Fatalf("failed to open config.yaml: %v", err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config.yaml: %v", err)
	}

	// 环境变量覆盖（生产环境使用）
	overrideFromEnv(&cfg)

	applyDefaults(&cfg)

	return &cfg
}

func overrideFromEnv(cfg *Config) {
	// DB配置
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}

	// MQ配置
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}

	// Redis配置
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	// Provider配置
	if url := os.Getenv("PROVIDER_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}

	// Credstore 密钥只从环境变量读取更安全
	if key := os.Getenv("CREDSTORE_KEY"); key != "" {
		cfg.Credstore.Key = key
	}

	// Server配置
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.IntervalSeconds <= 0 {
		cfg.Sync.IntervalSeconds = 60
	}
	if cfg.Sync.Workers <= 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.MaxRetries <= 0 {
		cfg.Sync.MaxRetries = 3
	}
	if cfg.Sync.RetryBaseMillis <= 0 {
		cfg.Sync.RetryBaseMillis = 500
	}
	if cfg.Sync.StalenessSeconds <= 0 {
		cfg.Sync.StalenessSeconds = 10 * cfg.Sync.IntervalSeconds
	}
	if cfg.Provider.TimeoutSeconds <= 0 {
		cfg.Provider.TimeoutSeconds = 15
	}
	if cfg.Provider.TokenTTLSecs <= 0 {
		cfg.Provider.TokenTTLSecs = 60
	}
}
