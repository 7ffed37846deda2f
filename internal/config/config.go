package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"readTimeout"`
		WriteTimeout time.Duration `yaml:"writeTimeout"`
		// AllowedOrigins for the browser UI (CORS)
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`

	AI struct {
		Provider       string        `yaml:"provider"` // openai | gemini
		Model          string        `yaml:"model"`
		APIKey         string        `yaml:"apiKey"`
		BaseURL        string        `yaml:"baseURL"`
		MaxTokens      int           `yaml:"maxTokens"`
		Timeout        time.Duration `yaml:"timeout"`
		ResponseFormat string        `yaml:"responseFormat"` // json_schema | json_object
	} `yaml:"ai"`

	Image struct {
		MaxBytes       int64    `yaml:"maxBytes"`
		AllowedFormats []string `yaml:"allowedFormats"`
	} `yaml:"image"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | sqlite | "" (in-memory)
		Path     string `yaml:"path"`   // sqlite file
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Auth struct {
		// APIKeys maps a client name to its key; empty disables the check
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		Capacity        int `yaml:"capacity"`
		RefillPerSecond int `yaml:"refillPerSecond"`
	} `yaml:"rateLimit"`

	// Redis, when Addr is set, shares rate limits across replicas
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	History struct {
		Enabled bool `yaml:"enabled"`
		// SummaryLimit is how many recent records a summary covers by default
		SummaryLimit int `yaml:"summaryLimit"`
	} `yaml:"history"`
}

// Load baca file config.yaml, lalu .env dan environment untuk secret.
// A missing file is not an error: defaults and environment still apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("COWHEALTH_AI_PROVIDER"); v != "" {
		c.AI.Provider = v
	}
	if v := os.Getenv("COWHEALTH_AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if c.AI.APIKey == "" {
		switch strings.ToLower(c.AI.Provider) {
		case "gemini":
			c.AI.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
		default:
			c.AI.APIKey = firstEnv("OPENAI_API_KEY")
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && c.AI.BaseURL == "" {
		c.AI.BaseURL = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	// COWHEALTH_API_KEYS=name1:key1,name2:key2
	if v := os.Getenv("COWHEALTH_API_KEYS"); v != "" {
		if c.Auth.APIKeys == nil {
			c.Auth.APIKeys = map[string]string{}
		}
		for _, pair := range strings.Split(v, ",") {
			name, key, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if ok && name != "" && key != "" {
				c.Auth.APIKeys[name] = key
			}
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	// three model calls per analysis
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 120 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "openai"
	}
	c.AI.Provider = strings.ToLower(c.AI.Provider)
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 60 * time.Second
	}
	if c.Image.MaxBytes == 0 {
		c.Image.MaxBytes = 5 << 20
	}
	if len(c.Image.AllowedFormats) == 0 {
		c.Image.AllowedFormats = []string{"jpeg", "png", "gif", "webp"}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "cowhealth.db"
	}
	if c.Database.Driver == "postgres" && c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "mysql":
			c.Database.Port = 3306
		case "postgres":
			c.Database.Port = 5432
		}
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 30
	}
	if c.RateLimit.RefillPerSecond == 0 {
		c.RateLimit.RefillPerSecond = 1
	}
	if c.History.SummaryLimit == 0 {
		c.History.SummaryLimit = 20
	}
}

// Validate checks values that would otherwise fail late at request time.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown ai.provider %q (allowed: openai, gemini)", c.AI.Provider)
	}
	switch c.AI.ResponseFormat {
	case "", "json_schema", "json_object":
	default:
		return fmt.Errorf("unknown ai.responseFormat %q", c.AI.ResponseFormat)
	}
	switch c.Database.Driver {
	case "", "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database.driver %q (allowed: mysql, postgres, sqlite)", c.Database.Driver)
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
