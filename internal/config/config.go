// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AIConfig struct {
	OpenAIKey       string        `yaml:"openai_key"`
	BaseURL         string        `yaml:"base_url"`
	AssistantID     string        `yaml:"assistant_id"`
	DefaultModel    string        `yaml:"default_model"`
	ImageModel      string        `yaml:"image_model"`
	SpeechModel     string        `yaml:"speech_model"`
	Voice           string        `yaml:"voice"`
	GeminiKey       string        `yaml:"gemini_key"`
	GeminiURL       string        `yaml:"gemini_url"`
	Timeout         time.Duration `yaml:"timeout"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent provider calls
}

type PollConfig struct {
	Interval  time.Duration `yaml:"interval"`
	MaxChecks int           `yaml:"max_checks"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      int           `yaml:"rate_limit"`  // requests per window; 0 disables
	RateWindow     time.Duration `yaml:"rate_window"` // defaults to 1m
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	AI        AIConfig        `yaml:"ai"`
	Poll      PollConfig      `yaml:"poll"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, overlays secrets from the
// environment (a .env next to the process is loaded first if present),
// applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse is LoadConfig without the file read.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()
	applyEnv(&cfg)
	applyDefaults(&cfg)

	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overlay := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	overlay(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	overlay(&cfg.AI.AssistantID, "OPENAI_ASSISTANT_ID")
	overlay(&cfg.AI.BaseURL, "OPENAI_BASE_URL")
	overlay(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	overlay(&cfg.HTTP.JWTSecret, "TUTOR_JWT_SECRET")
	overlay(&cfg.Database.URL, "DATABASE_URL")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.ImageModel == "" {
		cfg.AI.ImageModel = "dall-e-3"
	}
	if cfg.AI.SpeechModel == "" {
		cfg.AI.SpeechModel = "tts-1"
	}
	if cfg.AI.Voice == "" {
		cfg.AI.Voice = "alloy"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 30 * time.Second
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = 2 * time.Second
	}
	if cfg.Poll.MaxChecks <= 0 {
		cfg.Poll.MaxChecks = 30
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.TokenTTL <= 0 {
		cfg.HTTP.TokenTTL = 24 * time.Hour
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 2 * time.Minute
	}
	if cfg.HTTP.RateWindow <= 0 {
		cfg.HTTP.RateWindow = time.Minute
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "magical-academy"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
}

// Validate performs minimal checks; optional backends stay optional. Dev
// mode runs against the in-memory job client and needs no credentials.
func (c *Config) Validate() error {
	if c.Runtime.Dev {
		return nil
	}
	if c.AI.OpenAIKey == "" {
		return errors.New("ai.openai_key (or OPENAI_API_KEY) is required")
	}
	if c.AI.AssistantID == "" {
		return errors.New("ai.assistant_id (or OPENAI_ASSISTANT_ID) is required")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * 24 * time.Hour
	}
	return d
}
