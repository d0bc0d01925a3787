package config

import (
	"fmt"
	"os"
	"time"

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

type AdminConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
	APIKey    string `yaml:"api_key"` // shared key exchanged for an ops session
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // report cache TTL
}

type AIConfig struct {
	OpenAIKey       string            `yaml:"openai_key"`
	GeminiKey       string            `yaml:"gemini_key"`
	GeminiURL       string            `yaml:"gemini_url"`
	GatewayKey      string            `yaml:"gateway_key"` // OpenAI-compatible gateway
	GatewayBaseURL  string            `yaml:"gateway_base_url"`
	DefaultProvider string            `yaml:"default_provider"` // openai|gemini|gateway
	ModelProviders  map[string]string `yaml:"model_providers"`  // model -> provider
	ConcurrentLimit int               `yaml:"concurrent_limit"` // max concurrent calls per provider
}

// EngineConfig tunes the concurrent execution engine and its fault
// tolerance primitives.
type EngineConfig struct {
	Workers          int           `yaml:"workers"`
	MaxRetries       int           `yaml:"max_retries"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	Exponential      bool          `yaml:"exponential"`
	Jitter           bool          `yaml:"jitter"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	CallTimeout      time.Duration `yaml:"call_timeout"`     // baseline per-call deadline
	JobTimeout       time.Duration `yaml:"job_timeout"`      // global per-execution deadline
	ModelRateLimit   int           `yaml:"model_rate_limit"` // calls per model per window
	RateWindow       time.Duration `yaml:"rate_window"`
}

type RetentionConfig struct {
	ResolvedDays  int           `yaml:"resolved_days"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Engine    EngineConfig    `yaml:"engine"`
	Retention RetentionConfig `yaml:"retention"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads and validates the YAML config at path, applying defaults
// for everything tunable.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Admin.Port <= 0 {
		c.Admin.Port = 8090
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = 30 * time.Second
	}
	if c.AI.ConcurrentLimit <= 0 {
		c.AI.ConcurrentLimit = 16
	}
	if c.AI.DefaultProvider == "" {
		c.AI.DefaultProvider = "openai"
	}
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = 8
	}
	if c.Engine.MaxRetries < 0 {
		c.Engine.MaxRetries = 0
	}
	if c.Engine.BaseDelay <= 0 {
		c.Engine.BaseDelay = 500 * time.Millisecond
	}
	if c.Engine.MaxDelay < c.Engine.BaseDelay {
		c.Engine.MaxDelay = 30 * time.Second
	}
	if c.Engine.BreakerThreshold <= 0 {
		c.Engine.BreakerThreshold = 5
	}
	if c.Engine.BreakerCooldown <= 0 {
		c.Engine.BreakerCooldown = 30 * time.Second
	}
	if c.Engine.CallTimeout <= 0 {
		c.Engine.CallTimeout = 30 * time.Second
	}
	if c.Engine.JobTimeout <= 0 {
		c.Engine.JobTimeout = 10 * time.Minute
	}
	if c.Engine.ModelRateLimit <= 0 {
		c.Engine.ModelRateLimit = 60
	}
	if c.Engine.RateWindow <= 0 {
		c.Engine.RateWindow = time.Minute
	}
	if c.Retention.ResolvedDays <= 0 {
		c.Retention.ResolvedDays = 30
	}
	if c.Retention.SweepInterval <= 0 {
		c.Retention.SweepInterval = 6 * time.Hour
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	// dev mode may run on the noop sender
	if !c.Runtime.Dev && c.AI.OpenAIKey == "" && c.AI.GeminiKey == "" && c.AI.GatewayKey == "" {
		return fmt.Errorf("no AI provider configured: set ai.openai_key, ai.gemini_key or ai.gateway_key")
	}
	return nil
}
