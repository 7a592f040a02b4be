package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete learner configuration
type Config struct {
	Model      ModelConfig      `mapstructure:"model"`
	Bus        BusConfig        `mapstructure:"bus"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Distill    DistillConfig    `mapstructure:"distill"`
	SkillAgent SkillAgentConfig `mapstructure:"skill_agent"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Paths      PathsConfig      `mapstructure:"paths"`
}

// ModelConfig controls the model provider
type ModelConfig struct {
	// Name is the model identifier passed to the provider
	Name string `mapstructure:"name"`
	// APIKey overrides the provider's environment lookup when set
	APIKey string `mapstructure:"api_key"`
	// MaxTokens is the per-call completion budget
	MaxTokens int64 `mapstructure:"max_tokens"`
}

// BusConfig controls the message bus backend
type BusConfig struct {
	// Backend selects the bus implementation: "memory" or "nats"
	Backend string `mapstructure:"backend"`
	// URL is the NATS server address (ignored for the memory backend)
	URL string `mapstructure:"url"`
	// AckWaitSeconds is how long NATS waits for an ack before redelivery
	AckWaitSeconds int `mapstructure:"ack_wait_seconds"`
}

// RedisConfig controls the lock service and skill store backend
type RedisConfig struct {
	// Enabled switches the lock service and skill store to Redis.
	// When false both run in process, which only serializes writers
	// inside a single learner instance.
	Enabled bool `mapstructure:"enabled"`
	// URL is the Redis address, e.g. "redis://127.0.0.1:6379"
	URL string `mapstructure:"url"`
}

// WorkerConfig controls consumer pools and their retry policy
type WorkerConfig struct {
	// DistillWorkers is the consumer count on the task-completion queue
	DistillWorkers int `mapstructure:"distill_workers"`
	// SkillWorkers is the consumer count on the skill-update queue
	SkillWorkers int `mapstructure:"skill_workers"`
	// MaxAttempts is the requeue budget before a message dead-letters
	MaxAttempts int `mapstructure:"max_attempts"`
	// BackoffBaseMs is the first requeue delay in milliseconds; each
	// attempt doubles it
	BackoffBaseMs int `mapstructure:"backoff_base_ms"`
	// BackoffMaxMs caps the requeue delay in milliseconds
	BackoffMaxMs int `mapstructure:"backoff_max_ms"`
	// MessageTimeoutSeconds bounds one message's processing time (0 = unbounded)
	MessageTimeoutSeconds int `mapstructure:"message_timeout_seconds"`
}

// DistillConfig controls the distillation controller
type DistillConfig struct {
	// MaxTokens overrides model.max_tokens for judging calls (0 = inherit)
	MaxTokens int64 `mapstructure:"max_tokens"`
}

// SkillAgentConfig controls the skill update loop
type SkillAgentConfig struct {
	// LeaseTTLSeconds is the exclusive hold granted per skill update
	LeaseTTLSeconds int `mapstructure:"lease_ttl_seconds"`
	// MaxIterations caps model calls per skill update
	MaxIterations int `mapstructure:"max_iterations"`
	// MaxTokens overrides model.max_tokens for update calls (0 = inherit)
	MaxTokens int64 `mapstructure:"max_tokens"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether file logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// PathsConfig controls where the learner stores data
type PathsConfig struct {
	// LogDir is the directory for log files.
	// If empty, logs go to stderr. Supports ~ for home directory expansion.
	LogDir string `mapstructure:"log_dir"`
}

// ResolveLogDir returns the resolved log directory path, or "" when file
// logging is disabled.
func (p *PathsConfig) ResolveLogDir() string {
	path := p.LogDir
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}
	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Name:      "claude-sonnet-4-5",
			APIKey:    "", // Empty means use the provider's environment lookup
			MaxTokens: 4096,
		},
		Bus: BusConfig{
			Backend:        "memory",
			URL:            "nats://127.0.0.1:4222",
			AckWaitSeconds: 120,
		},
		Redis: RedisConfig{
			Enabled: false,
			URL:     "redis://127.0.0.1:6379",
		},
		Worker: WorkerConfig{
			DistillWorkers:        2,
			SkillWorkers:          2,
			MaxAttempts:           5,
			BackoffBaseMs:         500,
			BackoffMaxMs:          30000,
			MessageTimeoutSeconds: 300,
		},
		Distill: DistillConfig{
			MaxTokens: 0, // Inherit model.max_tokens
		},
		SkillAgent: SkillAgentConfig{
			LeaseTTLSeconds: 120,
			MaxIterations:   8,
			MaxTokens:       0, // Inherit model.max_tokens
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Paths: PathsConfig{
			LogDir: "", // Empty means log to stderr
		},
	}
}

// AckWait returns the NATS ack wait as a time.Duration
func (c *BusConfig) AckWait() time.Duration {
	return time.Duration(c.AckWaitSeconds) * time.Second
}

// BackoffBase returns the first requeue delay as a time.Duration
func (c *WorkerConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// BackoffMax returns the requeue delay cap as a time.Duration
func (c *WorkerConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// MessageTimeout returns the per-message processing bound (0 means unbounded)
func (c *WorkerConfig) MessageTimeout() time.Duration {
	return time.Duration(c.MessageTimeoutSeconds) * time.Second
}

// LeaseTTL returns the skill lease duration as a time.Duration
func (c *SkillAgentConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Model defaults
	viper.SetDefault("model.name", defaults.Model.Name)
	viper.SetDefault("model.api_key", defaults.Model.APIKey)
	viper.SetDefault("model.max_tokens", defaults.Model.MaxTokens)

	// Bus defaults
	viper.SetDefault("bus.backend", defaults.Bus.Backend)
	viper.SetDefault("bus.url", defaults.Bus.URL)
	viper.SetDefault("bus.ack_wait_seconds", defaults.Bus.AckWaitSeconds)

	// Redis defaults
	viper.SetDefault("redis.enabled", defaults.Redis.Enabled)
	viper.SetDefault("redis.url", defaults.Redis.URL)

	// Worker defaults
	viper.SetDefault("worker.distill_workers", defaults.Worker.DistillWorkers)
	viper.SetDefault("worker.skill_workers", defaults.Worker.SkillWorkers)
	viper.SetDefault("worker.max_attempts", defaults.Worker.MaxAttempts)
	viper.SetDefault("worker.backoff_base_ms", defaults.Worker.BackoffBaseMs)
	viper.SetDefault("worker.backoff_max_ms", defaults.Worker.BackoffMaxMs)
	viper.SetDefault("worker.message_timeout_seconds", defaults.Worker.MessageTimeoutSeconds)

	// Distill defaults
	viper.SetDefault("distill.max_tokens", defaults.Distill.MaxTokens)

	// Skill agent defaults
	viper.SetDefault("skill_agent.lease_ttl_seconds", defaults.SkillAgent.LeaseTTLSeconds)
	viper.SetDefault("skill_agent.max_iterations", defaults.SkillAgent.MaxIterations)
	viper.SetDefault("skill_agent.max_tokens", defaults.SkillAgent.MaxTokens)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	// Paths defaults
	viper.SetDefault("paths.log_dir", defaults.Paths.LogDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "acontext")
	}
	// Fall back to ~/.config/acontext
	home, err := os.UserHomeDir()
	if err != nil {
		return ".acontext"
	}
	return filepath.Join(home, ".config", "acontext")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidBusBackends returns the list of valid bus backend values
func ValidBusBackends() []string {
	return []string{"memory", "nats"}
}

// IsValidBusBackend checks if the given backend is valid
func IsValidBusBackend(backend string) bool {
	for _, valid := range ValidBusBackends() {
		if backend == valid {
			return true
		}
	}
	return false
}
