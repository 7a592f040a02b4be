package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default model config
	if cfg.Model.Name == "" {
		t.Error("Model.Name should not be empty by default")
	}
	if cfg.Model.MaxTokens != 4096 {
		t.Errorf("Model.MaxTokens = %d, want 4096", cfg.Model.MaxTokens)
	}

	// Verify default bus config
	if cfg.Bus.Backend != "memory" {
		t.Errorf("Bus.Backend = %q, want %q", cfg.Bus.Backend, "memory")
	}
	if cfg.Bus.AckWaitSeconds != 120 {
		t.Errorf("Bus.AckWaitSeconds = %d, want 120", cfg.Bus.AckWaitSeconds)
	}

	// Verify default redis config
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled should be false by default")
	}

	// Verify default worker config
	if cfg.Worker.MaxAttempts != 5 {
		t.Errorf("Worker.MaxAttempts = %d, want 5", cfg.Worker.MaxAttempts)
	}
	if cfg.Worker.BackoffBaseMs != 500 {
		t.Errorf("Worker.BackoffBaseMs = %d, want 500", cfg.Worker.BackoffBaseMs)
	}
	if cfg.Worker.BackoffMaxMs != 30000 {
		t.Errorf("Worker.BackoffMaxMs = %d, want 30000", cfg.Worker.BackoffMaxMs)
	}

	// Verify default skill agent config
	if cfg.SkillAgent.LeaseTTLSeconds != 120 {
		t.Errorf("SkillAgent.LeaseTTLSeconds = %d, want 120", cfg.SkillAgent.LeaseTTLSeconds)
	}
	if cfg.SkillAgent.MaxIterations != 8 {
		t.Errorf("SkillAgent.MaxIterations = %d, want 8", cfg.SkillAgent.MaxIterations)
	}

	// Verify default logging config
	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestDefaultPassesValidation(t *testing.T) {
	if errs := Default().Validate(); len(errs) > 0 {
		t.Errorf("Default() config fails validation: %v", ValidationErrors(errs))
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	if got := cfg.Bus.AckWait(); got != 120*time.Second {
		t.Errorf("AckWait() = %v, want 2m", got)
	}
	if got := cfg.Worker.BackoffBase(); got != 500*time.Millisecond {
		t.Errorf("BackoffBase() = %v, want 500ms", got)
	}
	if got := cfg.Worker.BackoffMax(); got != 30*time.Second {
		t.Errorf("BackoffMax() = %v, want 30s", got)
	}
	if got := cfg.Worker.MessageTimeout(); got != 5*time.Minute {
		t.Errorf("MessageTimeout() = %v, want 5m", got)
	}
	if got := cfg.SkillAgent.LeaseTTL(); got != 2*time.Minute {
		t.Errorf("LeaseTTL() = %v, want 2m", got)
	}
}

func TestSetDefaultsAndLoad(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bus.Backend != "memory" {
		t.Errorf("Bus.Backend = %q, want memory", cfg.Bus.Backend)
	}
	if cfg.Worker.MaxAttempts != 5 {
		t.Errorf("Worker.MaxAttempts = %d, want 5", cfg.Worker.MaxAttempts)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("bus.backend", "kafka")
	viper.Set("worker.max_attempts", 0)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() with invalid values should error")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("Load() error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d validation errors, want 2: %v", len(verrs), verrs)
	}
}

func TestLoadFromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("bus:\n  backend: nats\n  url: nats://queue:4222\nworker:\n  max_attempts: 7\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	SetDefaults()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bus.Backend != "nats" || cfg.Bus.URL != "nats://queue:4222" {
		t.Errorf("bus config = %+v", cfg.Bus)
	}
	if cfg.Worker.MaxAttempts != 7 {
		t.Errorf("Worker.MaxAttempts = %d, want 7", cfg.Worker.MaxAttempts)
	}
	// Untouched sections keep their defaults.
	if cfg.SkillAgent.MaxIterations != 8 {
		t.Errorf("SkillAgent.MaxIterations = %d, want default 8", cfg.SkillAgent.MaxIterations)
	}
}

func TestResolveLogDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty stays empty", "", ""},
		{"absolute unchanged", "/var/log/acontext", "/var/log/acontext"},
		{"tilde expands", "~/logs", filepath.Join(home, "logs")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PathsConfig{LogDir: tt.in}
			if got := p.ResolveLogDir(); got != tt.want {
				t.Errorf("ResolveLogDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	if got := ConfigDir(); got != "/tmp/xdg-test/acontext" {
		t.Errorf("ConfigDir() = %q", got)
	}
}

func TestIsValidBusBackend(t *testing.T) {
	for _, backend := range ValidBusBackends() {
		if !IsValidBusBackend(backend) {
			t.Errorf("IsValidBusBackend(%q) = false", backend)
		}
	}
	if IsValidBusBackend("kafka") {
		t.Error("IsValidBusBackend(kafka) = true")
	}
}
