package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/esinanturan/Acontext/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify learner configuration",
	Long: `View or modify learner configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  acontext-learner config set bus.backend nats
  acontext-learner config set worker.max_attempts 3

Valid keys:
  model.name                 - Model identifier for the provider
  model.max_tokens           - Per-call completion budget
  bus.backend                - Message bus backend (memory, nats)
  bus.url                    - NATS server address
  redis.enabled              - Use Redis for locks and skill storage (true/false)
  redis.url                  - Redis address
  worker.distill_workers     - Consumers on the task-completion queue
  worker.skill_workers       - Consumers on the skill-update queue
  worker.max_attempts        - Requeue budget before dead-lettering
  worker.backoff_base_ms     - First requeue delay in milliseconds
  worker.backoff_max_ms      - Requeue delay cap in milliseconds
  skill_agent.lease_ttl_seconds - Exclusive hold per skill update
  skill_agent.max_iterations - Model calls per skill update
  logging.level              - Log level (debug, info, warn, error)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/acontext/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println("Current configuration:")
	fmt.Println()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("model:")
	fmt.Printf("  name: %s\n", cfg.Model.Name)
	fmt.Printf("  max_tokens: %d\n", cfg.Model.MaxTokens)

	fmt.Println("bus:")
	fmt.Printf("  backend: %s\n", cfg.Bus.Backend)
	fmt.Printf("  url: %s\n", cfg.Bus.URL)
	fmt.Printf("  ack_wait_seconds: %d\n", cfg.Bus.AckWaitSeconds)

	fmt.Println("redis:")
	fmt.Printf("  enabled: %v\n", cfg.Redis.Enabled)
	fmt.Printf("  url: %s\n", cfg.Redis.URL)

	fmt.Println("worker:")
	fmt.Printf("  distill_workers: %d\n", cfg.Worker.DistillWorkers)
	fmt.Printf("  skill_workers: %d\n", cfg.Worker.SkillWorkers)
	fmt.Printf("  max_attempts: %d\n", cfg.Worker.MaxAttempts)
	fmt.Printf("  backoff_base_ms: %d\n", cfg.Worker.BackoffBaseMs)
	fmt.Printf("  backoff_max_ms: %d\n", cfg.Worker.BackoffMaxMs)
	fmt.Printf("  message_timeout_seconds: %d\n", cfg.Worker.MessageTimeoutSeconds)

	fmt.Println("skill_agent:")
	fmt.Printf("  lease_ttl_seconds: %d\n", cfg.SkillAgent.LeaseTTLSeconds)
	fmt.Printf("  max_iterations: %d\n", cfg.SkillAgent.MaxIterations)

	fmt.Println("logging:")
	fmt.Printf("  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Printf("  level: %s\n", cfg.Logging.Level)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Validate the key exists
	validKeys := map[string]string{
		"model.name":                     "string",
		"model.max_tokens":               "int",
		"bus.backend":                    "string",
		"bus.url":                        "string",
		"bus.ack_wait_seconds":           "int",
		"redis.enabled":                  "bool",
		"redis.url":                      "string",
		"worker.distill_workers":         "int",
		"worker.skill_workers":           "int",
		"worker.max_attempts":            "int",
		"worker.backoff_base_ms":         "int",
		"worker.backoff_max_ms":          "int",
		"worker.message_timeout_seconds": "int",
		"skill_agent.lease_ttl_seconds":  "int",
		"skill_agent.max_iterations":     "int",
		"logging.level":                  "string",
	}

	keyType, ok := validKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'acontext-learner config set --help' to see valid keys", key)
	}

	// Validate the value based on type
	var typedValue interface{}
	switch keyType {
	case "string":
		if key == "bus.backend" && !config.IsValidBusBackend(value) {
			return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidBusBackends(), ", "))
		}
		typedValue = value
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = value == "true"
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = intVal
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set the value in viper
	viper.Set(key, typedValue)

	// Write to config file
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Set %s = %v\n", key, typedValue)
	fmt.Printf("Config saved to %s\n", configFile)

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'acontext-learner config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# Acontext learner configuration

# Model provider settings
model:
  # Model identifier passed to the provider
  name: claude-sonnet-4-5
  # Per-call completion budget
  max_tokens: 4096

# Message bus settings
bus:
  # Backend: memory (single process) or nats (distributed workers)
  backend: memory
  url: nats://127.0.0.1:4222
  # How long NATS waits for an ack before redelivering
  ack_wait_seconds: 120

# Lock service and skill store backend
redis:
  # When false both run in process and only serialize a single instance
  enabled: false
  url: redis://127.0.0.1:6379

# Consumer pools and retry policy
worker:
  distill_workers: 2
  skill_workers: 2
  # Requeue budget before a message dead-letters
  max_attempts: 5
  # First requeue delay; each attempt doubles it up to the cap
  backoff_base_ms: 500
  backoff_max_ms: 30000
  # Bound on one message's processing time (0 = unbounded)
  message_timeout_seconds: 300

# Skill update loop
skill_agent:
  lease_ttl_seconds: 120
  max_iterations: 8

# Logging
logging:
  enabled: true
  level: info
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	fmt.Println("Edit this file to customize the learner's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Println("\nSearch paths:")
	fmt.Printf("  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Printf("  2. $HOME/.config/acontext/config.yaml\n")
	fmt.Printf("  3. ./config.yaml (current directory)\n")
	fmt.Println("\nEnvironment variables: ACONTEXT_* (e.g., ACONTEXT_WORKER_MAX_ATTEMPTS)")

	return nil
}
