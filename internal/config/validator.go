package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "worker.max_attempts")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateModel()...)
	errors = append(errors, c.validateBus()...)
	errors = append(errors, c.validateWorker()...)
	errors = append(errors, c.validateSkillAgent()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateModel validates the ModelConfig
func (c *Config) validateModel() []ValidationError {
	var errors []ValidationError

	if c.Model.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "model.name",
			Value:   c.Model.Name,
			Message: "must not be empty",
		})
	}
	if c.Model.MaxTokens < 0 {
		errors = append(errors, ValidationError{
			Field:   "model.max_tokens",
			Value:   c.Model.MaxTokens,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateBus validates the BusConfig
func (c *Config) validateBus() []ValidationError {
	var errors []ValidationError

	if c.Bus.Backend != "" && !IsValidBusBackend(c.Bus.Backend) {
		errors = append(errors, ValidationError{
			Field:   "bus.backend",
			Value:   c.Bus.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBusBackends(), ", ")),
		})
	}
	if c.Bus.Backend == "nats" && c.Bus.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "bus.url",
			Value:   c.Bus.URL,
			Message: "required for the nats backend",
		})
	}
	if c.Bus.AckWaitSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "bus.ack_wait_seconds",
			Value:   c.Bus.AckWaitSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateWorker validates the WorkerConfig
func (c *Config) validateWorker() []ValidationError {
	var errors []ValidationError

	if c.Worker.DistillWorkers < 1 {
		errors = append(errors, ValidationError{
			Field:   "worker.distill_workers",
			Value:   c.Worker.DistillWorkers,
			Message: "must be at least 1",
		})
	}
	if c.Worker.SkillWorkers < 1 {
		errors = append(errors, ValidationError{
			Field:   "worker.skill_workers",
			Value:   c.Worker.SkillWorkers,
			Message: "must be at least 1",
		})
	}
	if c.Worker.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "worker.max_attempts",
			Value:   c.Worker.MaxAttempts,
			Message: "must be at least 1",
		})
	}
	if c.Worker.BackoffBaseMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "worker.backoff_base_ms",
			Value:   c.Worker.BackoffBaseMs,
			Message: "must be non-negative",
		})
	}
	if c.Worker.BackoffMaxMs < c.Worker.BackoffBaseMs {
		errors = append(errors, ValidationError{
			Field:   "worker.backoff_max_ms",
			Value:   c.Worker.BackoffMaxMs,
			Message: "must be at least backoff_base_ms",
		})
	}
	if c.Worker.MessageTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "worker.message_timeout_seconds",
			Value:   c.Worker.MessageTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateSkillAgent validates the SkillAgentConfig
func (c *Config) validateSkillAgent() []ValidationError {
	var errors []ValidationError

	if c.SkillAgent.LeaseTTLSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "skill_agent.lease_ttl_seconds",
			Value:   c.SkillAgent.LeaseTTLSeconds,
			Message: "must be at least 1",
		})
	}
	if c.SkillAgent.MaxIterations < 1 {
		errors = append(errors, ValidationError{
			Field:   "skill_agent.max_iterations",
			Value:   c.SkillAgent.MaxIterations,
			Message: "must be at least 1",
		})
	}
	if c.SkillAgent.MaxTokens < 0 {
		errors = append(errors, ValidationError{
			Field:   "skill_agent.max_tokens",
			Value:   c.SkillAgent.MaxTokens,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
