// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "LEAFNET_DEBUG", validateEnvBool},

		// Server
		{"server.host", "LEAFNET_SERVER_HOST", nil},
		{"server.port", "LEAFNET_SERVER_PORT", validateEnvPort},
		{"server.requesttimeout", "LEAFNET_SERVER_REQUESTTIMEOUT", validateEnvDuration},
		{"server.bodylimit", "LEAFNET_SERVER_BODYLIMIT", nil},
		{"server.cache.enabled", "LEAFNET_SERVER_CACHE_ENABLED", validateEnvBool},
		{"server.ratelimit.enabled", "LEAFNET_SERVER_RATELIMIT_ENABLED", validateEnvBool},

		// Preprocessing
		{"imaging.filter", "LEAFNET_IMAGING_FILTER", validateEnvFilter},
		{"imaging.reencodequality", "LEAFNET_IMAGING_REENCODEQUALITY", validateEnvQuality},

		// Model slots
		{"models.species.modelpath", "LEAFNET_SPECIES_MODELPATH", nil},
		{"models.species.labelpath", "LEAFNET_SPECIES_LABELPATH", nil},
		{"models.health.modelpath", "LEAFNET_HEALTH_MODELPATH", nil},
		{"models.health.labelpath", "LEAFNET_HEALTH_LABELPATH", nil},
		{"onnx.sharedlibrarypath", "LEAFNET_ONNX_LIBRARY", nil},

		// Telemetry
		{"metrics.enabled", "LEAFNET_METRICS_ENABLED", validateEnvBool},
		{"sentry.enabled", "LEAFNET_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "LEAFNET_SENTRY_DSN", nil},
		{"sentry.dsnfile", "LEAFNET_SENTRY_DSN_FILE", nil},

		{"logging.default_level", "LEAFNET_LOG_LEVEL", validateEnvLogLevel},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("duration must not be negative, got %s", d)
	}
	return nil
}

func validateEnvFilter(value string) error {
	if !isValidFilter(value) {
		return fmt.Errorf("filter must be one of %s", strings.Join(validFilters, ", "))
	}
	return nil
}

func validateEnvQuality(value string) error {
	q, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid quality: %w", err)
	}
	return validateQuality(q)
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("log level must be trace, debug, info, warn or error")
	}
}
