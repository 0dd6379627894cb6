// conf/validate.go

package conf

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

var validFilters = []string{"nearest", "bilinear", "bicubic", "lanczos3"}

// slotNamePattern keeps slot names usable as URL path segments
var slotNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// bodyLimitPattern matches echo's size notation, e.g. 512K, 10M, 1G
var bodyLimitPattern = regexp.MustCompile(`^[0-9]+([KMGTP]B?)?$`)

func isValidFilter(name string) bool {
	return slices.Contains(validFilters, strings.ToLower(name))
}

func validateQuality(q int) error {
	if q < 0 || q > 100 {
		return fmt.Errorf("re-encode quality must be between 0 and 100, got %d", q)
	}
	return nil
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateServerSettings(&settings.Server)...)
	ve.Errors = append(ve.Errors, validateImagingSettings(&settings.Imaging)...)
	ve.Errors = append(ve.Errors, validateModelSettings(settings.Models)...)

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no DSN is configured")
	}
	if settings.Sentry.SampleRate < 0 || settings.Sentry.SampleRate > 1 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("sentry sample rate must be between 0 and 1, got %g", settings.Sentry.SampleRate))
	}
	if settings.Metrics.Enabled && !strings.HasPrefix(settings.Metrics.Path, "/") {
		ve.Errors = append(ve.Errors, "metrics path must start with '/'")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateServerSettings(s *ServerSettings) []string {
	var errs []string

	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server port must be between 1 and 65535, got %d", s.Port))
	}
	if s.RequestTimeout < 0 {
		errs = append(errs, "server request timeout must not be negative")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "server shutdown timeout must be positive")
	}
	if s.BodyLimit != "" && !bodyLimitPattern.MatchString(strings.ToUpper(s.BodyLimit)) {
		errs = append(errs, fmt.Sprintf("server body limit %q is not a valid size", s.BodyLimit))
	}
	if s.RateLimit.Enabled {
		if s.RateLimit.RPS <= 0 {
			errs = append(errs, "rate limit rps must be positive")
		}
		if s.RateLimit.Burst < 1 {
			errs = append(errs, "rate limit burst must be at least 1")
		}
	}
	if s.Cache.Enabled && s.Cache.TTL <= 0 {
		errs = append(errs, "cache ttl must be positive when the cache is enabled")
	}

	return errs
}

func validateImagingSettings(s *ImagingSettings) []string {
	var errs []string

	if s.Width < 1 || s.Height < 1 {
		errs = append(errs, fmt.Sprintf("imaging size must be positive, got %dx%d", s.Width, s.Height))
	}
	if !isValidFilter(s.Filter) {
		errs = append(errs, fmt.Sprintf("imaging filter %q must be one of %s", s.Filter, strings.Join(validFilters, ", ")))
	}
	if err := validateQuality(s.ReencodeQuality); err != nil {
		errs = append(errs, err.Error())
	}

	return errs
}

func validateModelSettings(models map[string]ModelSettings) []string {
	if len(models) == 0 {
		return []string{"at least one model slot must be configured"}
	}

	var errs []string
	for _, name := range sortedKeys(models) {
		m := models[name]
		if !slotNamePattern.MatchString(name) {
			errs = append(errs, fmt.Sprintf("model slot name %q must be lowercase letters, digits, '-' or '_'", name))
		}
		if m.ModelPath == "" {
			errs = append(errs, fmt.Sprintf("model slot %q has no model path", name))
		}
		if len(m.Labels) == 0 && m.LabelPath == "" {
			errs = append(errs, fmt.Sprintf("model slot %q needs labels or a label path", name))
		}
		seen := make(map[string]int, len(m.Labels))
		for i, label := range m.Labels {
			if strings.TrimSpace(label) == "" {
				errs = append(errs, fmt.Sprintf("model slot %q label %d is empty", name, i))
				continue
			}
			if prev, dup := seen[label]; dup {
				errs = append(errs, fmt.Sprintf("model slot %q label %q appears at %d and %d", name, label, prev, i))
			}
			seen[label] = i
		}
		if m.Threads < 0 {
			errs = append(errs, fmt.Sprintf("model slot %q threads must not be negative", name))
		}
	}

	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
