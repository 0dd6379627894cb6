// Package secrets resolves credentials that may be given inline, through
// environment variable references or as mounted secret files
// (/run/secrets/* in Docker, projected volumes in Kubernetes).
// Secret values are never logged or included in errors.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/logger"
)

// maxFileSize bounds a secret file; secrets are tokens, not documents.
const maxFileSize = 64 * 1024

// Expand replaces ${VAR} and ${VAR:-fallback} references in s. A referenced
// variable that is unset or empty and has no fallback is an error.
func Expand(s string) (string, error) {
	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile returns the contents of a secret file without trailing newlines.
// Files readable by group or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return "", fileError(fmt.Errorf("stat secret file: %w", err), clean)
	}
	if !info.Mode().IsRegular() {
		return "", fileError(errors.NewStd("secret path is not a regular file"), clean)
	}
	if info.Size() > maxFileSize {
		return "", fileError(fmt.Errorf("secret file exceeds %d bytes", maxFileSize), clean)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", fileError(fmt.Errorf("read secret file: %w", err), clean)
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fileError(errors.NewStd("secret file is empty"), clean)
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded. Both empty yields an empty secret.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	if value == "" {
		return "", nil
	}
	return Expand(value)
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
