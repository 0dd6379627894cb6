package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/leafnet-go/internal/privacy"
)

const systemIDFile = ".system_id"

// LoadOrCreateSystemID loads the system ID stored in dir or creates and saves a new one.
func LoadOrCreateSystemID(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	idFile := filepath.Join(dir, systemIDFile)
	if data, err := os.ReadFile(idFile); err == nil {
		id := strings.TrimSpace(string(data))
		if privacy.IsValidSystemID(id) {
			return id, nil
		}
	}

	id, err := privacy.GenerateSystemID()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(idFile, []byte(id), 0o644); err != nil {
		return "", fmt.Errorf("failed to save system ID: %w", err)
	}
	return id, nil
}
