package secrets

import "github.com/tphakala/leafnet-go/internal/logger"

// GetLogger returns the secrets module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("secrets")
}
