package monitor

import "github.com/tphakala/leafnet-go/internal/logger"

// GetLogger returns the module logger for the resource monitor
func GetLogger() logger.Logger {
	return logger.Global().Module("monitor")
}
