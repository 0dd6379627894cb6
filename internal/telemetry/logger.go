package telemetry

import (
	"sync"

	"github.com/tphakala/leafnet-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the telemetry package logger.
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("telemetry")
	})
	return serviceLogger
}
