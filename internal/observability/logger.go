// Package observability provides Prometheus metrics for the LeafNet server.
package observability

import (
	"sync"

	"github.com/tphakala/leafnet-go/internal/logger"
)

var (
	pkgLogger logger.Logger
	initOnce  sync.Once
)

// GetLogger returns the observability package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		pkgLogger = logger.Global().Module("observability")
	})
	return pkgLogger
}
