package api

import (
	"sync"

	"github.com/tphakala/leafnet-go/internal/logger"
)

var (
	pkgLogger logger.Logger
	initOnce  sync.Once
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		pkgLogger = logger.Global().Module("api")
	})
	return pkgLogger
}
