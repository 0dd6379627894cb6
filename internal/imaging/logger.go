package imaging

import (
	"sync"

	"github.com/tphakala/leafnet-go/internal/logger"
)

var (
	pkgLogger logger.Logger
	initOnce  sync.Once
)

// GetLogger returns the imaging package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		pkgLogger = logger.Global().Module("imaging")
	})
	return pkgLogger
}
