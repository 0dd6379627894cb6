package classifier

import (
	"sync"

	"github.com/tphakala/leafnet-go/internal/logger"
)

var (
	pkgLogger logger.Logger
	initOnce  sync.Once
)

// GetLogger returns the classifier package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		pkgLogger = logger.Global().Module("classifier")
	})
	return pkgLogger
}
