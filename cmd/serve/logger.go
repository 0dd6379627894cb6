package serve

import (
	"sync"

	"github.com/tphakala/leafnet-go/internal/logger"
)

var (
	pkgLogger  logger.Logger
	loggerOnce sync.Once
)

// GetLogger returns the serve command logger.
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("serve")
	})
	return pkgLogger
}
