package classify

import (
	"sync"

	"github.com/tphakala/leafnet-go/internal/logger"
)

var (
	pkgLogger  logger.Logger
	loggerOnce sync.Once
)

// GetLogger returns the classify command logger.
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("classify")
	})
	return pkgLogger
}
