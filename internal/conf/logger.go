// Package conf provides configuration management for the LeafNet server.
package conf

import "github.com/tphakala/leafnet-go/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// The logger is fetched from the global logger each time so it follows
// SetGlobal calls made after package init.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
