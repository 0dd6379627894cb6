// conf/utils.go helper functions for configuration package
package conf

import (
	"os"
	"path/filepath"
	"runtime"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in priority order: the working directory, the user config directory and
// a system-wide directory.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == osWindows {
			paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", "leafnet"))
		} else {
			paths = append(paths, filepath.Join(homeDir, ".config", "leafnet"))
		}
	}

	if runtime.GOOS != osWindows {
		paths = append(paths, "/etc/leafnet")
	}

	return paths
}
