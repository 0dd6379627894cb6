// config.go: settings struct for the LeafNet server and the functions that load and save it.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/logger"
	"github.com/tphakala/leafnet-go/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// ServerSettings contains settings for the HTTP prediction server
type ServerSettings struct {
	Host            string            `yaml:"host"`            // listen address, empty for all interfaces
	Port            int               `yaml:"port"`            // listen port
	ReadTimeout     time.Duration     `yaml:"readtimeout"`     // maximum duration for reading the request
	WriteTimeout    time.Duration     `yaml:"writetimeout"`    // maximum duration before timing out writes
	IdleTimeout     time.Duration     `yaml:"idletimeout"`     // keep-alive idle timeout
	ShutdownTimeout time.Duration     `yaml:"shutdowntimeout"` // graceful shutdown deadline
	RequestTimeout  time.Duration     `yaml:"requesttimeout"`  // per-request inference deadline, 0 disables
	BodyLimit       string            `yaml:"bodylimit"`       // maximum request body size, e.g. "10M"
	AllowedOrigins  []string          `yaml:"allowedorigins"`  // CORS origins
	RateLimit       RateLimitSettings `yaml:"ratelimit"`
	Cache           CacheSettings     `yaml:"cache"`
}

// RateLimitSettings configures the in-memory request rate limiter
type RateLimitSettings struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`   // sustained requests per second per client
	Burst   int     `yaml:"burst"` // maximum burst per client
}

// CacheSettings configures the prediction result cache
type CacheSettings struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// ImagingSettings controls how request images become model input
type ImagingSettings struct {
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	Filter          string `yaml:"filter"`          // nearest, bilinear, bicubic, lanczos3
	ReencodeQuality int    `yaml:"reencodequality"` // JPEG quality for the re-encode stage, 0 disables
}

// ModelSettings binds one prediction slot to a model file and its labels
type ModelSettings struct {
	ModelPath string   `yaml:"modelpath"`
	Labels    []string `yaml:"labels"`    // inline labels, index i maps to output i
	LabelPath string   `yaml:"labelpath"` // label file, one label per line, takes precedence over Labels
	Threads   int      `yaml:"threads"`   // interpreter threads, 0 uses the runtime default
}

// ONNXSettings configures the ONNX Runtime backend
type ONNXSettings struct {
	SharedLibraryPath string `yaml:"sharedlibrarypath"` // path to libonnxruntime, empty uses the platform default
}

// MetricsSettings controls the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SentrySettings controls optional error reporting
type SentrySettings struct {
	Enabled     bool    `yaml:"enabled"`
	DSN         string  `yaml:"dsn"`     // may reference environment variables, e.g. ${SENTRY_DSN}
	DSNFile     string  `yaml:"dsnfile"` // secret file holding the DSN, takes precedence over DSN
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"samplerate"`
}

// Settings contains all configuration options for the LeafNet server.
type Settings struct {
	Debug   bool                     `yaml:"debug"`
	Server  ServerSettings           `yaml:"server"`
	Imaging ImagingSettings          `yaml:"imaging"`
	Models  map[string]ModelSettings `yaml:"models"` // keyed by slot name
	ONNX    ONNXSettings             `yaml:"onnx"`
	Metrics MetricsSettings          `yaml:"metrics"`
	Sentry  SentrySettings           `yaml:"sentry"`
	Logging logger.LoggingConfig     `yaml:"logging" mapstructure:"logging"`
}

// SlotNames returns the configured slot names in sorted order
func (s *Settings) SlotNames() []string {
	names := make([]string, 0, len(s.Models))
	for name := range s.Models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the configuration file and environment variables into Settings.
// configFile may be empty to search the default config paths.
func Load(configFile string) (*Settings, error) {
	settings, err := LoadFrom(viper.GetViper(), configFile)
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// LoadFrom loads settings using the given viper instance.
func LoadFrom(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "init_viper").
			Build()
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error validating settings: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	return settings, nil
}

// initViper applies defaults, environment bindings and reads the config file.
// A missing config file is not an error; defaults and environment apply.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults and environment")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Info("loaded config file", logger.String("path", v.ConfigFileUsed()))
	return nil
}

// resolveSecrets replaces secret references of enabled features with their
// values.
func resolveSecrets(settings *Settings) error {
	if !settings.Sentry.Enabled {
		return nil
	}
	dsn, err := secrets.Resolve(settings.Sentry.DSNFile, settings.Sentry.DSN)
	if err != nil {
		return errors.New(fmt.Errorf("error resolving sentry DSN: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}
	settings.Sentry.DSN = dsn
	return nil
}

// DefaultConfigYAML returns the annotated default configuration file.
func DefaultConfigYAML() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// WriteDefaultConfig writes the annotated default configuration to path.
// An existing file is never overwritten.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file already exists").
			Category(errors.CategoryConfiguration).
			Context("operation", "write_default_config").
			Build()
	}

	data, err := DefaultConfigYAML()
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// GetSettings returns the settings stored by the last successful Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// MarshalYAML renders settings as YAML. The Sentry DSN is masked.
func MarshalYAML(settings *Settings) ([]byte, error) {
	redacted := *settings
	if redacted.Sentry.DSN != "" {
		redacted.Sentry.DSN = "[REDACTED]"
	}
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return writeFileAtomic(configPath, yamlData)
}

// writeFileAtomic writes data to a temporary file next to path and renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, path); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
