// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default label sets for the two bundled leaf models. Index order matches
// the output order the models were trained with.
var (
	DefaultSpeciesLabels = []string{"bok choy", "nai bai", "peppermint"}
	DefaultHealthLabels  = []string{
		"anthracnose",
		"downy_mildew",
		"fusarium_leaf_spot",
		"healthy",
		"leaf_spot",
		"powdery_mildew",
		"viral_mosaic",
	}
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.readtimeout", 30*time.Second)
	v.SetDefault("server.writetimeout", 30*time.Second)
	v.SetDefault("server.idletimeout", 120*time.Second)
	v.SetDefault("server.shutdowntimeout", 10*time.Second)
	v.SetDefault("server.requesttimeout", 0)
	v.SetDefault("server.bodylimit", "10M")
	v.SetDefault("server.allowedorigins", []string{"*"})
	v.SetDefault("server.ratelimit.enabled", false)
	v.SetDefault("server.ratelimit.rps", 10.0)
	v.SetDefault("server.ratelimit.burst", 20)
	v.SetDefault("server.cache.enabled", false)
	v.SetDefault("server.cache.ttl", 5*time.Minute)

	v.SetDefault("imaging.width", 180)
	v.SetDefault("imaging.height", 180)
	v.SetDefault("imaging.filter", "bicubic")
	v.SetDefault("imaging.reencodequality", 0)

	v.SetDefault("models", map[string]any{
		"species": map[string]any{
			"modelpath": "models/species_model.tflite",
			"labels":    DefaultSpeciesLabels,
			"labelpath": "",
			"threads":   0,
		},
		"health": map[string]any{
			"modelpath": "models/leaf_model.tflite",
			"labels":    DefaultHealthLabels,
			"labelpath": "",
			"threads":   0,
		},
	})

	v.SetDefault("onnx.sharedlibrarypath", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.dsnfile", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.samplerate", 1.0)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/leafnet.log")
	v.SetDefault("logging.file_output.level", "info")
}
