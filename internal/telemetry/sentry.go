// Package telemetry provides opt-in Sentry error reporting with privacy filtering.
package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/leafnet-go/internal/buildinfo"
	"github.com/tphakala/leafnet-go/internal/conf"
	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/logger"
	"github.com/tphakala/leafnet-go/internal/privacy"
)

// DefaultFlushTimeout bounds how long Shutdown waits for queued events.
const DefaultFlushTimeout = 2 * time.Second

var enabled atomic.Bool

// PlatformInfo holds privacy-safe platform information
type PlatformInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	GoVersion    string `json:"go_version"`
}

func collectPlatformInfo() PlatformInfo {
	return PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
}

// InitSentry initializes Sentry when it is enabled in settings and installs
// the error reporter so categorized errors are captured as they are built.
func InitSentry(settings *conf.Settings, build *buildinfo.Context) error {
	return initSentry(settings, build, nil)
}

func initSentry(settings *conf.Settings, build *buildinfo.Context, transport sentry.Transport) error {
	if settings == nil || !settings.Sentry.Enabled {
		GetLogger().Info("Sentry telemetry is disabled")
		return nil
	}
	if settings.Sentry.DSN == "" {
		return errors.Newf("sentry is enabled but no DSN is configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	environment := settings.Sentry.Environment
	if environment == "" {
		environment = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       settings.Sentry.SampleRate,
		Environment:      environment,
		Release:          fmt.Sprintf("leafnet-go@%s", build.Version()),
		AttachStacktrace: false,
		ServerName:       "", // keep the hostname out of events
		Transport:        transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", privacy.WrapError(err))).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	configureSentryScope(build)

	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	enabled.Store(true)

	platform := collectPlatformInfo()
	GetLogger().Info("Sentry telemetry initialized",
		logger.String("environment", environment),
		logger.String("release", build.Version()),
		logger.String("os", platform.OS),
		logger.String("arch", platform.Architecture))
	return nil
}

// applyPrivacyFilters removes identifying data from an event before it is sent
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}

	return event
}

func configureSentryScope(build *buildinfo.Context) {
	platform := collectPlatformInfo()

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("system_id", build.SystemID())
		scope.SetTag("os", platform.OS)
		scope.SetTag("arch", platform.Architecture)

		scope.SetContext("application", map[string]any{
			"name":      "LeafNet-Go",
			"version":   build.Version(),
			"system_id": build.SystemID(),
		})
		scope.SetContext("platform", map[string]any{
			"os":           platform.OS,
			"architecture": platform.Architecture,
			"num_cpu":      platform.NumCPU,
			"go_version":   platform.GoVersion,
		})
	})
}

// Enabled reports whether Sentry has been initialized.
func Enabled() bool {
	return enabled.Load()
}

// CaptureError sends a scrubbed error event tagged with the component.
func CaptureError(err error, component string) {
	if err == nil || !enabled.Load() {
		return
	}

	scrubbed := privacy.ScrubMessage(err.Error())
	GetLogger().Debug("sending error event",
		logger.String("component", component),
		logger.String("error_type", fmt.Sprintf("%T", err)))

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		if kind := errors.KindOf(err); kind != "" {
			scope.SetTag("error_kind", string(kind))
		}
		scope.SetLevel(sentry.LevelError)

		event := sentry.NewEvent()
		event.Level = sentry.LevelError
		event.Message = scrubbed
		event.Exception = []sentry.Exception{{
			Type:  fmt.Sprintf("%T", err),
			Value: scrubbed,
		}}
		sentry.CaptureEvent(event)
	})
}

// CaptureMessage sends a scrubbed message event.
func CaptureMessage(message string, level sentry.Level, component string) {
	if !enabled.Load() {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetLevel(level)
		sentry.CaptureMessage(privacy.ScrubMessage(message))
	})
}

// Flush waits until queued events are sent or the timeout passes.
func Flush(timeout time.Duration) bool {
	if !enabled.Load() {
		return true
	}
	return sentry.Flush(timeout)
}

// Shutdown flushes pending events and detaches the error reporter.
func Shutdown(timeout time.Duration) {
	if !enabled.Load() {
		return
	}
	if !sentry.Flush(timeout) {
		GetLogger().Warn("Sentry flush timed out", logger.Duration("timeout", timeout))
	}
	errors.SetTelemetryReporter(nil)
	enabled.Store(false)
}
