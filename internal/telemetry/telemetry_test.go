package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/leafnet-go/internal/buildinfo"
	"github.com/tphakala/leafnet-go/internal/conf"
	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/privacy"
)

const testDSN = "https://public@sentry.example.com/1"

// setupMockSentry initializes Sentry against an in-memory transport.
// Tests using it must not run in parallel since Sentry state is global.
func setupMockSentry(t *testing.T) *memoryTransport {
	t.Helper()

	transport := newMemoryTransport()
	settings := &conf.Settings{}
	settings.Sentry = conf.SentrySettings{Enabled: true, DSN: testDSN, SampleRate: 1.0, Environment: "test"}

	require.NoError(t, initSentry(settings, buildinfo.NewContext("1.0.0", "", "AB12-CD34-EF56"), transport))
	t.Cleanup(func() {
		Shutdown(time.Second)
		errors.SetPrivacyScrubber(nil)
		_ = sentry.Init(sentry.ClientOptions{})
	})
	return transport
}

func TestInitSentryDisabled(t *testing.T) {
	require.NoError(t, InitSentry(&conf.Settings{}, nil))
	assert.False(t, Enabled())
	assert.Nil(t, errors.GetTelemetryReporter())

	// Capture calls are no-ops while disabled
	CaptureError(errors.NewStd("ignored"), "test")
	CaptureMessage("ignored", sentry.LevelInfo, "test")
	assert.True(t, Flush(time.Millisecond))
}

func TestInitSentryRequiresDSN(t *testing.T) {
	settings := &conf.Settings{}
	settings.Sentry.Enabled = true

	err := InitSentry(settings, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.False(t, Enabled())
}

func TestCaptureErrorScrubsMessage(t *testing.T) {
	transport := setupMockSentry(t)
	require.True(t, Enabled())

	CaptureError(errors.NewStd("open /home/alice/models/species.tflite: permission denied"), "classifier")
	require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 5*time.Millisecond)

	event := transport.last()
	require.NotNil(t, event)
	assert.Equal(t, "open .../species.tflite: permission denied", event.Message)
	assert.Equal(t, "classifier", event.Tags["component"])
	assert.Equal(t, "AB12-CD34-EF56", event.Tags["system_id"])
	assert.Equal(t, "leafnet-go@1.0.0", event.Release)
	assert.Empty(t, event.ServerName)
	assert.NotContains(t, event.Message, "alice")
}

func TestCaptureMessage(t *testing.T) {
	transport := setupMockSentry(t)

	CaptureMessage("remote server http://10.1.2.3:8000/predict/health unreachable", sentry.LevelWarning, "client")
	require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 5*time.Millisecond)

	event := transport.last()
	assert.Equal(t, sentry.LevelWarning, event.Level)
	assert.NotContains(t, event.Message, "10.1.2.3")
	assert.Contains(t, event.Message, "url-")
}

func TestEnhancedErrorsAreReported(t *testing.T) {
	transport := setupMockSentry(t)

	_ = errors.InferenceError(errors.NewStd("model invocation failed: invoke status 1")).Build()
	require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, transport.last().Message, "model invocation failed")

	// Client faults are never reported
	_ = errors.DecodeError(errors.NewStd("invalid base64 payload")).Build()
	assert.Never(t, func() bool { return transport.count() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestShutdownDetachesReporter(t *testing.T) {
	setupMockSentry(t)
	require.NotNil(t, errors.GetTelemetryReporter())

	Shutdown(time.Second)
	assert.False(t, Enabled())
	assert.Nil(t, errors.GetTelemetryReporter())
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		Message:    "load failed for /srv/leafnet/models/health.onnx",
		ServerName: "leaf-host",
		User:       sentry.User{ID: "u1", IPAddress: "10.0.0.1"},
		Contexts: map[string]sentry.Context{
			"device":      {"name": "x"},
			"os":          {"name": "linux"},
			"runtime":     {"name": "go"},
			"application": {"name": "LeafNet-Go"},
		},
		Extra: map[string]any{"component": "classifier", "model_path": "/srv/x"},
		Tags:  map[string]string{"hostname": "leaf-host", "server_name": "leaf-host", "slot": "health"},
		Exception: []sentry.Exception{{Type: "Inference", Value: "token=abc123"}},
	}

	out := applyPrivacyFilters(event)
	assert.Empty(t, out.ServerName)
	assert.True(t, out.User.IsEmpty())
	assert.Equal(t, []string{"application"}, mapKeys(out.Contexts))
	assert.Equal(t, map[string]any{"component": "classifier"}, out.Extra)
	assert.Equal(t, map[string]string{"slot": "health"}, out.Tags)
	assert.Equal(t, "load failed for .../health.onnx", out.Message)
	assert.Equal(t, "token=[REDACTED]", out.Exception[0].Value)
}

func TestLoadOrCreateSystemID(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "leafnet")
	id, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	assert.True(t, privacy.IsValidSystemID(id))

	again, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	// A corrupted file is replaced
	require.NoError(t, os.WriteFile(filepath.Join(dir, systemIDFile), []byte("garbage"), 0o644))
	replaced, err := LoadOrCreateSystemID(dir)
	require.NoError(t, err)
	assert.NotEqual(t, "garbage", replaced)
	assert.True(t, privacy.IsValidSystemID(replaced))
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
