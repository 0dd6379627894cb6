package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/monitor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

func TestRoot(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Multi-model prediction server is online."}`, rec.Body.String())
}

func TestPredictSlots(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	payload := testImage(t, 32, 24)

	rec := env.predict("species", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeJSON[PredictResponse](t, rec)
	assert.Equal(t, PredictResponse{PredictedClass: "nai bai", Confidence: 0.7}, got)

	rec = env.predict("health", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decodeJSON[PredictResponse](t, rec)
	assert.Equal(t, "healthy", got.PredictedClass)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)

	assert.Equal(t, int32(1), env.species.calls.Load())
	assert.Equal(t, int32(1), env.health.calls.Load())
}

func TestPredictAcceptsDataURL(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.predict("species", "data:image/png;base64,"+testImage(t, 10, 10))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPredictValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty body", "", "ValidationError: Missing 'image' in request"},
		{"empty object", `{}`, "ValidationError: Missing 'image' in request"},
		{"other field", `{"picture":"abc"}`, "ValidationError: Missing 'image' in request"},
		{"null image", `{"image":null}`, "ValidationError: Missing 'image' in request"},
		{"blank image", `{"image":"   "}`, "ValidationError: Missing 'image' in request"},
		{"numeric image", `{"image":5}`, "ValidationError: 'image' must be a base64 string"},
		{"invalid json", `{"image":`, "ValidationError: request body must be a JSON object"},
		{"array body", `["image"]`, "ValidationError: request body must be a JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, nil)
			rec := env.do(http.MethodPost, "/predict/species", tt.body)
			require.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, tt.wantMsg, decodeJSON[ErrorResponse](t, rec).Error)
			assert.Zero(t, env.species.calls.Load(), "model must not run on invalid input")
		})
	}
}

func TestPredictDecodeError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	for _, payload := range []string{"!!!not-base64!!!", "aGVsbG8gd29ybGQ="} {
		rec := env.predict("species", payload)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		msg := decodeJSON[ErrorResponse](t, rec).Error
		assert.True(t, strings.HasPrefix(msg, "DecodeError: "), msg)
	}
	assert.Zero(t, env.species.calls.Load())
}

func TestPredictInferenceError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.health.err = errors.NewStd("invoke status 1")

	rec := env.predict("health", testImage(t, 8, 8))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "InferenceError: model invocation failed: invoke status 1", decodeJSON[ErrorResponse](t, rec).Error)
}

func TestUnknownSlotAndMethod(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	rec := env.predict("roots", testImage(t, 8, 8))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decodeJSON[ErrorResponse](t, rec).Error)

	rec = env.do(http.MethodGet, "/predict/species", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecoveredPanicIsInternal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.server.Echo().GET("/boom", func(echo.Context) error { panic("boom") })

	rec := env.do(http.MethodGet, "/boom", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "InternalError: internal server error", decodeJSON[ErrorResponse](t, rec).Error)
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/", "")
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)

	req, _ := http.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(echo.HeaderXRequestID, "client-supplied")
	rec2 := newRecorder(env, req)
	assert.Equal(t, "client-supplied", rec2.Header().Get(echo.HeaderXRequestID))
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	health := decodeJSON[HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "1.0.0-test", health.Build.Version)
	assert.False(t, health.Reencode)
	require.Len(t, health.Slots, 2)
	assert.Equal(t, SlotStatus{Name: "health", Backend: "stub", Labels: 7, InputShape: "1x8x8x3"}, health.Slots[0])
	assert.Equal(t, SlotStatus{Name: "species", Backend: "stub", Labels: 3, InputShape: "1x8x8x3"}, health.Slots[1])
}

type fixedResources monitor.Resources

func (f fixedResources) Sample(context.Context) monitor.Resources { return monitor.Resources(f) }

func TestHealthzResources(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	assert.Nil(t, decodeJSON[HealthResponse](t, env.do(http.MethodGet, "/healthz", "")).Resources)

	WithResources(fixedResources{CPUPercent: 12.5, MemoryPercent: 40, DiskPercent: 71})(env.server)
	health := decodeJSON[HealthResponse](t, env.do(http.MethodGet, "/healthz", ""))
	require.NotNil(t, health.Resources)
	assert.InDelta(t, 12.5, health.Resources.CPUPercent, 0)
	assert.InDelta(t, 71.0, health.Resources.DiskPercent, 0)
}

func TestPredictionCache(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *Config) {
		c.CacheEnabled = true
		c.CacheTTL = time.Minute
	})
	payload := testImage(t, 16, 16)

	first := env.predict("species", payload)
	second := env.predict("species", payload)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), env.species.calls.Load(), "cached prediction must not invoke the model")

	// Same payload on another slot is a separate entry
	require.Equal(t, http.StatusOK, env.predict("health", payload).Code)
	assert.Equal(t, int32(1), env.health.calls.Load())

	health := decodeJSON[HealthResponse](t, env.do(http.MethodGet, "/healthz", ""))
	assert.Equal(t, 2, health.CacheEntries)
}

func TestFailuresAreNotCached(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *Config) {
		c.CacheEnabled = true
		c.CacheTTL = time.Minute
	})
	env.species.err = errors.NewStd("busy")
	payload := testImage(t, 8, 8)

	require.Equal(t, http.StatusInternalServerError, env.predict("species", payload).Code)
	env.species.err = nil
	require.Equal(t, http.StatusOK, env.predict("species", payload).Code)
	assert.Equal(t, int32(2), env.species.calls.Load())
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *Config) {
		c.RateLimitEnabled = true
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 1
	})
	payload := testImage(t, 8, 8)

	require.Equal(t, http.StatusOK, env.predict("species", payload).Code)
	rec := env.predict("species", payload)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", decodeJSON[ErrorResponse](t, rec).Error)

	// Status routes are not limited
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/", "").Code)

	metrics := env.do(http.MethodGet, "/metrics", "").Body.String()
	assert.Contains(t, metrics, "http_rate_limited_total 1")
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *Config) { c.BodyLimit = "1K" })

	rec := env.predict("species", strings.Repeat("A", 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, env.species.calls.Load())
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *Config) { c.RequestTimeout = 30 * time.Millisecond })
	env.species.delay = 150 * time.Millisecond
	payload := testImage(t, 8, 8)

	first := make(chan int, 1)
	go func() { first <- env.predict("species", payload).Code }()
	require.Eventually(t, func() bool { return env.species.active.Load() == 1 }, time.Second, time.Millisecond)

	rec := env.predict("species", payload)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	msg := decodeJSON[ErrorResponse](t, rec).Error
	assert.True(t, strings.HasPrefix(msg, "InferenceError: "), msg)
	assert.Contains(t, msg, "deadline exceeded")

	assert.Equal(t, http.StatusOK, <-first)
	assert.Equal(t, int32(1), env.species.calls.Load())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusOK, env.predict("species", testImage(t, 8, 8)).Code)
	require.Equal(t, http.StatusInternalServerError, env.do(http.MethodPost, "/predict/species", `{}`).Code)

	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `leafnet_predictions_total{slot="species",status="success"} 1`)
	assert.Contains(t, body, `leafnet_predicted_class_total{class="nai bai",slot="species"} 1`)
	assert.Contains(t, body, `http_requests_total{method="POST",path="/predict/species",status_code="200"} 1`)
	assert.Contains(t, body, `http_request_errors_total{error_type="validation_error",method="POST",path="/predict/species"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *Config) { c.MetricsEnabled = false })
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/metrics", "").Code)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(DefaultConfig(), nil, nil)
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.ShutdownTimeout = 0
	_, err = New(cfg, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestServeAndShutdown(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ShutdownTimeout = time.Second })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, ln) }()

	transport := &http.Transport{}
	client := &http.Client{Transport: transport, Timeout: 2 * time.Second}
	defer transport.CloseIdleConnections()

	resp, err := client.Get(fmt.Sprintf("http://%s/", ln.Addr()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "online")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	transport.CloseIdleConnections()
}
