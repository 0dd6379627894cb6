package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/leafnet-go/internal/buildinfo"
	"github.com/tphakala/leafnet-go/internal/classifier"
	"github.com/tphakala/leafnet-go/internal/imaging"
	"github.com/tphakala/leafnet-go/internal/observability"
)

var (
	testShape     = imaging.NewShape(8, 8)
	speciesLabels = []string{"bok choy", "nai bai", "peppermint"}
	healthLabels  = []string{"anthracnose", "downy_mildew", "fusarium_leaf_spot", "healthy", "leaf_spot", "powdery_mildew", "viral_mosaic"}
)

// stubModel returns fixed scores and counts invocations.
type stubModel struct {
	scores []float32
	err    error
	delay  time.Duration

	calls  atomic.Int32
	active atomic.Int32
}

func (m *stubModel) Predict(_ []float32) ([]float32, error) {
	m.calls.Add(1)
	m.active.Add(1)
	defer m.active.Add(-1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	return append([]float32(nil), m.scores...), nil
}

func (m *stubModel) InputShape() imaging.Shape { return testShape }
func (m *stubModel) OutputSize() int           { return len(m.scores) }
func (m *stubModel) Backend() string           { return "stub" }
func (m *stubModel) Close() error              { return nil }

type testEnv struct {
	server  *Server
	species *stubModel
	health  *stubModel
	metrics *observability.Metrics
}

// newTestEnv builds a server with species and health slots backed by stub
// models. mutate adjusts the config before the server is created.
func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		species: &stubModel{scores: []float32{0.1, 0.7, 0.2}},
		health:  &stubModel{scores: []float32{0.01, 0.02, 0.03, 0.9, 0.02, 0.01, 0.01}},
	}
	models := map[string]*stubModel{"species": env.species, "health": env.health}

	registry, err := classifier.Load(t.Context(),
		[]classifier.SlotConfig{
			{Name: "health", ModelPath: "leaf_model.tflite", Labels: healthLabels},
			{Name: "species", ModelPath: "species_model.tflite", Labels: speciesLabels},
		},
		classifier.LoaderFunc(func(_ context.Context, cfg classifier.SlotConfig) (classifier.Model, error) {
			return models[cfg.Name], nil
		}),
		classifier.WithInputShape(testShape))
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	decoder, err := imaging.NewDecoder(imaging.Options{Width: 8, Height: 8, Filter: "bilinear"})
	require.NoError(t, err)

	env.metrics, err = observability.NewMetrics()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MetricsEnabled = true
	if mutate != nil {
		mutate(cfg)
	}

	env.server, err = New(cfg, registry, decoder,
		WithMetrics(env.metrics),
		WithBuildInfo(buildinfo.NewContext("1.0.0-test", "2026-10-14", "AB12-CD34-EF56")))
	require.NoError(t, err)
	return env
}

// do sends a request through the echo handler chain.
func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Echo().ServeHTTP(rec, req)
	return rec
}

func newRecorder(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Echo().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) predict(slot, payload string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(PredictRequest{Image: payload})
	return e.do(http.MethodPost, "/predict/"+slot, string(body))
}

// testImage returns a base64 PNG of the given size.
func testImage(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: 120, B: uint8(y * 16), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
