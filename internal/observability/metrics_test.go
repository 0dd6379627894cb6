package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called
// concurrently since every instance owns its registry.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if err != nil {
				errs <- err
				return
			}
			if m.registry == nil || m.Classifier == nil || m.HTTP == nil {
				errs <- assert.AnError
			}
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("NewMetrics failed: %v", err)
	}
}

func TestMetricsHandlerServesExposition(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Classifier.RecordPrediction("species", 0.01, nil)
	m.HTTP.RecordHTTPRequest("GET", "/", 200, 0.001)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `leafnet_predictions_total{slot="species",status="success"} 1`)
	assert.Contains(t, string(body), "http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
	assert.Same(t, m.registry, m.Registry())
}
