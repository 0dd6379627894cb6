package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSamplerReusesSnapshotWithinInterval(t *testing.T) {
	t.Parallel()

	var reads atomic.Int32
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	s := NewSampler("/models", time.Minute)
	s.now = func() time.Time { return clock }
	s.read = func(_ context.Context, path string) Resources {
		n := reads.Add(1)
		return Resources{CPUPercent: float64(n), DiskPath: path}
	}

	first := s.Sample(t.Context())
	assert.InDelta(t, 1.0, first.CPUPercent, 0)
	assert.Equal(t, "/models", first.DiskPath)
	assert.Equal(t, "2026-01-02T03:04:05Z", first.SampledAt)

	clock = clock.Add(30 * time.Second)
	assert.Equal(t, first, s.Sample(t.Context()))

	clock = clock.Add(31 * time.Second)
	assert.InDelta(t, 2.0, s.Sample(t.Context()).CPUPercent, 0)
	assert.Equal(t, int32(2), reads.Load())
}

func TestNewSamplerDefaultInterval(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultSampleInterval, NewSampler("", 0).interval)
}

func TestReadResourcesHost(t *testing.T) {
	t.Parallel()

	r := readResources(t.Context(), t.TempDir())
	assert.GreaterOrEqual(t, r.MemoryPercent, 0.0)
	assert.LessOrEqual(t, r.MemoryPercent, 100.0)
	assert.GreaterOrEqual(t, r.DiskPercent, 0.0)
}
