package classifier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/leafnet-go/internal/imaging"
)

var testShape = imaging.NewShape(180, 180)

// fakeModel returns fixed scores and tracks concurrent use.
type fakeModel struct {
	shape  imaging.Shape
	scores []float32
	err    error
	delay  time.Duration

	calls     atomic.Int32
	closed    atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeModel(scores ...float32) *fakeModel {
	return &fakeModel{shape: testShape, scores: scores}
}

func (m *fakeModel) Predict(input []float32) ([]float32, error) {
	m.calls.Add(1)
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		prev := m.maxActive.Load()
		if n <= prev || m.maxActive.CompareAndSwap(prev, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float32, len(m.scores))
	copy(out, m.scores)
	return out, nil
}

func (m *fakeModel) InputShape() imaging.Shape { return m.shape }
func (m *fakeModel) OutputSize() int           { return len(m.scores) }
func (m *fakeModel) Backend() string           { return "fake" }

func (m *fakeModel) Close() error {
	m.closed.Add(1)
	return nil
}

// fakeLoader serves models by slot name.
func fakeLoader(models map[string]*fakeModel, failures map[string]error) Loader {
	return LoaderFunc(func(_ context.Context, cfg SlotConfig) (Model, error) {
		if err := failures[cfg.Name]; err != nil {
			return nil, err
		}
		return models[cfg.Name], nil
	})
}

type loadEvent struct {
	slot string
	err  error
}

type predictionEvent struct {
	slot string
	err  error
}

// recordingRecorder captures every metrics callback.
type recordingRecorder struct {
	mu          sync.Mutex
	loads       []loadEvent
	invokes     []string
	predictions []predictionEvent
}

func (r *recordingRecorder) RecordModelLoad(slot string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, loadEvent{slot, err})
}

func (r *recordingRecorder) RecordModelInvoke(slot string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokes = append(r.invokes, slot)
}

func (r *recordingRecorder) RecordPrediction(slot string, _ float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictions = append(r.predictions, predictionEvent{slot, err})
}
