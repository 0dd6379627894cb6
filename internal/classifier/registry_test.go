package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/leafnet-go/internal/conf"
	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/imaging"
)

var (
	speciesLabels = []string{"Potato", "Tomato", "Pepper"}
	healthLabels  = []string{"a", "b", "c", "d", "e", "f", "g"}
)

func defaultSlots() []SlotConfig {
	return []SlotConfig{
		{Name: "species", ModelPath: "species.tflite", Labels: speciesLabels},
		{Name: "health", ModelPath: "health.tflite", Labels: healthLabels},
	}
}

func TestLoadRegistry(t *testing.T) {
	t.Parallel()

	species := newFakeModel(0.1, 0.7, 0.2)
	health := newFakeModel(0, 0, 0, 0, 0, 0, 1)
	rec := &recordingRecorder{}

	reg, err := Load(t.Context(), defaultSlots(),
		fakeLoader(map[string]*fakeModel{"species": species, "health": health}, nil),
		WithInputShape(testShape), WithRecorder(rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	assert.Equal(t, []string{"health", "species"}, reg.Names())

	h, err := reg.Get("species")
	require.NoError(t, err)
	assert.Equal(t, "species", h.Name())
	assert.Equal(t, Labels(speciesLabels), h.Labels())
	assert.Equal(t, testShape, h.InputShape())
	assert.Equal(t, "fake", h.Backend())

	rec.mu.Lock()
	assert.Len(t, rec.loads, 2)
	for _, ev := range rec.loads {
		assert.NoError(t, ev.err)
	}
	rec.mu.Unlock()
}

func TestHandleLabelsAreCopies(t *testing.T) {
	t.Parallel()

	labels := []string{"Potato", "Tomato", "Pepper"}
	reg, err := Load(t.Context(),
		[]SlotConfig{{Name: "species", ModelPath: "s.tflite", Labels: labels}},
		fakeLoader(map[string]*fakeModel{"species": newFakeModel(1, 0, 0)}, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	labels[0] = "Changed"
	h, err := reg.Get("species")
	require.NoError(t, err)

	got := h.Labels()
	assert.Equal(t, "Potato", got[0])
	got[1] = "Changed"
	assert.Equal(t, "Tomato", h.Labels()[1])

	names := reg.Names()
	names[0] = "other"
	assert.Equal(t, []string{"species"}, reg.Names())
}

func TestGetUnknownSlot(t *testing.T) {
	t.Parallel()

	reg, err := Load(t.Context(), defaultSlots()[:1],
		fakeLoader(map[string]*fakeModel{"species": newFakeModel(1, 0, 0)}, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	h, err := reg.Get("flowers")
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.Equal(t, errors.KindInternal, errors.KindOf(err))
}

func TestLoadLabelCountMismatch(t *testing.T) {
	t.Parallel()

	species := newFakeModel(0.1, 0.7, 0.2)
	health := newFakeModel(0.5, 0.5, 0, 0, 0, 0) // six outputs for seven labels
	rec := &recordingRecorder{}

	reg, err := Load(t.Context(), defaultSlots(),
		fakeLoader(map[string]*fakeModel{"species": species, "health": health}, nil),
		WithRecorder(rec))
	require.Error(t, err)
	assert.Nil(t, reg)
	assert.Equal(t, errors.KindStartup, errors.KindOf(err))
	assert.Contains(t, err.Error(), `"health"`)
	assert.Contains(t, err.Error(), "label count mismatch")

	assert.Equal(t, int32(1), health.closed.Load(), "mismatched model must be closed")
	assert.Equal(t, int32(1), species.closed.Load(), "loaded slots must be closed on failure")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var failed int
	for _, ev := range rec.loads {
		if ev.err != nil {
			failed++
			assert.Equal(t, "health", ev.slot)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestLoadInputShapeMismatch(t *testing.T) {
	t.Parallel()

	m := newFakeModel(1, 0, 0)
	m.shape = imaging.NewShape(224, 224)

	_, err := Load(t.Context(), defaultSlots()[:1],
		fakeLoader(map[string]*fakeModel{"species": m}, nil),
		WithInputShape(testShape))
	require.Error(t, err)
	assert.Equal(t, errors.KindStartup, errors.KindOf(err))
	assert.Contains(t, err.Error(), "1x224x224x3")
	assert.Equal(t, int32(1), m.closed.Load())
}

func TestLoadFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		slots   []SlotConfig
		loader  Loader
		wantMsg string
	}{
		{
			name:    "no slots",
			slots:   nil,
			loader:  fakeLoader(nil, nil),
			wantMsg: "no model slots configured",
		},
		{
			name: "duplicate slot",
			slots: []SlotConfig{
				{Name: "species", ModelPath: "a.tflite", Labels: speciesLabels},
				{Name: "species", ModelPath: "b.tflite", Labels: speciesLabels},
			},
			loader:  fakeLoader(nil, nil),
			wantMsg: "configured twice",
		},
		{
			name:    "loader error",
			slots:   defaultSlots()[:1],
			loader:  fakeLoader(nil, map[string]error{"species": errors.NewStd("corrupt model")}),
			wantMsg: "corrupt model",
		},
		{
			name:    "empty labels",
			slots:   []SlotConfig{{Name: "species", ModelPath: "s.tflite"}},
			loader:  fakeLoader(nil, nil),
			wantMsg: "label set is empty",
		},
		{
			name:    "duplicate labels",
			slots:   []SlotConfig{{Name: "species", ModelPath: "s.tflite", Labels: []string{"a", "a"}}},
			loader:  fakeLoader(nil, nil),
			wantMsg: "appears at 0 and 1",
		},
		{
			name:    "missing label file",
			slots:   []SlotConfig{{Name: "species", ModelPath: "s.tflite", LabelPath: filepath.Join(os.TempDir(), "leafnet-missing-labels.txt")}},
			loader:  fakeLoader(nil, nil),
			wantMsg: "species",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg, err := Load(t.Context(), tt.slots, tt.loader)
			require.Error(t, err)
			assert.Nil(t, reg)
			assert.Equal(t, errors.KindStartup, errors.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestSharedModelPathIsAllowed(t *testing.T) {
	t.Parallel()

	slots := []SlotConfig{
		{Name: "species", ModelPath: "shared.tflite", Labels: speciesLabels},
		{Name: "species-v2", ModelPath: "shared.tflite", Labels: speciesLabels},
	}
	reg, err := Load(t.Context(), slots, fakeLoader(map[string]*fakeModel{
		"species":    newFakeModel(1, 0, 0),
		"species-v2": newFakeModel(0, 1, 0),
	}, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	assert.Equal(t, []string{"species", "species-v2"}, reg.Names())
}

func TestLoadLabelsFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("Potato\n\n  Tomato  \r\nPepper\n"), 0o600))

	m := newFakeModel(0, 0, 1)
	reg, err := Load(t.Context(),
		[]SlotConfig{{Name: "species", ModelPath: "s.tflite", Labels: []string{"ignored"}, LabelPath: path}},
		fakeLoader(map[string]*fakeModel{"species": m}, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	h, err := reg.Get("species")
	require.NoError(t, err)
	assert.Equal(t, Labels{"Potato", "Tomato", "Pepper"}, h.Labels())
}

func TestRegistryCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	species := newFakeModel(1, 0, 0)
	reg, err := Load(t.Context(), defaultSlots()[:1],
		fakeLoader(map[string]*fakeModel{"species": species}, nil))
	require.NoError(t, err)

	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())
	assert.Equal(t, int32(1), species.closed.Load())
}

func TestBackendFor(t *testing.T) {
	t.Parallel()

	b, err := BackendFor("models/leaf_model.tflite")
	require.NoError(t, err)
	assert.Equal(t, BackendTFLite, b)

	b, err = BackendFor("/srv/Model.ONNX")
	require.NoError(t, err)
	assert.Equal(t, BackendONNX, b)

	_, err = BackendFor("model.h5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".h5")
}

func TestBackendLoaderRejectsBeforeOpening(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modelDir := filepath.Join(dir, "model.tflite")
	require.NoError(t, os.Mkdir(modelDir, 0o750))

	loader := BackendLoader{}
	for name, path := range map[string]string{
		"unknown extension": filepath.Join(dir, "model.pb"),
		"missing file":      filepath.Join(dir, "absent.tflite"),
		"directory":         modelDir,
	} {
		_, err := loader.Load(t.Context(), SlotConfig{Name: "species", ModelPath: path})
		require.Error(t, err, name)
		assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad), name)
	}

	_, err := Load(t.Context(),
		[]SlotConfig{{Name: "species", ModelPath: filepath.Join(dir, "absent.onnx"), Labels: speciesLabels}},
		loader)
	require.Error(t, err)
	assert.Equal(t, errors.KindStartup, errors.KindOf(err))
}

func TestSlotsFromSettings(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{Models: map[string]conf.ModelSettings{
		"species": {ModelPath: "s.tflite", Labels: speciesLabels, Threads: 2},
		"health":  {ModelPath: "h.onnx", LabelPath: "h.txt"},
	}}

	slots := SlotsFromSettings(settings)
	require.Len(t, slots, 2)
	assert.Equal(t, SlotConfig{Name: "health", ModelPath: "h.onnx", LabelPath: "h.txt"}, slots[0])
	assert.Equal(t, "species", slots[1].Name)
	assert.Equal(t, 2, slots[1].Threads)
}
