// Package classifier loads image classification models into named slots and
// turns normalized image tensors into a single labelled prediction.
package classifier

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/leafnet-go/internal/conf"
	"github.com/tphakala/leafnet-go/internal/cpuspec"
	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/imaging"
)

// Backend names reported by Model.Backend.
const (
	BackendTFLite = "tflite"
	BackendONNX   = "onnx"
)

// Model is a loaded classification network with one float32 NHWC input and
// one float32 score vector output. Implementations reuse internal buffers,
// so callers must serialize Predict.
type Model interface {
	Predict(input []float32) ([]float32, error)
	InputShape() imaging.Shape
	OutputSize() int
	Backend() string
	Close() error
}

// SlotConfig describes one model slot to load.
type SlotConfig struct {
	Name      string
	ModelPath string
	Labels    []string
	LabelPath string
	Threads   int
}

// SlotsFromSettings converts configured model slots into load configs,
// ordered by slot name.
func SlotsFromSettings(settings *conf.Settings) []SlotConfig {
	names := settings.SlotNames()
	slots := make([]SlotConfig, 0, len(names))
	for _, name := range names {
		m := settings.Models[name]
		slots = append(slots, SlotConfig{
			Name:      name,
			ModelPath: m.ModelPath,
			Labels:    m.Labels,
			LabelPath: m.LabelPath,
			Threads:   m.Threads,
		})
	}
	return slots
}

// LoadFromSettings loads every configured slot with the backend chosen by
// file extension.
func LoadFromSettings(ctx context.Context, settings *conf.Settings, opts ...Option) (*Registry, error) {
	loader := BackendLoader{ONNXLibraryPath: settings.ONNX.SharedLibraryPath}
	return Load(ctx, SlotsFromSettings(settings), loader, opts...)
}

// Loader opens the model backing a slot.
type Loader interface {
	Load(ctx context.Context, cfg SlotConfig) (Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, cfg SlotConfig) (Model, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, cfg SlotConfig) (Model, error) {
	return f(ctx, cfg)
}

// BackendLoader picks the runtime from the model file extension:
// .tflite runs on TensorFlow Lite, .onnx on ONNX Runtime.
type BackendLoader struct {
	// ONNXLibraryPath points at the ONNX Runtime shared library. Empty uses
	// the platform default search.
	ONNXLibraryPath string
}

// BackendFor returns the backend name for a model path.
func BackendFor(modelPath string) (string, error) {
	switch strings.ToLower(filepath.Ext(modelPath)) {
	case ".tflite":
		return BackendTFLite, nil
	case ".onnx":
		return BackendONNX, nil
	default:
		return "", errors.Newf("unsupported model format %q, expected .tflite or .onnx", filepath.Ext(modelPath)).
			Category(errors.CategoryModelLoad).
			Context("model_path", modelPath).
			Build()
	}
}

// Load implements Loader.
func (l BackendLoader) Load(ctx context.Context, cfg SlotConfig) (Model, error) {
	backend, err := BackendFor(cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(cfg.ModelPath)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryModelLoad).
			ModelContext(cfg.Name, cfg.ModelPath).
			Context("operation", "stat").
			Build()
	}
	if info.IsDir() {
		return nil, errors.Newf("model path is a directory").
			Category(errors.CategoryModelLoad).
			ModelContext(cfg.Name, cfg.ModelPath).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).Category(errors.CategoryCancellation).Build()
	}

	threads := cpuspec.Threads(cfg.Threads)
	switch backend {
	case BackendONNX:
		return loadONNX(cfg, threads, l.ONNXLibraryPath)
	default:
		return loadTFLite(cfg, threads)
	}
}
