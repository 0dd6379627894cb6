package classifier

import (
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/imaging"
	"github.com/tphakala/leafnet-go/internal/logger"
)

// The ONNX Runtime environment is process wide. It is created by the first
// ONNX model and destroyed when the last one closes.
var onnxEnv struct {
	mu   sync.Mutex
	refs int
}

func acquireONNXEnvironment(libraryPath string) error {
	onnxEnv.mu.Lock()
	defer onnxEnv.mu.Unlock()

	if onnxEnv.refs == 0 && !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	onnxEnv.refs++
	return nil
}

func releaseONNXEnvironment() {
	onnxEnv.mu.Lock()
	defer onnxEnv.mu.Unlock()

	onnxEnv.refs--
	if onnxEnv.refs > 0 {
		return
	}
	onnxEnv.refs = 0
	if err := ort.DestroyEnvironment(); err != nil {
		GetLogger().Warn("Failed to destroy ONNX environment", logger.Error(err))
	}
}

// onnxModel runs a model on ONNX Runtime through a session with
// preallocated input and output tensors.
type onnxModel struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	shape        imaging.Shape
	outputs      int
	closeOnce    sync.Once
}

func loadONNX(cfg SlotConfig, threads int, libraryPath string) (*onnxModel, error) {
	start := time.Now()

	if err := acquireONNXEnvironment(libraryPath); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryModelInit).
			ModelContext(cfg.Name, cfg.ModelPath).
			Context("onnx_library", libraryPath).
			Build()
	}

	m, err := newONNXModel(cfg, threads)
	if err != nil {
		releaseONNXEnvironment()
		return nil, err
	}

	GetLogger().Info("ONNX model initialized",
		logger.String("slot", cfg.Name),
		logger.String("input_shape", m.shape.String()),
		logger.Int("outputs", m.outputs),
		logger.Int("threads", threads),
		logger.Duration("load_time", time.Since(start)))
	return m, nil
}

func newONNXModel(cfg SlotConfig, threads int) (*onnxModel, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read model metadata: %w", err)).
			Category(errors.CategoryModelLoad).
			ModelContext(cfg.Name, cfg.ModelPath).
			Build()
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, initFailure(cfg, fmt.Sprintf("model has %d inputs and %d outputs, expected one of each", len(inputs), len(outputs)))
	}
	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return nil, initFailure(cfg, "model input and output must be float32")
	}
	if len(in.Dimensions) != len(imaging.Shape{}) {
		return nil, initFailure(cfg, fmt.Sprintf("input tensor has %d dimensions, expected 4", len(in.Dimensions)))
	}

	inputShape := fixedShape(in.Dimensions)
	outputShape := fixedShape(out.Dimensions)
	if len(outputShape) == 0 {
		return nil, initFailure(cfg, "output tensor has no dimensions")
	}

	m := &onnxModel{outputs: int(outputShape[len(outputShape)-1])}
	for i, d := range inputShape {
		m.shape[i] = int(d)
	}

	m.inputTensor, err = ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, initFailure(cfg, fmt.Sprintf("failed to create input tensor: %v", err))
	}
	m.outputTensor, err = ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		_ = m.inputTensor.Destroy()
		return nil, initFailure(cfg, fmt.Sprintf("failed to create output tensor: %v", err))
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		m.destroyTensors()
		return nil, initFailure(cfg, fmt.Sprintf("failed to create session options: %v", err))
	}
	defer func() { _ = options.Destroy() }()
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		m.destroyTensors()
		return nil, initFailure(cfg, fmt.Sprintf("failed to set thread count: %v", err))
	}

	m.session, err = ort.NewAdvancedSession(cfg.ModelPath,
		[]string{in.Name}, []string{out.Name},
		[]ort.Value{m.inputTensor}, []ort.Value{m.outputTensor},
		options)
	if err != nil {
		m.destroyTensors()
		return nil, errors.New(fmt.Errorf("failed to create ONNX session: %w", err)).
			Category(errors.CategoryModelInit).
			ModelContext(cfg.Name, cfg.ModelPath).
			Build()
	}

	return m, nil
}

// fixedShape replaces symbolic dimensions, typically the batch axis, with 1.
func fixedShape(dims ort.Shape) ort.Shape {
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d < 1 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}

// Predict copies input into the session input tensor and returns a copy of
// the scores.
func (m *onnxModel) Predict(input []float32) ([]float32, error) {
	copy(m.inputTensor.GetData(), input)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	data := m.outputTensor.GetData()
	predictions := make([]float32, m.outputs)
	copy(predictions, data[len(data)-m.outputs:])
	return predictions, nil
}

func (m *onnxModel) InputShape() imaging.Shape { return m.shape }
func (m *onnxModel) OutputSize() int           { return m.outputs }
func (m *onnxModel) Backend() string           { return BackendONNX }

func (m *onnxModel) destroyTensors() {
	if m.inputTensor != nil {
		_ = m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		_ = m.outputTensor.Destroy()
	}
}

// Close destroys the session and tensors and releases the environment.
func (m *onnxModel) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.session != nil {
			err = m.session.Destroy()
		}
		m.destroyTensors()
		releaseONNXEnvironment()
	})
	return err
}
