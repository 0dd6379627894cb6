package classifier

import (
	"fmt"
	"os"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/imaging"
	"github.com/tphakala/leafnet-go/internal/logger"
)

// tfliteModel runs a model on the TensorFlow Lite C runtime.
type tfliteModel struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	shape       imaging.Shape
	outputs     int
}

func loadTFLite(cfg SlotConfig, threads int) (*tfliteModel, error) {
	start := time.Now()

	modelData, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryModelLoad).
			ModelContext(cfg.Name, cfg.ModelPath).
			Timing("model-load", time.Since(start)).
			Build()
	}

	m := &tfliteModel{}
	m.model = tflite.NewModel(modelData)
	if m.model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Category(errors.CategoryModelInit).
			ModelContext(cfg.Name, cfg.ModelPath).
			Context("model_size_kb", len(modelData)/1024).
			Timing("model-init", time.Since(start)).
			Build()
	}

	m.options = tflite.NewInterpreterOptions()
	m.options.SetNumThread(threads)
	slot := cfg.Name
	m.options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error",
			logger.String("slot", slot),
			logger.String("message", msg))
	}, nil)

	m.interpreter = tflite.NewInterpreter(m.model, m.options)
	if m.interpreter == nil {
		_ = m.Close()
		return nil, initFailure(cfg, "cannot create interpreter")
	}
	if status := m.interpreter.AllocateTensors(); status != tflite.OK {
		_ = m.Close()
		return nil, initFailure(cfg, "tensor allocation failed")
	}

	input := m.interpreter.GetInputTensor(0)
	if input == nil {
		_ = m.Close()
		return nil, initFailure(cfg, "cannot get input tensor")
	}
	if input.NumDims() != len(m.shape) {
		_ = m.Close()
		return nil, initFailure(cfg, fmt.Sprintf("input tensor has %d dimensions, expected 4", input.NumDims()))
	}
	for i := range m.shape {
		m.shape[i] = input.Dim(i)
	}
	if len(input.Float32s()) != m.shape.Elements() {
		_ = m.Close()
		return nil, initFailure(cfg, "input tensor is not float32")
	}

	output := m.interpreter.GetOutputTensor(0)
	if output == nil || output.NumDims() == 0 {
		_ = m.Close()
		return nil, initFailure(cfg, "cannot get output tensor")
	}
	m.outputs = output.Dim(output.NumDims() - 1)

	GetLogger().Info("TFLite model initialized",
		logger.String("slot", cfg.Name),
		logger.String("input_shape", m.shape.String()),
		logger.Int("outputs", m.outputs),
		logger.Int("threads", threads),
		logger.Duration("load_time", time.Since(start)))

	return m, nil
}

func initFailure(cfg SlotConfig, msg string) error {
	return errors.New(errors.NewStd(msg)).
		Category(errors.CategoryModelInit).
		ModelContext(cfg.Name, cfg.ModelPath).
		Build()
}

// Predict copies input into the interpreter and returns a copy of the scores.
func (m *tfliteModel) Predict(input []float32) ([]float32, error) {
	inputTensor := m.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	copy(inputTensor.Float32s(), input)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputTensor := m.interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		return nil, fmt.Errorf("cannot get output tensor")
	}
	predictions := make([]float32, outputTensor.Dim(outputTensor.NumDims()-1))
	copy(predictions, outputTensor.Float32s())
	return predictions, nil
}

func (m *tfliteModel) InputShape() imaging.Shape { return m.shape }
func (m *tfliteModel) OutputSize() int           { return m.outputs }
func (m *tfliteModel) Backend() string           { return BackendTFLite }

// Close releases the interpreter, its options and the model.
func (m *tfliteModel) Close() error {
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.options != nil {
		m.options.Delete()
		m.options = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
	return nil
}
