package classifier

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/imaging"
	"github.com/tphakala/leafnet-go/internal/logger"
)

// confidenceScale rounds confidences to four decimal places.
const confidenceScale = 1e4

// Result is the top prediction of one inference call.
type Result struct {
	Label      string
	Confidence float64
	Index      int
}

// Engine runs tensors through model handles and picks the top class.
type Engine struct {
	recorder Recorder
}

// NewEngine returns an Engine. A nil recorder disables metrics.
func NewEngine(recorder Recorder) *Engine {
	return &Engine{recorder: recorder}
}

// Infer validates t against the handle's input shape, runs the model and
// returns the arg-max label with its rounded confidence.
func (e *Engine) Infer(ctx context.Context, h *Handle, t *imaging.Tensor) (Result, error) {
	start := time.Now()
	res, err := e.infer(ctx, h, t)
	if e.recorder != nil && h != nil {
		e.recorder.RecordPrediction(h.name, time.Since(start).Seconds(), err)
	}
	return res, err
}

func (e *Engine) infer(ctx context.Context, h *Handle, t *imaging.Tensor) (Result, error) {
	if h == nil {
		return Result{}, errors.Newf("model handle is nil").Category(errors.CategoryState).Build()
	}
	if err := checkTensor(h, t); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, cancelled(h, err)
	}

	scores, invokeTime, err := e.invoke(ctx, h, t.Data)
	if err != nil {
		return Result{}, err
	}
	if e.recorder != nil {
		e.recorder.RecordModelInvoke(h.name, invokeTime.Seconds())
	}

	if len(scores) != h.NumLabels() {
		return Result{}, errors.InferenceError(fmt.Errorf("model returned %d scores for %d labels", len(scores), h.NumLabels())).
			Context("slot", h.name).
			Build()
	}
	for i, v := range scores {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Result{}, errors.InferenceError(fmt.Errorf("model returned a non-finite score at index %d", i)).
				Context("slot", h.name).
				Build()
		}
	}

	idx := argMax(scores)
	res := Result{
		Label:      h.label(idx),
		Confidence: roundConfidence(scores[idx]),
		Index:      idx,
	}

	GetLogger().Debug("prediction",
		logger.String("slot", h.name),
		logger.String("label", res.Label),
		logger.Float64("confidence", res.Confidence),
		logger.Duration("invoke_time", invokeTime))
	return res, nil
}

// invoke runs the model under the handle lock. The context is checked again
// once the lock is held since another request may have been running.
func (e *Engine) invoke(ctx context.Context, h *Handle, input []float32) ([]float32, time.Duration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, 0, cancelled(h, err)
	}

	start := time.Now()
	scores, err := h.model.Predict(input)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, errors.InferenceError(fmt.Errorf("model invocation failed: %w", err)).
			Context("slot", h.name).
			Context("backend", h.model.Backend()).
			Timing("model-invoke", elapsed).
			Build()
	}
	return scores, elapsed, nil
}

func checkTensor(h *Handle, t *imaging.Tensor) error {
	if t == nil {
		return errors.ShapeError(errors.NewStd("input tensor is missing")).
			Context("slot", h.name).
			Build()
	}
	if t.Shape != h.shape {
		return errors.ShapeError(fmt.Errorf("input tensor shape %s does not match model input %s", t.Shape, h.shape)).
			Context("slot", h.name).
			Build()
	}
	if len(t.Data) != h.shape.Elements() {
		return errors.ShapeError(fmt.Errorf("input tensor holds %d values, shape %s needs %d", len(t.Data), h.shape, h.shape.Elements())).
			Context("slot", h.name).
			Build()
	}
	return nil
}

func cancelled(h *Handle, err error) error {
	return errors.InferenceError(fmt.Errorf("inference cancelled: %w", err)).
		Context("slot", h.name).
		Build()
}

// argMax returns the index of the largest score. Ties resolve to the first
// occurrence.
func argMax(scores []float32) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

// roundConfidence rounds half to even at four decimals and clamps into [0, 1].
func roundConfidence(v float32) float64 {
	r := math.RoundToEven(float64(v)*confidenceScale) / confidenceScale
	return math.Min(1, math.Max(0, r))
}
