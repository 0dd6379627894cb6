package classifier

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/imaging"
	"github.com/tphakala/leafnet-go/internal/logger"
)

// Recorder receives model load and prediction outcomes for metrics.
type Recorder interface {
	RecordModelLoad(slot string, err error)
	RecordModelInvoke(slot string, durationSeconds float64)
	RecordPrediction(slot string, durationSeconds float64, err error)
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	inputShape *imaging.Shape
	recorder   Recorder
}

// WithInputShape makes Load reject models whose input shape differs from s.
func WithInputShape(s imaging.Shape) Option {
	return func(o *loadOptions) { o.inputShape = &s }
}

// WithRecorder reports every slot load to r.
func WithRecorder(r Recorder) Option {
	return func(o *loadOptions) { o.recorder = r }
}

// Registry holds the model handles loaded at startup. It is read-only after
// Load returns and safe for concurrent use.
type Registry struct {
	handles map[string]*Handle
	names   []string

	closeOnce sync.Once
	closeErr  error
}

// Load opens every slot concurrently. If any slot fails, the slots that did
// load are closed and a StartupError is returned.
func Load(ctx context.Context, slots []SlotConfig, loader Loader, opts ...Option) (*Registry, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if len(slots) == 0 {
		return nil, errors.StartupError(errors.NewStd("no model slots configured")).Build()
	}
	if err := checkSlots(slots); err != nil {
		return nil, err
	}

	start := time.Now()
	handles := make([]*Handle, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range slots {
		g.Go(func() error {
			h, err := loadSlot(gctx, cfg, loader, o)
			if o.recorder != nil {
				o.recorder.RecordModelLoad(cfg.Name, err)
			}
			if err != nil {
				return errors.StartupError(fmt.Errorf("load model slot %q: %w", cfg.Name, err)).
					Context("slot", cfg.Name).
					Build()
			}
			handles[i] = h
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, h := range handles {
			if h != nil {
				_ = h.close()
			}
		}
		return nil, err
	}

	r := &Registry{handles: make(map[string]*Handle, len(handles))}
	for _, h := range handles {
		r.handles[h.name] = h
		r.names = append(r.names, h.name)
	}
	slices.Sort(r.names)

	GetLogger().Info("model registry loaded",
		logger.Int("slots", len(r.names)),
		logger.String("names", fmt.Sprint(r.names)),
		logger.Duration("load_time", time.Since(start)))
	return r, nil
}

// checkSlots rejects repeated slot names and warns about a model file bound
// to more than one slot.
func checkSlots(slots []SlotConfig) error {
	names := make(map[string]struct{}, len(slots))
	paths := make(map[string]string, len(slots))
	for _, cfg := range slots {
		if _, dup := names[cfg.Name]; dup {
			return errors.StartupError(fmt.Errorf("model slot %q is configured twice", cfg.Name)).Build()
		}
		names[cfg.Name] = struct{}{}

		if other, shared := paths[cfg.ModelPath]; shared {
			GetLogger().Warn("model file is bound to more than one slot",
				logger.String("slot", cfg.Name),
				logger.String("other_slot", other),
				logger.String("model_path", cfg.ModelPath))
			continue
		}
		paths[cfg.ModelPath] = cfg.Name
	}
	return nil
}

func loadSlot(ctx context.Context, cfg SlotConfig, loader Loader, o *loadOptions) (*Handle, error) {
	labels, err := ResolveLabels(cfg)
	if err != nil {
		return nil, err
	}
	if err := labels.Validate(); err != nil {
		return nil, err
	}

	model, err := loader.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if model.OutputSize() != len(labels) {
		_ = model.Close()
		return nil, errors.Newf("label count mismatch: model expects %d classes but %d labels are configured",
			model.OutputSize(), len(labels)).
			Category(errors.CategoryLabelLoad).
			ModelContext(cfg.Name, cfg.ModelPath).
			Context("expected_labels", model.OutputSize()).
			Context("actual_labels", len(labels)).
			Build()
	}
	if o.inputShape != nil && model.InputShape() != *o.inputShape {
		_ = model.Close()
		return nil, errors.Newf("model input shape %s does not match image shape %s",
			model.InputShape(), *o.inputShape).
			Category(errors.CategoryModelInit).
			ModelContext(cfg.Name, cfg.ModelPath).
			Build()
	}

	GetLogger().Debug("model slot ready",
		logger.String("slot", cfg.Name),
		logger.String("backend", model.Backend()),
		logger.Int("labels", len(labels)))
	return newHandle(cfg, model, labels), nil
}

// Get returns the handle for a slot.
func (r *Registry) Get(name string) (*Handle, error) {
	h, ok := r.handles[name]
	if !ok {
		return nil, errors.Newf("no model loaded for slot %q", name).
			Category(errors.CategoryState).
			Context("slot", name).
			Build()
	}
	return h, nil
}

// Names returns the loaded slot names in sorted order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Close releases every model. Calling it again returns the first result.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		for _, name := range r.names {
			if err := r.handles[name].close(); err != nil {
				errs = append(errs, fmt.Errorf("close slot %q: %w", name, err))
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
