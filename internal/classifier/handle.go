package classifier

import (
	"sync"

	"github.com/tphakala/leafnet-go/internal/imaging"
)

// Handle is a loaded model bound to a slot name and its labels. Calls into
// the model are serialized by the handle's own lock.
type Handle struct {
	name      string
	modelPath string
	labels    Labels
	shape     imaging.Shape

	mu    sync.Mutex
	model Model
}

func newHandle(cfg SlotConfig, model Model, labels Labels) *Handle {
	return &Handle{
		name:      cfg.Name,
		modelPath: cfg.ModelPath,
		labels:    labels.Clone(),
		shape:     model.InputShape(),
		model:     model,
	}
}

// Name returns the slot name.
func (h *Handle) Name() string { return h.name }

// Labels returns a copy of the slot labels.
func (h *Handle) Labels() Labels { return h.labels.Clone() }

// NumLabels returns the number of classes.
func (h *Handle) NumLabels() int { return len(h.labels) }

// InputShape returns the tensor shape the model accepts.
func (h *Handle) InputShape() imaging.Shape { return h.shape }

// Backend returns the runtime used by the slot.
func (h *Handle) Backend() string { return h.model.Backend() }

func (h *Handle) label(i int) string { return h.labels[i] }

func (h *Handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.model.Close()
}
