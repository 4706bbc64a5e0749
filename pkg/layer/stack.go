package layer

import (
	"errors"
	"fmt"
	"image"

	"github.com/Fepozopo/layerkit/pkg/composite"
	"github.com/Fepozopo/layerkit/pkg/raster"
)

var (
	// ErrInvalidOperation marks a request that was rejected before any
	// mutation: deleting the last layer, clipping the bottom layer, merging
	// down from index 0 and similar.
	ErrInvalidOperation = errors.New("invalid layer operation")
	// ErrIndexOutOfRange marks a layer index outside the stack.
	ErrIndexOutOfRange = errors.New("layer index out of range")
)

// Stack is an ordered list of layers, index 0 at the bottom, with an active
// layer that single-layer operations target.
//
// A Stack is never empty. Every method validates its arguments before
// touching anything, so a returned error means the stack is unchanged.
type Stack struct {
	layers  []*Layer
	active  int
	rev     uint64
	workers int
}

// NewStack creates a stack holding the given layers bottom to top, with the
// topmost layer active. It panics if no layer is given.
func NewStack(layers ...*Layer) *Stack {
	if len(layers) == 0 {
		panic("layer: NewStack needs at least one layer")
	}
	s := &Stack{layers: append([]*Layer(nil), layers...)}
	s.active = len(s.layers) - 1
	return s
}

// Restore rebuilds a stack from layers it takes ownership of, clamping
// active into range.
func Restore(layers []*Layer, active int) *Stack {
	s := NewStack(layers...)
	s.active = clampIndex(active, len(s.layers))
	return s
}

// SetWorkers bounds the parallelism used by merge operations.
// Zero means GOMAXPROCS.
func (s *Stack) SetWorkers(n int) { s.workers = n }

// Len returns the number of layers.
func (s *Stack) Len() int { return len(s.layers) }

// At returns the layer at index i, or nil when out of range.
func (s *Stack) At(i int) *Layer {
	if i < 0 || i >= len(s.layers) {
		return nil
	}
	return s.layers[i]
}

// Layers returns the layers bottom to top. The slice is a copy; the layers
// are not.
func (s *Stack) Layers() []*Layer {
	return append([]*Layer(nil), s.layers...)
}

// ActiveIndex returns the index of the active layer.
func (s *Stack) ActiveIndex() int { return s.active }

// Active returns the active layer.
func (s *Stack) Active() *Layer { return s.layers[s.active] }

// Revision increases on every successful mutation.
func (s *Stack) Revision() uint64 { return s.rev }

// CanvasSize returns the bottom layer's dimensions, which define the canvas.
func (s *Stack) CanvasSize() (int, int) { return s.layers[0].Size() }

// Clone returns a deep copy: new layers, new buffers, same active index.
func (s *Stack) Clone() *Stack {
	c := &Stack{
		layers:  make([]*Layer, len(s.layers)),
		active:  s.active,
		rev:     s.rev,
		workers: s.workers,
	}
	for i, l := range s.layers {
		c.layers[i] = l.Clone()
	}
	return c
}

// Equal reports whether both stacks hold equal layers in the same order and
// the same active index.
func (s *Stack) Equal(o *Stack) bool {
	if s.Len() != o.Len() || s.active != o.active {
		return false
	}
	for i := range s.layers {
		if !s.layers[i].Equal(o.layers[i]) {
			return false
		}
	}
	return true
}

// Composite renders the stack for display.
func (s *Stack) Composite(opts composite.Options) *image.NRGBA {
	return composite.Composite(s.layers, opts)
}

// Thumbnail returns a downscaled copy of layer i whose longer side is at
// most maxSide.
func (s *Stack) Thumbnail(i, maxSide int) (*image.NRGBA, error) {
	if err := s.check(i); err != nil {
		return nil, err
	}
	return raster.Thumbnail(s.layers[i].buf, maxSide), nil
}

func (s *Stack) check(i int) error {
	if i < 0 || i >= len(s.layers) {
		return fmt.Errorf("%w: %d (stack has %d layers)", ErrIndexOutOfRange, i, len(s.layers))
	}
	return nil
}

func (s *Stack) touch() { s.rev++ }

func (s *Stack) mergeOpts() composite.Options {
	return composite.Options{Workers: s.workers}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
