// Package session ties one open document together: its layer stack, its
// undo history and a cached display composite.
//
// All methods are safe for concurrent use. Subscribers are called after the
// session lock is released and may call back into the session.
package session

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/Fepozopo/layerkit/pkg/composite"
	"github.com/Fepozopo/layerkit/pkg/history"
	"github.com/Fepozopo/layerkit/pkg/layer"
	"github.com/Fepozopo/layerkit/pkg/logging"
	"github.com/Fepozopo/layerkit/pkg/raster"
)

// ErrPreviewOpen is returned by calls that change the document or its
// history while a preview transaction is pending.
var ErrPreviewOpen = errors.New("a preview is in progress")

// Transform is a pure pixel function. It may modify and return its argument,
// which is always a private copy.
type Transform func(*image.NRGBA) *image.NRGBA

// Options configure a session.
type Options struct {
	MaxUndo   int
	MaxRedo   int
	Compress  bool
	Composite composite.Options
}

// DefaultOptions returns 40-deep history without compression and a
// checkerboard display composite.
func DefaultOptions() Options {
	return Options{
		MaxUndo:   history.DefaultMax,
		MaxRedo:   history.DefaultMax,
		Composite: composite.DefaultOptions(),
	}
}

// Session is one open document.
type Session struct {
	mu      sync.Mutex
	stack   *layer.Stack
	hist    *history.Manager
	opts    Options
	cache   *image.NRGBA
	dirty   bool
	gen     uint64
	subs    map[int]func(Event)
	nextSub int
	preview *Preview
	render  func(*layer.Stack, composite.Options) *image.NRGBA
}

// New creates a w x h document holding one opaque white "Background" layer.
func New(w, h int, opts Options) *Session {
	bg := layer.New("Background", raster.NewSolid(w, h, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	return FromStack(layer.NewStack(bg), opts)
}

// Open creates a document whose single layer is a copy of img.
func Open(name string, img image.Image, opts Options) *Session {
	return FromStack(layer.NewStack(layer.New(name, img)), opts)
}

// FromStack wraps an existing stack, taking ownership of it.
func FromStack(s *layer.Stack, opts Options) *Session {
	h := history.New(opts.MaxUndo, opts.MaxRedo)
	h.SetCompression(opts.Compress)
	s.SetWorkers(opts.Composite.Workers)
	w, ht := s.CanvasSize()
	logging.Logger().Info("document opened", "width", w, "height", ht, "layers", s.Len())
	return &Session{
		stack:  s,
		hist:   h,
		opts:   opts,
		dirty:  true,
		subs:   make(map[int]func(Event)),
		render: (*layer.Stack).Composite,
	}
}

// Composite returns the display image, recomputing it only when something
// changed since the last call. The result is shared and must not be modified.
func (s *Session) Composite() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty && s.cache != nil {
		logging.Logger().Debug("composite cache hit", "generation", s.gen)
		return s.cache
	}
	start := time.Now()
	s.cache = s.render(s.stack, s.opts.Composite)
	s.dirty = false
	logging.Logger().Debug("composite refreshed", "generation", s.gen, "elapsed", time.Since(start))
	return s.cache
}

// Dirty reports whether the cached composite is stale.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Generation increases with every change to the document.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// ActiveLayer returns the active layer. Treat it as read-only.
func (s *Session) ActiveLayer() *layer.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Active()
}

// ActiveIndex returns the active layer's index.
func (s *Session) ActiveIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.ActiveIndex()
}

// Layers returns the layers bottom to top. Treat them as read-only.
func (s *Session) Layers() []*layer.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Layers()
}

// CanvasSize returns the document dimensions.
func (s *Session) CanvasSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.CanvasSize()
}

// Snapshot returns a deep copy of the layer stack, for export.
func (s *Session) Snapshot() *layer.Stack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Clone()
}

// Thumbnail returns a downscaled copy of layer i.
func (s *Session) Thumbnail(i, maxSide int) (*image.NRGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Thumbnail(i, maxSide)
}

// SetActive selects layer i. Selection is not recorded in history.
func (s *Session) SetActive(i int) error {
	s.mu.Lock()
	if s.preview != nil {
		s.mu.Unlock()
		return ErrPreviewOpen
	}
	if err := s.stack.SetActive(i); err != nil {
		s.mu.Unlock()
		return err
	}
	ev := Event{Kind: Selection, Active: i, Generation: s.gen}
	s.mu.Unlock()
	s.emit(ev)
	return nil
}

// ApplyToActiveLayer runs fn on a copy of the active layer's pixels and
// stores the result. With a region only pixels inside it change; the region
// is clamped to the layer. Nothing is recorded in history; pair it with
// PushUndo, or use Apply.
func (s *Session) ApplyToActiveLayer(fn Transform, region *image.Rectangle) error {
	s.mu.Lock()
	if s.preview != nil {
		s.mu.Unlock()
		return ErrPreviewOpen
	}
	ev, err := s.applyLocked(fn, region)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if ev != nil {
		s.emit(*ev)
	}
	return nil
}

// Apply is ApplyToActiveLayer with an undo point that is kept only when
// the transform succeeds and changes something.
func (s *Session) Apply(fn Transform, region *image.Rectangle) error {
	return s.Edit(LayerPixels, func(st *layer.Stack) error {
		out, err := transformed(st, fn, region)
		if err != nil || out == nil {
			return err
		}
		return st.SetImage(st.ActiveIndex(), out)
	})
}

// MutateLayerStack runs op against the live stack without touching history.
// op must not retain the stack.
func (s *Session) MutateLayerStack(op func(*layer.Stack) error) error {
	s.mu.Lock()
	if s.preview != nil {
		s.mu.Unlock()
		return ErrPreviewOpen
	}
	before := s.stack.Revision()
	err := op(s.stack)
	var ev *Event
	if s.stack.Revision() != before {
		ev = s.changedLocked(Structure)
	}
	s.mu.Unlock()
	if ev != nil {
		s.emit(*ev)
	}
	return err
}

// Edit runs op as one undoable step. The undo point is recorded only if op
// succeeds and changes the stack. If op fails after a partial change the
// stack is rolled back, so a failed edit leaves no trace.
func (s *Session) Edit(kind Kind, op func(*layer.Stack) error) error {
	s.mu.Lock()
	if s.preview != nil {
		s.mu.Unlock()
		return ErrPreviewOpen
	}
	before := s.stack.Revision()
	sn := s.hist.Capture(s.stack)
	err := op(s.stack)
	changed := s.stack.Revision() != before
	var ev *Event
	switch {
	case err != nil && changed:
		if restored, rerr := sn.Restore(); rerr == nil {
			s.install(restored)
		} else {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
		ev = s.changedLocked(kind)
	case err == nil && changed:
		s.hist.Push(sn, true)
		ev = s.changedLocked(kind)
	}
	s.mu.Unlock()
	if err != nil {
		logging.Logger().Warn("edit rejected", "kind", kind, "err", err)
	}
	if ev != nil {
		s.emit(*ev)
	}
	return err
}

// PushUndo records the current state as an undo point. It fails while a
// preview is open, since the preview owns the newest entry.
func (s *Session) PushUndo(resetRedo bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview != nil {
		return ErrPreviewOpen
	}
	s.hist.PushUndo(s.stack, resetRedo)
	return nil
}

// Undo steps back one undo point. It reports false when there is nothing
// to undo or a preview is open.
func (s *Session) Undo() bool { return s.step(s.hist.Undo, "undo") }

// Redo steps forward one redo point.
func (s *Session) Redo() bool { return s.step(s.hist.Redo, "redo") }

func (s *Session) step(fn func(*layer.Stack) (*layer.Stack, bool), name string) bool {
	s.mu.Lock()
	if s.preview != nil {
		s.mu.Unlock()
		logging.Logger().Warn(name + " ignored while a preview is open")
		return false
	}
	restored, ok := fn(s.stack)
	var ev *Event
	if ok {
		s.install(restored)
		ev = s.changedLocked(History)
	}
	s.mu.Unlock()
	if ev != nil {
		s.emit(*ev)
	}
	return ok
}

func (s *Session) CanUndo() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.hist.CanUndo() }
func (s *Session) CanRedo() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.hist.CanRedo() }
func (s *Session) UndoLen() int  { s.mu.Lock(); defer s.mu.Unlock(); return s.hist.UndoLen() }
func (s *Session) RedoLen() int  { s.mu.Lock(); defer s.mu.Unlock(); return s.hist.RedoLen() }

func (s *Session) applyLocked(fn Transform, region *image.Rectangle) (*Event, error) {
	out, err := transformed(s.stack, fn, region)
	if err != nil || out == nil {
		return nil, err
	}
	if err := s.stack.SetImage(s.stack.ActiveIndex(), out); err != nil {
		return nil, err
	}
	return s.changedLocked(LayerPixels), nil
}

// transformed computes the active layer's new pixels. It returns nil, nil
// when the clamped region is empty.
func transformed(st *layer.Stack, fn Transform, region *image.Rectangle) (*image.NRGBA, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil transform", layer.ErrInvalidOperation)
	}
	orig := st.Active().Image()
	var r image.Rectangle
	if region != nil {
		r = region.Canon().Intersect(orig.Rect)
		if r.Empty() {
			return nil, nil
		}
	}
	out := fn(raster.Clone(orig))
	if out == nil || out.Rect.Empty() {
		return nil, fmt.Errorf("%w: transform returned an empty image", layer.ErrInvalidOperation)
	}
	if region == nil {
		return out, nil
	}
	return raster.PasteRegion(orig, raster.ToNRGBA(out), r), nil
}

// install swaps in a restored stack.
func (s *Session) install(st *layer.Stack) {
	st.SetWorkers(s.opts.Composite.Workers)
	s.stack = st
}

// changedLocked marks the composite stale and returns the event to emit.
func (s *Session) changedLocked(kind Kind) *Event {
	s.gen++
	s.dirty = true
	return &Event{Kind: kind, Active: s.stack.ActiveIndex(), Generation: s.gen}
}
