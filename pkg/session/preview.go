package session

import (
	"errors"
	"image"

	"github.com/Fepozopo/layerkit/pkg/history"
	"github.com/Fepozopo/layerkit/pkg/layer"
	"github.com/Fepozopo/layerkit/pkg/logging"
	"github.com/Fepozopo/layerkit/pkg/raster"
)

// ErrPreviewClosed is returned when a finished preview is used again.
var ErrPreviewClosed = errors.New("preview already confirmed or cancelled")

// Preview is a live adjustment of the active layer. Opening it records an
// undo point without clearing redo; Confirm keeps that point and Cancel
// removes it and restores the document exactly.
type Preview struct {
	s      *Session
	index  int
	orig   *image.NRGBA
	closed bool

	// evicted is the oldest undo entry pushed out by the preview's own
	// undo point; Cancel puts it back.
	evicted *history.Snapshot
}

// BeginPreview opens a preview transaction on the active layer. Only one
// preview can be open at a time.
func (s *Session) BeginPreview() (*Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview != nil {
		return nil, ErrPreviewOpen
	}
	evicted := s.hist.Push(s.hist.Capture(s.stack), false)
	p := &Preview{
		s:       s,
		index:   s.stack.ActiveIndex(),
		orig:    raster.Clone(s.stack.Active().Image()),
		evicted: evicted,
	}
	s.preview = p
	return p, nil
}

// Update shows fn applied to the layer as it was when the preview opened.
// Successive updates replace each other rather than accumulate.
func (p *Preview) Update(fn Transform, region *image.Rectangle) error {
	s := p.s
	s.mu.Lock()
	if p.closed {
		s.mu.Unlock()
		return ErrPreviewClosed
	}
	st := layer.Restore([]*layer.Layer{layer.New("", p.orig)}, 0)
	out, err := transformed(st, fn, region)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if out == nil {
		out = p.orig
	}
	if err := s.stack.SetImage(p.index, out); err != nil {
		s.mu.Unlock()
		return err
	}
	ev := s.changedLocked(LayerPixels)
	s.mu.Unlock()
	s.emit(*ev)
	return nil
}

// Confirm ends the preview and keeps its undo point.
func (p *Preview) Confirm() error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.closed {
		return ErrPreviewClosed
	}
	p.closed = true
	p.evicted = nil
	s.preview = nil
	logging.Logger().Info("preview confirmed", "layer", p.index)
	return nil
}

// Cancel ends the preview, drops its undo point and restores the document
// to the state it had when the preview opened.
func (p *Preview) Cancel() error {
	s := p.s
	s.mu.Lock()
	if p.closed {
		s.mu.Unlock()
		return ErrPreviewClosed
	}
	p.closed = true
	s.preview = nil
	restored, ok := s.hist.PopUndo()
	if !ok {
		s.mu.Unlock()
		return errors.New("preview undo point missing")
	}
	s.hist.Reinstate(p.evicted)
	s.install(restored)
	ev := s.changedLocked(History)
	s.mu.Unlock()
	logging.Logger().Info("preview cancelled", "layer", p.index)
	s.emit(*ev)
	return nil
}
