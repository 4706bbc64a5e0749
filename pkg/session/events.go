package session

import (
	"maps"
	"slices"
)

// Kind classifies a document change.
type Kind int

const (
	// LayerPixels: a layer's buffer changed.
	LayerPixels Kind = iota
	// LayerAttrs: name, visibility, opacity, blend mode or clipping changed.
	LayerAttrs
	// Structure: layers were added, removed, merged or reordered.
	Structure
	// History: the stack was replaced by undo, redo or preview cancel.
	History
	// Selection: the active layer changed. The composite is unaffected.
	Selection
)

func (k Kind) String() string {
	switch k {
	case LayerPixels:
		return "pixels"
	case LayerAttrs:
		return "attrs"
	case Structure:
		return "structure"
	case History:
		return "history"
	case Selection:
		return "selection"
	}
	return "unknown"
}

// Event describes one change. Generation matches Session.Generation right
// after the change.
type Event struct {
	Kind       Kind
	Active     int
	Generation uint64
}

// Subscribe registers fn for every subsequent event and returns a function
// that unregisters it.
func (s *Session) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, id := range slices.Sorted(maps.Keys(s.subs)) {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
