// Package history keeps bounded undo and redo stacks of layer-stack
// snapshots for one document.
//
// Entries beyond the bound are evicted oldest-first without error. Undo and
// redo with nothing to pop report ok=false and change nothing.
package history

import (
	"github.com/Fepozopo/layerkit/pkg/layer"
	"github.com/Fepozopo/layerkit/pkg/logging"
)

// DefaultMax is the undo and redo depth used when none is configured.
const DefaultMax = 40

// Manager owns one document's undo and redo stacks. It is not safe for
// concurrent use; the owning session serialises access.
type Manager struct {
	undo     []*Snapshot
	redo     []*Snapshot
	maxUndo  int
	maxRedo  int
	compress bool
}

// New returns a manager bounded to maxUndo and maxRedo entries. Non-positive
// bounds fall back to DefaultMax.
func New(maxUndo, maxRedo int) *Manager {
	if maxUndo <= 0 {
		maxUndo = DefaultMax
	}
	if maxRedo <= 0 {
		maxRedo = DefaultMax
	}
	return &Manager{maxUndo: maxUndo, maxRedo: maxRedo}
}

// SetCompression toggles zstd compression for snapshots taken from now on.
func (m *Manager) SetCompression(on bool) { m.compress = on }

// PushUndo records s as the newest undo point. With resetRedo the redo
// stack is cleared, which is what every ordinary edit wants; previews pass
// false so a cancelled preview leaves redo untouched.
func (m *Manager) PushUndo(s *layer.Stack, resetRedo bool) {
	m.Push(m.Capture(s), resetRedo)
}

// Capture snapshots s with the manager's compression setting, for callers
// that decide only after an edit whether it deserves an undo point.
func (m *Manager) Capture(s *layer.Stack) *Snapshot { return Capture(s, m.compress) }

// Push records a previously captured snapshot as the newest undo point. It
// returns the oldest entry when the bound forced it out, nil otherwise.
func (m *Manager) Push(sn *Snapshot, resetRedo bool) (evicted *Snapshot) {
	m.undo, evicted = push(m.undo, sn, m.maxUndo)
	if resetRedo {
		m.redo = nil
	}
	return evicted
}

// Reinstate puts an entry evicted by Push back at the oldest end of the undo
// stack, if there is room for it.
func (m *Manager) Reinstate(sn *Snapshot) {
	if sn == nil || len(m.undo) >= m.maxUndo {
		return
	}
	m.undo = append([]*Snapshot{sn}, m.undo...)
}

// Undo returns the most recent undo point, first saving cur onto the redo
// stack. ok is false when there is nothing to undo.
func (m *Manager) Undo(cur *layer.Stack) (*layer.Stack, bool) {
	sn, rest, ok := pop(m.undo)
	if !ok {
		return nil, false
	}
	restored, err := sn.Restore()
	if err != nil {
		logging.Logger().Error("undo snapshot unreadable, dropping it", "err", err)
		m.undo = rest
		return nil, false
	}
	m.redo, _ = push(m.redo, m.Capture(cur), m.maxRedo)
	m.undo = rest
	logging.Logger().Info("undo", "undo", len(m.undo), "redo", len(m.redo))
	return restored, true
}

// Redo is the mirror of Undo: it saves cur onto the undo stack and returns
// the most recent redo point.
func (m *Manager) Redo(cur *layer.Stack) (*layer.Stack, bool) {
	sn, rest, ok := pop(m.redo)
	if !ok {
		return nil, false
	}
	restored, err := sn.Restore()
	if err != nil {
		logging.Logger().Error("redo snapshot unreadable, dropping it", "err", err)
		m.redo = rest
		return nil, false
	}
	m.undo, _ = push(m.undo, m.Capture(cur), m.maxUndo)
	m.redo = rest
	logging.Logger().Info("redo", "undo", len(m.undo), "redo", len(m.redo))
	return restored, true
}

// PopUndo removes the newest undo point without touching redo and returns
// the state it held. It backs preview cancellation and the rollback of
// edits that turned out to change nothing.
func (m *Manager) PopUndo() (*layer.Stack, bool) {
	sn, rest, ok := pop(m.undo)
	if !ok {
		return nil, false
	}
	m.undo = rest
	restored, err := sn.Restore()
	if err != nil {
		logging.Logger().Error("popped snapshot unreadable", "err", err)
		return nil, false
	}
	return restored, true
}

// DropUndo discards the newest undo point without restoring it.
func (m *Manager) DropUndo() {
	if _, rest, ok := pop(m.undo); ok {
		m.undo = rest
	}
}

func (m *Manager) CanUndo() bool { return len(m.undo) > 0 }
func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }
func (m *Manager) UndoLen() int  { return len(m.undo) }
func (m *Manager) RedoLen() int  { return len(m.redo) }

// Clear empties both stacks.
func (m *Manager) Clear() {
	m.undo = nil
	m.redo = nil
}

// push appends sn and trims the stack to max, returning the newest of the
// evicted entries.
func push(stack []*Snapshot, sn *Snapshot, max int) ([]*Snapshot, *Snapshot) {
	stack = append(stack, sn)
	var evicted *Snapshot
	if over := len(stack) - max; over > 0 {
		evicted = stack[over-1]
		clear(stack[:over])
		stack = stack[over:]
	}
	return stack, evicted
}

func pop(stack []*Snapshot) (*Snapshot, []*Snapshot, bool) {
	if len(stack) == 0 {
		return nil, stack, false
	}
	last := len(stack) - 1
	sn := stack[last]
	stack[last] = nil
	return sn, stack[:last], true
}
