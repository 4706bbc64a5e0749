package history

import (
	"fmt"
	"image/color"
	"testing"

	"github.com/Fepozopo/layerkit/pkg/blend"
	"github.com/Fepozopo/layerkit/pkg/layer"
	"github.com/Fepozopo/layerkit/pkg/raster"
)

func makeStack() *layer.Stack {
	bg := layer.New("bg", raster.NewSolid(5, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))
	fg := layer.New("fg", raster.NewTransparent(5, 3))
	return layer.NewStack(bg, fg)
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprintf("compress=%v", compress), func(t *testing.T) {
			s := makeStack()
			_ = s.SetBlendMode(1, blend.Overlay)
			_ = s.SetOpacity(1, 0.25)
			_ = s.ToggleClippingMask(1)
			_ = s.SetActive(0)

			sn := Capture(s, compress)
			got, err := sn.Restore()
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(s) {
				t.Fatal("restored stack differs from captured stack")
			}
			got.At(0).Image().Pix[0] = 99
			again, err := sn.Restore()
			if err != nil {
				t.Fatal(err)
			}
			if again.At(0).Image().Pix[0] != 10 {
				t.Fatal("restored stack shares memory with the snapshot")
			}
		})
	}
}

func TestSnapshotIsolatedFromLaterEdits(t *testing.T) {
	s := makeStack()
	sn := Capture(s, false)
	_ = s.SetImage(0, raster.NewSolid(5, 3, color.NRGBA{A: 255}))
	got, err := sn.Restore()
	if err != nil {
		t.Fatal(err)
	}
	if got.At(0).Image().Pix[0] != 10 {
		t.Fatal("snapshot changed after the stack was edited")
	}
}

func TestCompressedSnapshotIsSmaller(t *testing.T) {
	s := layer.NewStack(layer.New("flat", raster.NewSolid(128, 128, color.NRGBA{R: 200, A: 255})))
	raw := Capture(s, false)
	packed := Capture(s, true)
	if packed.Size() >= raw.Size() {
		t.Fatalf("expected compression to shrink a flat layer: %d >= %d", packed.Size(), raw.Size())
	}
}

func TestBoundedHistoryKeepsNewest(t *testing.T) {
	const limit = 10
	m := New(limit, limit)
	s := makeStack()
	for i := 0; i < limit+5; i++ {
		_ = s.Rename(0, fmt.Sprintf("state-%d", i))
		m.PushUndo(s, true)
	}
	if m.UndoLen() != limit {
		t.Fatalf("expected %d undo entries, got %d", limit, m.UndoLen())
	}
	cur := s
	for i := limit + 4; i >= 5; i-- {
		prev, ok := m.Undo(cur)
		if !ok {
			t.Fatalf("undo %d failed", i)
		}
		if got := prev.At(0).Name(); got != fmt.Sprintf("state-%d", i) {
			t.Fatalf("expected state-%d, got %s", i, got)
		}
		cur = prev
	}
	if _, ok := m.Undo(cur); ok {
		t.Fatal("oldest entries should have been evicted")
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	m := New(0, 0)
	s := makeStack()
	ops := []func(*layer.Stack) error{
		func(s *layer.Stack) error { return s.SetOpacity(1, 0.5) },
		func(s *layer.Stack) error {
			s.AddLayer("extra", raster.NewSolid(5, 3, color.NRGBA{G: 255, A: 128}), true)
			return nil
		},
		func(s *layer.Stack) error { return s.MergeDown(2) },
		func(s *layer.Stack) error { return s.SetBlendMode(0, blend.Difference) },
		func(s *layer.Stack) error { return s.Move(0, 1) },
	}
	for _, op := range ops {
		m.PushUndo(s, true)
		if err := op(s); err != nil {
			t.Fatal(err)
		}
	}
	final := s.Clone()

	cur := s
	for range ops {
		prev, ok := m.Undo(cur)
		if !ok {
			t.Fatal("undo failed")
		}
		cur = prev
	}
	if !cur.Equal(makeStack()) {
		t.Fatal("undoing every step should give back the initial stack")
	}
	if _, ok := m.Undo(cur); ok {
		t.Fatal("expected nothing left to undo")
	}
	for range ops {
		next, ok := m.Redo(cur)
		if !ok {
			t.Fatal("redo failed")
		}
		cur = next
	}
	if !cur.Equal(final) {
		t.Fatal("redoing every step should give back the final stack")
	}
	if m.CanRedo() {
		t.Fatal("expected nothing left to redo")
	}
}

func TestPushUndoResetsRedo(t *testing.T) {
	m := New(0, 0)
	s := makeStack()
	m.PushUndo(s, true)
	_ = s.Rename(0, "edited")
	prev, _ := m.Undo(s)
	if m.RedoLen() != 1 {
		t.Fatalf("expected one redo entry, got %d", m.RedoLen())
	}
	m.PushUndo(prev, false)
	if m.RedoLen() != 1 {
		t.Fatal("resetRedo=false must keep the redo stack")
	}
	m.PushUndo(prev, true)
	if m.CanRedo() {
		t.Fatal("resetRedo=true must clear the redo stack")
	}
}

func TestPreviewCancelPattern(t *testing.T) {
	m := New(0, 0)
	s := makeStack()
	m.PushUndo(s, true)
	_ = s.Rename(1, "committed")
	before := s.Clone()
	undoBefore, redoBefore := m.UndoLen(), m.RedoLen()

	m.PushUndo(s, false)
	_ = s.SetImage(1, raster.NewSolid(5, 3, color.NRGBA{B: 255, A: 255}))
	restored, ok := m.PopUndo()
	if !ok {
		t.Fatal("expected the preview entry to pop")
	}
	if !restored.Equal(before) {
		t.Fatal("cancel should restore the pre-preview state")
	}
	if m.UndoLen() != undoBefore || m.RedoLen() != redoBefore {
		t.Fatalf("history changed: undo %d->%d redo %d->%d", undoBefore, m.UndoLen(), redoBefore, m.RedoLen())
	}
}

func TestEmptyHistoryIsNoop(t *testing.T) {
	m := New(3, 3)
	s := makeStack()
	if _, ok := m.Undo(s); ok {
		t.Fatal("undo on empty history should report nothing")
	}
	if _, ok := m.Redo(s); ok {
		t.Fatal("redo on empty history should report nothing")
	}
	if _, ok := m.PopUndo(); ok {
		t.Fatal("pop on empty history should report nothing")
	}
	m.DropUndo()
	if m.UndoLen() != 0 || m.RedoLen() != 0 {
		t.Fatal("empty history changed")
	}
}

func TestRedoBounded(t *testing.T) {
	m := New(10, 2)
	s := makeStack()
	for i := 0; i < 5; i++ {
		m.PushUndo(s, true)
	}
	cur := s
	for m.CanUndo() {
		cur, _ = m.Undo(cur)
	}
	if m.RedoLen() != 2 {
		t.Fatalf("expected redo bounded to 2, got %d", m.RedoLen())
	}
}

func TestPushReportsEvictionAndReinstate(t *testing.T) {
	m := New(2, 2)
	s := makeStack()
	if ev := m.Push(m.Capture(s), true); ev != nil {
		t.Fatal("nothing should be evicted below the bound")
	}
	_ = s.Rename(0, "second")
	m.Push(m.Capture(s), true)
	_ = s.Rename(0, "third")
	evicted := m.Push(m.Capture(s), false)
	if evicted == nil || m.UndoLen() != 2 {
		t.Fatalf("expected an eviction at the bound, undo=%d", m.UndoLen())
	}
	m.Reinstate(evicted)
	if m.UndoLen() != 2 {
		t.Fatal("reinstate must not exceed the bound")
	}
	m.DropUndo()
	m.Reinstate(evicted)
	if m.UndoLen() != 2 {
		t.Fatalf("expected the evicted entry back, undo=%d", m.UndoLen())
	}
	var oldest *layer.Stack
	for m.CanUndo() {
		oldest, _ = m.PopUndo()
	}
	if oldest == nil || oldest.At(0).Name() == "second" || oldest.At(0).Name() == "third" {
		t.Fatal("reinstated entry should be the oldest")
	}
}
