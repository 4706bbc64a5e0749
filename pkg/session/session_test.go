package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/Fepozopo/layerkit/pkg/blend"
	"github.com/Fepozopo/layerkit/pkg/composite"
	"github.com/Fepozopo/layerkit/pkg/layer"
	"github.com/Fepozopo/layerkit/pkg/raster"
)

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.NRGBA{A: 255}
	red   = color.NRGBA{R: 255, A: 255}
)

func testOptions() Options {
	o := DefaultOptions()
	o.Composite = composite.Options{Background: composite.BackgroundTransparent, Workers: 2}
	return o
}

func fillWith(c color.NRGBA) Transform {
	return func(img *image.NRGBA) *image.NRGBA {
		raster.Fill(img, c)
		return img
	}
}

func TestNewHasWhiteBackground(t *testing.T) {
	s := New(6, 4, testOptions())
	if got := s.ActiveLayer().Name(); got != "Background" {
		t.Fatalf("expected Background layer, got %q", got)
	}
	if c := s.Composite().NRGBAAt(5, 3); c != white {
		t.Fatalf("expected white composite, got %v", c)
	}
}

func TestCompositeCacheAndDirtyFlag(t *testing.T) {
	s := New(4, 4, testOptions())
	calls := 0
	s.render = func(st *layer.Stack, o composite.Options) *image.NRGBA {
		calls++
		return st.Composite(o)
	}
	if !s.Dirty() {
		t.Fatal("new session should start dirty")
	}
	first := s.Composite()
	second := s.Composite()
	if calls != 1 || first != second {
		t.Fatalf("expected one render served from cache, got %d renders", calls)
	}
	if err := s.Apply(fillWith(red), nil); err != nil {
		t.Fatal(err)
	}
	if !s.Dirty() {
		t.Fatal("edit should mark the composite stale")
	}
	if c := s.Composite().NRGBAAt(0, 0); c != red || calls != 2 {
		t.Fatalf("expected fresh red composite after edit, got %v (%d renders)", c, calls)
	}
	if err := s.SetActive(0); err != nil {
		t.Fatal(err)
	}
	if s.Dirty() {
		t.Fatal("selection must not invalidate the composite")
	}
}

func TestApplyToActiveLayerRegion(t *testing.T) {
	s := New(6, 6, testOptions())
	region := image.Rect(4, 4, 20, 20)
	if err := s.ApplyToActiveLayer(fillWith(black), &region); err != nil {
		t.Fatal(err)
	}
	img := s.ActiveLayer().Image()
	if c := img.NRGBAAt(5, 5); c != black {
		t.Fatalf("inside clamped region expected black, got %v", c)
	}
	if c := img.NRGBAAt(3, 3); c != white {
		t.Fatalf("outside region expected white, got %v", c)
	}
	if s.UndoLen() != 0 {
		t.Fatal("ApplyToActiveLayer must not record history")
	}
}

func TestApplyEmptyRegionIsNoop(t *testing.T) {
	s := New(4, 4, testOptions())
	gen := s.Generation()
	region := image.Rect(10, 10, 12, 12)
	if err := s.Apply(fillWith(black), &region); err != nil {
		t.Fatal(err)
	}
	if s.Generation() != gen || s.UndoLen() != 0 {
		t.Fatal("a region outside the canvas should change nothing")
	}
}

func TestApplyRejectsNilTransformResult(t *testing.T) {
	s := New(4, 4, testOptions())
	err := s.Apply(func(*image.NRGBA) *image.NRGBA { return nil }, nil)
	if !errors.Is(err, layer.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
	if s.UndoLen() != 0 {
		t.Fatal("failed edit must not leave an undo point")
	}
}

func TestEditRecordsUndoOnlyOnChange(t *testing.T) {
	s := New(4, 4, testOptions())
	if err := s.Edit(Structure, func(st *layer.Stack) error { return st.Move(0, 1) }); err != nil {
		t.Fatal(err)
	}
	if s.UndoLen() != 0 {
		t.Fatal("a no-op move should not be recorded")
	}
	err := s.Edit(Structure, func(st *layer.Stack) error { return st.Delete(0) })
	if !errors.Is(err, layer.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
	if s.UndoLen() != 0 || len(s.Layers()) != 1 {
		t.Fatal("rejected delete must leave stack and history untouched")
	}
}

func TestEditRollsBackPartialChange(t *testing.T) {
	s := New(4, 4, testOptions())
	before := s.Snapshot()
	err := s.Edit(Structure, func(st *layer.Stack) error {
		st.AddLayer("temp", nil, true)
		return st.ToggleClippingMask(0)
	})
	if !errors.Is(err, layer.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
	if !s.Snapshot().Equal(before) {
		t.Fatal("failed compound edit should be rolled back")
	}
	if s.UndoLen() != 0 {
		t.Fatal("failed compound edit should not be recorded")
	}
}

func TestUndoRedoThroughSession(t *testing.T) {
	s := New(4, 4, testOptions())
	initial := s.Snapshot()
	steps := []struct {
		kind Kind
		op   func(*layer.Stack) error
	}{
		{Structure, func(st *layer.Stack) error { st.AddLayer("paint", nil, true); return nil }},
		{LayerAttrs, func(st *layer.Stack) error { return st.SetBlendMode(1, blend.Multiply) }},
		{LayerPixels, func(st *layer.Stack) error { return st.SetImage(1, raster.NewSolid(4, 4, red)) }},
		{Structure, func(st *layer.Stack) error { return st.MergeDown(1) }},
	}
	for _, step := range steps {
		if err := s.Edit(step.kind, step.op); err != nil {
			t.Fatal(err)
		}
	}
	final := s.Snapshot()
	if c := s.Composite().NRGBAAt(0, 0); c != red {
		t.Fatalf("multiply red over white expected red, got %v", c)
	}
	for range steps {
		if !s.Undo() {
			t.Fatal("undo failed")
		}
	}
	if !s.Snapshot().Equal(initial) || s.Undo() {
		t.Fatal("expected the initial document with nothing left to undo")
	}
	for range steps {
		if !s.Redo() {
			t.Fatal("redo failed")
		}
	}
	if !s.Snapshot().Equal(final) || s.CanRedo() {
		t.Fatal("expected the final document with nothing left to redo")
	}
	if c := s.Composite().NRGBAAt(0, 0); c != red {
		t.Fatalf("composite after redo expected red, got %v", c)
	}
}

func TestPreviewCancelRestoresExactly(t *testing.T) {
	s := New(4, 4, testOptions())
	_ = s.Edit(LayerAttrs, func(st *layer.Stack) error { return st.Rename(0, "paper") })
	s.Undo()
	before := s.Snapshot()
	undoLen, redoLen := s.UndoLen(), s.RedoLen()

	p, err := s.BeginPreview()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.BeginPreview(); !errors.Is(err, ErrPreviewOpen) {
		t.Fatalf("expected ErrPreviewOpen, got %v", err)
	}
	if err := p.Update(fillWith(black), nil); err != nil {
		t.Fatal(err)
	}
	if err := p.Update(fillWith(red), nil); err != nil {
		t.Fatal(err)
	}
	if c := s.Composite().NRGBAAt(1, 1); c != red {
		t.Fatalf("preview should show the latest adjustment, got %v", c)
	}
	if s.Undo() {
		t.Fatal("undo must be refused while previewing")
	}
	if err := p.Cancel(); err != nil {
		t.Fatal(err)
	}
	if !s.Snapshot().Equal(before) {
		t.Fatal("cancel should restore the pre-preview document")
	}
	if s.UndoLen() != undoLen || s.RedoLen() != redoLen {
		t.Fatalf("history changed: undo %d->%d redo %d->%d", undoLen, s.UndoLen(), redoLen, s.RedoLen())
	}
	if err := p.Cancel(); !errors.Is(err, ErrPreviewClosed) {
		t.Fatalf("expected ErrPreviewClosed, got %v", err)
	}
}

func TestPreviewCancelAtHistoryBound(t *testing.T) {
	o := testOptions()
	o.MaxUndo = 3
	s := New(4, 4, o)
	for _, name := range []string{"a", "b", "c"} {
		if err := s.Edit(LayerAttrs, func(st *layer.Stack) error { return st.Rename(0, name) }); err != nil {
			t.Fatal(err)
		}
	}
	p, err := s.BeginPreview()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Update(fillWith(black), nil); err != nil {
		t.Fatal(err)
	}
	if err := p.Cancel(); err != nil {
		t.Fatal(err)
	}
	if n := s.UndoLen(); n != 3 {
		t.Fatalf("cancel at the bound should keep 3 undo entries, got %d", n)
	}
	for range 3 {
		if !s.Undo() {
			t.Fatal("expected an undo entry")
		}
	}
	if got := s.ActiveLayer().Name(); got != "Background" {
		t.Fatalf("oldest entry lost: got %q after three undos", got)
	}
}

func TestPreviewBlocksOtherChanges(t *testing.T) {
	s := New(4, 4, testOptions())
	if err := s.MutateLayerStack(func(st *layer.Stack) error {
		st.AddLayer("ink", nil, true)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()
	p, err := s.BeginPreview()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Update(fillWith(black), nil); err != nil {
		t.Fatal(err)
	}
	calls := map[string]error{
		"PushUndo":           s.PushUndo(true),
		"SetActive":          s.SetActive(0),
		"ApplyToActiveLayer": s.ApplyToActiveLayer(fillWith(red), nil),
		"MutateLayerStack":   s.MutateLayerStack(func(st *layer.Stack) error { return st.Delete(1) }),
		"Edit":               s.Edit(LayerAttrs, func(st *layer.Stack) error { return st.Rename(1, "x") }),
	}
	for name, err := range calls {
		if !errors.Is(err, ErrPreviewOpen) {
			t.Errorf("%s during preview: got %v", name, err)
		}
	}
	if err := p.Cancel(); err != nil {
		t.Fatal(err)
	}
	if !s.Snapshot().Equal(before) || s.UndoLen() != 0 {
		t.Fatalf("cancel should restore the document with no history, undo=%d", s.UndoLen())
	}
	if err := s.PushUndo(true); err != nil || s.UndoLen() != 1 {
		t.Fatalf("PushUndo after the preview closed: %v, undo=%d", err, s.UndoLen())
	}
}

func TestPreviewConfirmKeepsOneEntry(t *testing.T) {
	s := New(4, 4, testOptions())
	p, err := s.BeginPreview()
	if err != nil {
		t.Fatal(err)
	}
	region := image.Rect(0, 0, 2, 2)
	if err := p.Update(fillWith(black), &region); err != nil {
		t.Fatal(err)
	}
	if err := p.Confirm(); err != nil {
		t.Fatal(err)
	}
	if s.UndoLen() != 1 {
		t.Fatalf("expected one undo entry, got %d", s.UndoLen())
	}
	if c := s.ActiveLayer().Image().NRGBAAt(0, 0); c != black {
		t.Fatalf("confirmed preview should keep its pixels, got %v", c)
	}
	s.Undo()
	if c := s.ActiveLayer().Image().NRGBAAt(0, 0); c != white {
		t.Fatalf("undo should revert the confirmed preview, got %v", c)
	}
}

func TestSubscribe(t *testing.T) {
	s := New(4, 4, testOptions())
	var kinds []Kind
	cancel := s.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		if ev.Generation != s.Generation() && ev.Kind != Selection {
			t.Errorf("event generation %d does not match session %d", ev.Generation, s.Generation())
		}
	})
	_ = s.Edit(Structure, func(st *layer.Stack) error { st.AddLayer("a", nil, true); return nil })
	_ = s.SetActive(0)
	s.Undo()
	cancel()
	_ = s.Apply(fillWith(red), nil)

	want := []Kind{Structure, Selection, History}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}

func TestRequestCompositeDelivers(t *testing.T) {
	s := New(3, 3, testOptions())
	var got *image.NRGBA
	<-s.RequestComposite(context.Background(), func(img *image.NRGBA) { got = img })
	if got == nil || got.NRGBAAt(0, 0) != white {
		t.Fatalf("expected a white composite, got %v", got)
	}
	if s.Dirty() {
		t.Fatal("a delivered composite should clear the dirty flag")
	}
}

func TestRequestCompositeDiscardsStaleResult(t *testing.T) {
	s := New(3, 3, testOptions())
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.render = func(st *layer.Stack, o composite.Options) *image.NRGBA {
		once.Do(func() {
			close(started)
			<-release
		})
		return st.Composite(o)
	}

	delivered := false
	done := s.RequestComposite(context.Background(), func(*image.NRGBA) { delivered = true })
	<-started
	if err := s.Apply(fillWith(red), nil); err != nil {
		t.Fatal(err)
	}
	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not settle")
	}
	if delivered {
		t.Fatal("a composite of an outdated document must not be delivered")
	}
	if !s.Dirty() {
		t.Fatal("stale result must not clear the dirty flag")
	}
	if c := s.Composite().NRGBAAt(0, 0); c != red {
		t.Fatalf("expected the newer edit to be visible, got %v", c)
	}
}

func TestRequestCompositeCancelled(t *testing.T) {
	s := New(3, 3, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	delivered := false
	<-s.RequestComposite(ctx, func(*image.NRGBA) { delivered = true })
	if delivered {
		t.Fatal("cancelled request should not deliver")
	}
}

func TestCompressedHistorySession(t *testing.T) {
	o := testOptions()
	o.Compress = true
	o.MaxUndo = 2
	s := New(8, 8, o)
	for _, c := range []color.NRGBA{red, black, white, red} {
		if err := s.Apply(fillWith(c), nil); err != nil {
			t.Fatal(err)
		}
	}
	if s.UndoLen() != 2 {
		t.Fatalf("expected history bounded to 2, got %d", s.UndoLen())
	}
	s.Undo()
	if c := s.ActiveLayer().Image().NRGBAAt(0, 0); c != white {
		t.Fatalf("expected white after one undo, got %v", c)
	}
}
