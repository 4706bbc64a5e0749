package layer

import (
	"image"
	"slices"

	"github.com/Fepozopo/layerkit/pkg/blend"
	"github.com/Fepozopo/layerkit/pkg/composite"
	"github.com/Fepozopo/layerkit/pkg/raster"
)

// SetActive selects layer i. Selection is not a content change and leaves
// the revision alone.
func (s *Stack) SetActive(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.active = i
	return nil
}

// SetImage replaces layer i's pixels with a copy of img, upgrading sources
// without alpha to opaque NRGBA.
func (s *Stack) SetImage(i int, img image.Image) error {
	if err := s.check(i); err != nil {
		return err
	}
	if img == nil || img.Bounds().Empty() {
		return invalid("layer %d: empty image", i)
	}
	s.layers[i].buf = raster.ToNRGBA(img)
	s.touch()
	return nil
}

// AddLayer inserts a new layer holding a copy of img and makes it active.
// With aboveActive it lands directly above the active layer, otherwise on
// top of the stack. A nil img yields a transparent canvas-sized layer.
func (s *Stack) AddLayer(name string, img image.Image, aboveActive bool) *Layer {
	var l *Layer
	if img == nil {
		w, h := s.CanvasSize()
		l = New(name, raster.NewTransparent(w, h))
	} else {
		l = New(name, img)
	}
	at := len(s.layers)
	if aboveActive {
		at = s.active + 1
	}
	s.layers = slices.Insert(s.layers, at, l)
	s.active = at
	s.touch()
	return l
}

// Duplicate copies layer i, attributes and pixels, into a new layer directly
// above it and makes the copy active.
func (s *Stack) Duplicate(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.layers = slices.Insert(s.layers, i+1, s.layers[i].Clone())
	s.active = i + 1
	s.touch()
	return nil
}

// Delete removes layer i. The last remaining layer cannot be deleted.
// When the active layer is removed the one below it becomes active.
func (s *Stack) Delete(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	if len(s.layers) == 1 {
		return invalid("cannot delete the only layer")
	}
	s.layers = slices.Delete(s.layers, i, i+1)
	switch {
	case i < s.active:
		s.active--
	case i == s.active:
		s.active = clampIndex(i-1, len(s.layers))
	}
	s.touch()
	return nil
}

// Clear replaces layer i's pixels with a transparent canvas-sized buffer.
func (s *Stack) Clear(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	w, h := s.CanvasSize()
	s.layers[i].buf = raster.NewTransparent(w, h)
	s.touch()
	return nil
}

// WriteDown merges layer i into layer i-1 and clears layer i, keeping it in
// the stack.
func (s *Stack) WriteDown(i int) error {
	merged, err := s.mergedBelow(i, "write down")
	if err != nil {
		return err
	}
	w, h := s.CanvasSize()
	s.layers[i-1].buf = merged
	s.layers[i].buf = raster.NewTransparent(w, h)
	s.touch()
	return nil
}

// MergeDown merges layer i into layer i-1, removes layer i and makes i-1
// active.
func (s *Stack) MergeDown(i int) error {
	merged, err := s.mergedBelow(i, "merge down")
	if err != nil {
		return err
	}
	s.layers[i-1].buf = merged
	s.layers = slices.Delete(s.layers, i, i+1)
	s.active = i - 1
	s.touch()
	return nil
}

// mergedBelow computes the pixels layer i-1 holds after layer i is merged
// into it. Hidden layers and clipping layers without a visible base merge as
// nothing; a clipping layer is first masked by its base's coverage.
func (s *Stack) mergedBelow(i int, op string) (*image.NRGBA, error) {
	if err := s.check(i); err != nil {
		return nil, err
	}
	if i == 0 {
		return nil, invalid("%s: bottom layer has nothing below it", op)
	}
	below, top := s.layers[i-1], s.layers[i]
	if !top.visible || top.opacity <= 0 {
		return raster.Clone(below.buf), nil
	}
	overlay := top.buf
	if top.clip {
		b := composite.ClipBase(s.layers, i)
		if b < 0 || !s.layers[b].visible || s.layers[b].opacity <= 0 {
			return raster.Clone(below.buf), nil
		}
		overlay = maskByAlpha(top.buf, s.layers[b].buf, s.layers[b].opacity)
	}
	return composite.MergeTwoLayers(below.buf, overlay, top.opacity, top.mode), nil
}

// MergeAll flattens the whole stack into a single layer named "Merged" that
// keeps transparency. The new layer becomes the only, active, layer.
func (s *Stack) MergeAll() {
	merged := composite.Flatten(s.layers, s.mergeOpts())
	s.layers = []*Layer{New("Merged", merged)}
	s.active = 0
	s.touch()
}

// MergeAllVisible flattens the visible layers into one layer at index 0 and
// keeps every hidden layer, in order, above it.
func (s *Stack) MergeAllVisible() {
	out := []*Layer{New("Merged", composite.Flatten(s.layers, s.mergeOpts()))}
	for _, l := range s.layers {
		if !l.visible {
			out = append(out, l)
		}
	}
	s.layers = out
	s.active = 0
	s.touch()
}

// Move swaps layer i with its neighbour: dir +1 moves it up, -1 down.
// Moving past either end is a no-op. The active layer follows its content.
func (s *Stack) Move(i, dir int) error {
	if err := s.check(i); err != nil {
		return err
	}
	if dir != 1 && dir != -1 {
		return invalid("move direction must be +1 or -1, got %d", dir)
	}
	j := i + dir
	if j < 0 || j >= len(s.layers) {
		return nil
	}
	s.layers[i], s.layers[j] = s.layers[j], s.layers[i]
	switch s.active {
	case i:
		s.active = j
	case j:
		s.active = i
	}
	s.touch()
	return nil
}

// MoveToExtreme relocates layer i to the top or bottom of the stack.
func (s *Stack) MoveToExtreme(i int, toTop bool) error {
	if err := s.check(i); err != nil {
		return err
	}
	target := 0
	if toTop {
		target = len(s.layers) - 1
	}
	if target == i {
		return nil
	}
	activeLayer := s.layers[s.active]
	l := s.layers[i]
	s.layers = slices.Delete(s.layers, i, i+1)
	s.layers = slices.Insert(s.layers, target, l)
	s.active = slices.Index(s.layers, activeLayer)
	s.touch()
	return nil
}

// ToggleClippingMask flips layer i's clipping flag. The bottom layer can
// never clip.
func (s *Stack) ToggleClippingMask(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	if i == 0 {
		return invalid("the bottom layer cannot be a clipping mask")
	}
	s.layers[i].clip = !s.layers[i].clip
	s.touch()
	return nil
}

// SetOpacity sets layer i's opacity, clamped to [0,1].
func (s *Stack) SetOpacity(i int, opacity float64) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.layers[i].opacity = clampOpacity(opacity)
	s.touch()
	return nil
}

// SetBlendMode sets layer i's blend mode.
func (s *Stack) SetBlendMode(i int, m blend.Mode) error {
	if err := s.check(i); err != nil {
		return err
	}
	if !m.Valid() {
		return invalid("layer %d: %v", i, m)
	}
	s.layers[i].mode = m
	s.touch()
	return nil
}

// SetVisible shows or hides layer i.
func (s *Stack) SetVisible(i int, visible bool) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.layers[i].visible = visible
	s.touch()
	return nil
}

// Rename sets layer i's display name. Names need not be unique.
func (s *Stack) Rename(i int, name string) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.layers[i].name = name
	s.touch()
	return nil
}

// maskByAlpha returns a copy of src whose alpha is scaled by mask's alpha
// times opacity.
func maskByAlpha(src, mask *image.NRGBA, opacity float64) *image.NRGBA {
	w, h := raster.Size(src)
	out := raster.ToNRGBA(src)
	m := raster.Resize(mask, w, h)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = raster.ClampToUint8(float64(out.Pix[i]) * float64(m.Pix[i]) / 255.0 * opacity)
	}
	return out
}
