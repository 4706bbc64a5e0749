// Package layer models a document as an ordered stack of raster layers.
//
// Layers are read through getters; every mutation goes through a Stack method
// so the stack can validate it first and bump its revision counter. Nothing
// here knows about undo history or display caches.
package layer

import (
	"image"

	"github.com/Fepozopo/layerkit/pkg/blend"
	"github.com/Fepozopo/layerkit/pkg/raster"
)

// Layer is one named raster element. Its buffer is owned exclusively: no two
// layers share pixel memory.
type Layer struct {
	name    string
	buf     *image.NRGBA
	visible bool
	opacity float64
	mode    blend.Mode
	clip    bool
}

// New creates a visible, fully opaque Normal layer holding a copy of img.
// Sources without alpha are upgraded to opaque NRGBA.
func New(name string, img image.Image) *Layer {
	return &Layer{
		name:    name,
		buf:     raster.ToNRGBA(img),
		visible: true,
		opacity: 1.0,
		mode:    blend.Normal,
	}
}

// Attrs carries every layer attribute except pixels. It is what snapshots
// and layered exports persist next to the buffer.
type Attrs struct {
	Name         string
	Visible      bool
	Opacity      float64
	BlendMode    blend.Mode
	ClippingMask bool
}

// FromAttrs builds a layer from stored attributes, taking ownership of buf.
func FromAttrs(a Attrs, buf *image.NRGBA) *Layer {
	return &Layer{
		name:    a.Name,
		buf:     buf,
		visible: a.Visible,
		opacity: clampOpacity(a.Opacity),
		mode:    a.BlendMode,
		clip:    a.ClippingMask,
	}
}

func (l *Layer) Name() string          { return l.name }
func (l *Layer) Visible() bool         { return l.visible }
func (l *Layer) Opacity() float64      { return l.opacity }
func (l *Layer) BlendMode() blend.Mode { return l.mode }
func (l *Layer) ClippingMask() bool    { return l.clip }

// Image returns the layer's buffer. Callers must treat it as read-only; use
// Stack.SetImage to change pixels.
func (l *Layer) Image() *image.NRGBA { return l.buf }

// Size returns the buffer dimensions.
func (l *Layer) Size() (int, int) { return raster.Size(l.buf) }

// Attrs returns a copy of the layer's attributes.
func (l *Layer) Attrs() Attrs {
	return Attrs{
		Name:         l.name,
		Visible:      l.visible,
		Opacity:      l.opacity,
		BlendMode:    l.mode,
		ClippingMask: l.clip,
	}
}

// Clone returns a deep copy with an independent pixel buffer.
func (l *Layer) Clone() *Layer {
	c := *l
	c.buf = raster.Clone(l.buf)
	return &c
}

// Equal reports whether two layers have identical attributes and pixels.
func (l *Layer) Equal(o *Layer) bool {
	if l == nil || o == nil {
		return l == o
	}
	return l.Attrs() == o.Attrs() && raster.Equal(l.buf, o.buf)
}

func clampOpacity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
