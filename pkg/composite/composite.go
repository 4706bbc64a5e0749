// Package composite flattens an ordered list of layers into one image.
//
// Two entry points exist on purpose. Composite produces the opaque image a
// viewer displays: transparency is shown by the background and the output
// alpha is always 255. Flatten and MergeTwoLayers use full source-over alpha
// compositing so the result can be stored back into a layer and stay
// transparent where nothing was painted.
package composite

import (
	"fmt"
	"image"
	"runtime"
	"strings"
	"time"

	"github.com/Fepozopo/layerkit/pkg/blend"
	"github.com/Fepozopo/layerkit/pkg/logging"
	"github.com/Fepozopo/layerkit/pkg/raster"
)

// Source is the read-only view of a layer the compositor needs.
type Source interface {
	Image() *image.NRGBA
	Visible() bool
	Opacity() float64
	BlendMode() blend.Mode
	ClippingMask() bool
}

// Background selects what the display composite starts from.
type Background int

const (
	// BackgroundCheckerboard starts from an opaque checkerboard so uncovered
	// regions read as transparent on screen.
	BackgroundCheckerboard Background = iota
	// BackgroundTransparent starts from zero colour.
	BackgroundTransparent
)

func (b Background) String() string {
	switch b {
	case BackgroundTransparent:
		return "transparent"
	default:
		return "checkerboard"
	}
}

// ParseBackground accepts "checkerboard" or "transparent", case-insensitive.
func ParseBackground(s string) (Background, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "checkerboard", "checker":
		return BackgroundCheckerboard, nil
	case "transparent", "none":
		return BackgroundTransparent, nil
	}
	return 0, fmt.Errorf("unknown composite background %q", s)
}

// Options tunes a composite run. The zero value is usable.
type Options struct {
	// Workers bounds the number of row bands processed concurrently.
	// Zero or negative means GOMAXPROCS.
	Workers     int
	Background  Background
	CheckerSize int
}

// DefaultOptions returns a checkerboard background with 8px cells.
func DefaultOptions() Options {
	return Options{Background: BackgroundCheckerboard, CheckerSize: 8}
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return o.Workers
}

// Composite blends layers bottom to top and returns the display image.
// The canvas takes the size of layers[0]; other buffers are resampled to it.
// An empty slice yields nil.
func Composite[S Source](layers []S, opts Options) *image.NRGBA {
	if len(layers) == 0 {
		return nil
	}
	start := time.Now()
	w, h := raster.Size(layers[0].Image())

	var acc *image.NRGBA
	if opts.Background == BackgroundTransparent {
		acc = raster.NewTransparent(w, h)
	} else {
		acc = raster.Checkerboard(w, h, opts.CheckerSize)
	}

	blended := 0
	for i := range layers {
		p, ok := prepare(layers, i, w, h)
		if !ok {
			continue
		}
		blendOnto(acc, p, opts.workers())
		blended++
	}

	// display output carries no transparency
	for i := 3; i < len(acc.Pix); i += 4 {
		acc.Pix[i] = 255
	}
	logging.Logger().Debug("composite", "layers", len(layers), "blended", blended,
		"width", w, "height", h, "elapsed", time.Since(start))
	return acc
}

// Flatten walks layers with the same visibility, clipping and blend rules as
// Composite but accumulates with source-over alpha, starting from a fully
// transparent canvas. The result keeps its alpha channel.
func Flatten[S Source](layers []S, opts Options) *image.NRGBA {
	if len(layers) == 0 {
		return nil
	}
	w, h := raster.Size(layers[0].Image())
	acc := raster.NewTransparent(w, h)
	for i := range layers {
		p, ok := prepare(layers, i, w, h)
		if !ok {
			continue
		}
		acc = mergeInto(acc, p, opts.workers())
	}
	return acc
}

// MergeTwoLayers composites overlay onto base with full source-over alpha and
// returns a new buffer the size of base. overlay is resampled when its size
// differs. Neither input is modified.
func MergeTwoLayers(base, overlay *image.NRGBA, overlayOpacity float64, mode blend.Mode) *image.NRGBA {
	if base == nil {
		return nil
	}
	if overlay == nil {
		return raster.ToNRGBA(base)
	}
	w, h := raster.Size(base)
	p := prepared{
		img:     fitTo(overlay, w, h),
		opacity: clampOpacity(overlayOpacity),
		fn:      mode.Func(),
	}
	return mergeInto(raster.ToNRGBA(base), p, runtime.GOMAXPROCS(0))
}

// prepared is one layer ready to be blended: canvas-sized pixels, opacity,
// blend function and an optional clip base.
type prepared struct {
	img     *image.NRGBA
	opacity float64
	fn      func(bottom, top float64) float64

	clip        *image.NRGBA
	clipOpacity float64
}

// prepare resolves visibility, clipping and sizing for layers[i]. ok is false
// when the layer contributes nothing.
func prepare[S Source](layers []S, i, w, h int) (prepared, bool) {
	l := layers[i]
	if !l.Visible() || l.Opacity() <= 0 || l.Image() == nil {
		return prepared{}, false
	}
	p := prepared{
		opacity: clampOpacity(l.Opacity()),
		fn:      l.BlendMode().Func(),
	}
	if l.ClippingMask() {
		b := ClipBase(layers, i)
		if b < 0 {
			return prepared{}, false
		}
		base := layers[b]
		if !base.Visible() || base.Opacity() <= 0 || base.Image() == nil {
			return prepared{}, false
		}
		p.clip = fitTo(base.Image(), w, h)
		p.clipOpacity = clampOpacity(base.Opacity())
		if raster.MaxAlpha(p.clip) == 0 {
			return prepared{}, false
		}
	}
	if raster.MaxAlpha(l.Image()) == 0 {
		return prepared{}, false
	}
	p.img = fitTo(l.Image(), w, h)
	return p, true
}

// ClipBase returns the index of the nearest layer below i that is not itself
// a clipping mask, or -1 when there is none.
func ClipBase[S Source](layers []S, i int) int {
	for j := i - 1; j >= 0; j-- {
		if !layers[j].ClippingMask() {
			return j
		}
	}
	return -1
}

func fitTo(img *image.NRGBA, w, h int) *image.NRGBA {
	iw, ih := raster.Size(img)
	if iw == w && ih == h && img.Rect.Min == (image.Point{}) && img.Stride == 4*w {
		return img
	}
	logging.Logger().Warn("resampling layer to canvas size",
		"from_width", iw, "from_height", ih, "to_width", w, "to_height", h)
	return raster.Resize(img, w, h)
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
