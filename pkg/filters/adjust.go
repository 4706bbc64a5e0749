// Package filters holds pure pixel transforms for layer buffers.
//
// Every filter takes an origin-anchored *image.NRGBA, leaves it untouched
// and returns a new buffer of the same size. Alpha is carried through
// unchanged unless stated otherwise.
package filters

import (
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Fepozopo/layerkit/pkg/raster"
)

// Func is the transform shape accepted by session.ApplyToActiveLayer.
type Func = func(*image.NRGBA) *image.NRGBA

// Rec. 709 luma weights.
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

// pointOp maps every pixel's colour through fn, row bands in parallel.
// Channels are passed and returned in [0,1].
func pointOp(src *image.NRGBA, fn func(r, g, b float64) (float64, float64, float64)) *image.NRGBA {
	out := raster.Clone(src)
	w, h := raster.Size(out)
	rows(h, func(y int) {
		for x := 0; x < w; x++ {
			i := out.PixOffset(x, y)
			r, g, b := fn(float64(out.Pix[i])/255, float64(out.Pix[i+1])/255, float64(out.Pix[i+2])/255)
			out.Pix[i+0] = raster.ClampToUint8(r * 255)
			out.Pix[i+1] = raster.ClampToUint8(g * 255)
			out.Pix[i+2] = raster.ClampToUint8(b * 255)
		}
	})
	return out
}

// rows runs fn for every y in [0,h), split into GOMAXPROCS bands.
func rows(h int, fn func(y int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > h {
		workers = h
	}
	if workers <= 1 {
		for y := 0; y < h; y++ {
			fn(y)
		}
		return
	}
	band := (h + workers - 1) / workers
	var g errgroup.Group
	for y0 := 0; y0 < h; y0 += band {
		y1 := min(y0+band, h)
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				fn(y)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Grayscale replaces colour with Rec. 709 luma.
func Grayscale(src *image.NRGBA) *image.NRGBA {
	return pointOp(src, func(r, g, b float64) (float64, float64, float64) {
		l := lumaR*r + lumaG*g + lumaB*b
		return l, l, l
	})
}

// Negate inverts colour. With onlyGray the luma is inverted and the hue kept.
func Negate(src *image.NRGBA, onlyGray bool) *image.NRGBA {
	return pointOp(src, func(r, g, b float64) (float64, float64, float64) {
		if !onlyGray {
			return 1 - r, 1 - g, 1 - b
		}
		l := lumaR*r + lumaG*g + lumaB*b
		if l <= 0 {
			return 1, 1, 1
		}
		k := (1 - l) / l
		return r * k, g * k, b * k
	})
}

// Gamma applies out = in^(1/gamma). Non-positive or non-finite gamma is a no-op.
func Gamma(src *image.NRGBA, gamma float64) *image.NRGBA {
	if gamma <= 0 || math.IsNaN(gamma) || math.IsInf(gamma, 0) {
		return raster.Clone(src)
	}
	inv := 1 / gamma
	return pointOp(src, func(r, g, b float64) (float64, float64, float64) {
		return math.Pow(r, inv), math.Pow(g, inv), math.Pow(b, inv)
	})
}

// Level stretches [black,white] (0..255) to the full range, then applies
// gamma when it is positive. white <= black is a no-op.
func Level(src *image.NRGBA, black, gamma, white float64) *image.NRGBA {
	if white <= black {
		return raster.Clone(src)
	}
	lo, span := black/255, (white-black)/255
	f := func(v float64) float64 {
		v = clamp01((v - lo) / span)
		if gamma > 0 {
			v = math.Pow(v, 1/gamma)
		}
		return v
	}
	return pointOp(src, func(r, g, b float64) (float64, float64, float64) {
		return f(r), f(g), f(b)
	})
}

// Threshold sets each pixel to black or white by luma, or each channel
// independently with perChannel. The threshold is in 0..255.
func Threshold(src *image.NRGBA, thresh float64, perChannel bool) *image.NRGBA {
	t := clamp01(thresh / 255)
	step := func(v float64) float64 {
		if v >= t {
			return 1
		}
		return 0
	}
	return pointOp(src, func(r, g, b float64) (float64, float64, float64) {
		if perChannel {
			return step(r), step(g), step(b)
		}
		l := step(lumaR*r + lumaG*g + lumaB*b)
		return l, l, l
	})
}

// Posterize quantises each channel to the given number of levels. Fewer
// than two levels is a no-op.
func Posterize(src *image.NRGBA, levels int) *image.NRGBA {
	if levels < 2 {
		return raster.Clone(src)
	}
	n := float64(levels - 1)
	q := func(v float64) float64 { return math.Round(v*n) / n }
	return pointOp(src, func(r, g, b float64) (float64, float64, float64) {
		return q(r), q(g), q(b)
	})
}

// Modulate scales lightness and saturation by percentages (100 = unchanged)
// and rotates hue by degrees.
func Modulate(src *image.NRGBA, brightnessPct, saturationPct, hueDeg float64) *image.NRGBA {
	bf, sf := brightnessPct/100, saturationPct/100
	shift := hueDeg / 360
	return pointOp(src, func(r, g, b float64) (float64, float64, float64) {
		h, s, l := rgbToHSL(r, g, b)
		h = math.Mod(h+shift, 1)
		if h < 0 {
			h++
		}
		return hslToRGB(h, clamp01(s*sf), clamp01(l*bf))
	})
}

func rgbToHSL(r, g, b float64) (h, s, l float64) {
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	l = (hi + lo) / 2
	if hi == lo {
		return 0, 0, l
	}
	d := hi - lo
	if l > 0.5 {
		s = d / (2 - hi - lo)
	} else {
		s = d / (hi + lo)
	}
	switch hi {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return h / 6, s, l
}

func hslToRGB(h, s, l float64) (float64, float64, float64) {
	if s == 0 {
		return l, l, l
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return hueToRGB(p, q, h+1.0/3), hueToRGB(p, q, h), hueToRGB(p, q, h-1.0/3)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
