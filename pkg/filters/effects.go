package filters

import (
	"image"
	"image/color"
	"math"

	"github.com/Fepozopo/layerkit/pkg/raster"
)

func to8(v float64) uint8 { return raster.ClampToUint8(v * 255) }

// sepiaTarget is #704214.
var sepiaTarget = color.NRGBA{R: 0x70, G: 0x42, B: 0x14, A: 0xff}

// Sepia blends each pixel toward a warm brown in Lab space. amount is in
// [0,1]; 0 returns an unchanged copy.
func Sepia(src *image.NRGBA, amount float64) *image.NRGBA {
	amount = clamp01(amount)
	if amount == 0 {
		return raster.Clone(src)
	}
	tl, ta, tb := toLab(sepiaTarget.R, sepiaTarget.G, sepiaTarget.B)
	out := raster.Clone(src)
	w, h := raster.Size(out)
	rows(h, func(y int) {
		for x := 0; x < w; x++ {
			i := out.PixOffset(x, y)
			if out.Pix[i+3] == 0 {
				continue
			}
			l, a, b := toLab(out.Pix[i], out.Pix[i+1], out.Pix[i+2])
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = fromLab(
				l+(tl-l)*amount,
				a+(ta-a)*amount,
				b+(tb-b)*amount,
			)
		}
	})
	return out
}

// Vignette darkens toward the corners with a Gaussian falloff that reaches
// full strength at half the diagonal. strength is clamped to [0,1].
func Vignette(src *image.NRGBA, strength float64) *image.NRGBA {
	strength = clamp01(strength)
	out := raster.Clone(src)
	w, h := raster.Size(out)
	cx, cy := float64(w-1)/2, float64(h-1)/2
	radius := math.Hypot(float64(w), float64(h)) / 2
	sigma := radius / 3
	norm := 1 - math.Exp(-0.5*radius*radius/(sigma*sigma))
	rows(h, func(y int) {
		for x := 0; x < w; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			mask := clamp01((1 - math.Exp(-0.5*d*d/(sigma*sigma))) / norm)
			f := 1 - mask*strength
			i := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				out.Pix[i+c] = raster.ClampToUint8(float64(out.Pix[i+c]) * f)
			}
		}
	})
	return out
}

// Edge returns opaque Sobel gradient magnitude of the luma, normalised so
// the strongest edge is white. sigma > 0 blurs first to suppress noise.
func Edge(src *image.NRGBA, sigma float64) *image.NRGBA {
	proc := src
	if sigma > 0 {
		proc = GaussianBlur(src, sigma)
	}
	w, h := raster.Size(proc)
	luma := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := proc.PixOffset(x, y)
			luma[y*w+x] = lumaR*float64(proc.Pix[i]) + lumaG*float64(proc.Pix[i+1]) + lumaB*float64(proc.Pix[i+2])
		}
	}
	at := func(x, y int) float64 {
		return luma[clampInt(y, 0, h-1)*w+clampInt(x, 0, w-1)]
	}
	mag := make([]float64, w*h)
	rows(h, func(y int) {
		for x := 0; x < w; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) - at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) - at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			mag[y*w+x] = math.Hypot(gx, gy)
		}
	})
	peak := 0.0
	for _, m := range mag {
		peak = max(peak, m)
	}
	out := image.NewNRGBA(proc.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if peak > 0 {
				v = raster.ClampToUint8(mag[y*w+x] / peak * 255)
			}
			i := out.PixOffset(x, y)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = v, v, v, 255
		}
	}
	return out
}

// FloodFill paints the 4-connected area around (x, y) whose colour lies
// within fuzz (CIE76 delta E) of the start pixel. A start point outside
// the buffer leaves it unchanged.
func FloodFill(src *image.NRGBA, x, y int, c color.NRGBA, fuzz float64) *image.NRGBA {
	out := raster.Clone(src)
	w, h := raster.Size(out)
	if x < 0 || y < 0 || x >= w || y >= h {
		return out
	}
	start := src.NRGBAAt(x, y)
	fuzz = max(fuzz, 0)
	match := func(px, py int) bool {
		p := src.NRGBAAt(px, py)
		if p == start {
			return true
		}
		if fuzz == 0 || (p.A == 0) != (start.A == 0) {
			return false
		}
		return labDistance(p, start) <= fuzz
	}
	seen := make([]bool, w*h)
	stack := []image.Point{image.Pt(x, y)}
	seen[y*w+x] = true
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.SetNRGBA(p.X, p.Y, c)
		for _, n := range [4]image.Point{image.Pt(p.X+1, p.Y), image.Pt(p.X-1, p.Y), image.Pt(p.X, p.Y+1), image.Pt(p.X, p.Y-1)} {
			if n.X < 0 || n.Y < 0 || n.X >= w || n.Y >= h || seen[n.Y*w+n.X] {
				continue
			}
			seen[n.Y*w+n.X] = true
			if match(n.X, n.Y) {
				stack = append(stack, n)
			}
		}
	}
	return out
}

// Equalize spreads each colour channel's histogram across the full range,
// counting only pixels that are not fully transparent.
func Equalize(src *image.NRGBA) *image.NRGBA {
	out := raster.Clone(src)
	w, h := raster.Size(out)
	var hist [3][256]int
	total := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := out.PixOffset(x, y)
			if out.Pix[i+3] == 0 {
				continue
			}
			total++
			for c := 0; c < 3; c++ {
				hist[c][out.Pix[i+c]]++
			}
		}
	}
	if total == 0 {
		return out
	}
	var lut [3][256]uint8
	for c := 0; c < 3; c++ {
		cdfMin, acc := 0, 0
		for v := 0; v < 256; v++ {
			if cdfMin == 0 {
				cdfMin = hist[c][v]
			}
			acc += hist[c][v]
			if total == cdfMin {
				lut[c][v] = uint8(v)
				continue
			}
			lut[c][v] = raster.ClampToUint8(float64(acc-cdfMin) / float64(total-cdfMin) * 255)
		}
	}
	rows(h, func(y int) {
		for x := 0; x < w; x++ {
			i := out.PixOffset(x, y)
			if out.Pix[i+3] == 0 {
				continue
			}
			for c := 0; c < 3; c++ {
				out.Pix[i+c] = lut[c][out.Pix[i+c]]
			}
		}
	})
	return out
}
