package filters

import (
	"image"
	"math"

	"github.com/Fepozopo/layerkit/pkg/raster"
)

// gaussianKernel returns a normalised 1D kernel of radius ceil(3*sigma).
func gaussianKernel(sigma float64) ([]float64, int) {
	if sigma <= 0 {
		return []float64{1}, 0
	}
	radius := int(math.Ceil(3 * sigma))
	k := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		k[i+radius] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k, radius
}

// GaussianBlur blurs all four channels with a separable Gaussian. Edges
// are extended by clamping.
func GaussianBlur(src *image.NRGBA, sigma float64) *image.NRGBA {
	kern, radius := gaussianKernel(sigma)
	if radius == 0 {
		return raster.Clone(src)
	}
	w, h := raster.Size(src)
	tmp := image.NewNRGBA(src.Rect)
	dst := image.NewNRGBA(src.Rect)
	convolve(src, tmp, w, h, kern, radius, 1, 0)
	convolve(tmp, dst, w, h, kern, radius, 0, 1)
	return dst
}

// convolve runs one 1D pass along (dx,dy).
func convolve(src, dst *image.NRGBA, w, h int, kern []float64, radius, dx, dy int) {
	rows(h, func(y int) {
		for x := 0; x < w; x++ {
			var acc [4]float64
			for k := -radius; k <= radius; k++ {
				sx := clampInt(x+k*dx, 0, w-1)
				sy := clampInt(y+k*dy, 0, h-1)
				i := src.PixOffset(sx, sy)
				wt := kern[k+radius]
				for c := 0; c < 4; c++ {
					acc[c] += float64(src.Pix[i+c]) * wt
				}
			}
			o := dst.PixOffset(x, y)
			for c := 0; c < 4; c++ {
				dst.Pix[o+c] = raster.ClampToUint8(acc[c])
			}
		}
	})
}

// Sharpen applies an unsharp mask: out = src + amount*(src - blur(src)).
func Sharpen(src *image.NRGBA, sigma, amount float64) *image.NRGBA {
	blurred := GaussianBlur(src, sigma)
	out := raster.Clone(src)
	for i := 0; i < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			s := float64(src.Pix[i+c])
			out.Pix[i+c] = raster.ClampToUint8(s + amount*(s-float64(blurred.Pix[i+c])))
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
