package composite

import (
	"image"

	"golang.org/x/sync/errgroup"

	"github.com/Fepozopo/layerkit/pkg/raster"
)

// forRows splits [0,h) into contiguous bands and runs fn on each band with
// at most workers bands in flight. Bands never overlap, so fn may write to
// its rows without locking.
func forRows(h, workers int, fn func(y0, y1 int)) {
	if workers <= 1 || h < 2*workers {
		fn(0, h)
		return
	}
	band := (h + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for y0 := 0; y0 < h; y0 += band {
		y1 := min(y0+band, h)
		g.Go(func() error {
			fn(y0, y1)
			return nil
		})
	}
	_ = g.Wait()
}

// coverage returns the layer's effective alpha at pixel offset i.
func (p prepared) coverage(i int) float64 {
	a := float64(p.img.Pix[i+3]) / 255.0 * p.opacity
	if p.clip != nil {
		a *= float64(p.clip.Pix[i+3]) / 255.0 * p.clipOpacity
	}
	return a
}

// blendOnto applies p to the display accumulator in place. The accumulator's
// alpha is ignored: colour is mixed straight by effective alpha.
func blendOnto(acc *image.NRGBA, p prepared, workers int) {
	w, h := raster.Size(acc)
	forRows(h, workers, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			i := acc.PixOffset(0, y)
			for x := 0; x < w; x, i = x+1, i+4 {
				a := p.coverage(i)
				if a <= 0 {
					continue
				}
				for c := 0; c < 3; c++ {
					bottom := float64(acc.Pix[i+c]) / 255.0
					top := float64(p.img.Pix[i+c]) / 255.0
					mixed := clamp01(p.fn(bottom, top))
					acc.Pix[i+c] = raster.ClampToUint8((mixed*a + bottom*(1-a)) * 255.0)
				}
			}
		}
	})
}

// mergeInto composites p over base with source-over alpha and returns a new
// buffer. Colours are premultiplied for the mix and divided back out; a
// pixel whose result alpha is zero gets zero colour.
func mergeInto(base *image.NRGBA, p prepared, workers int) *image.NRGBA {
	w, h := raster.Size(base)
	out := raster.NewTransparent(w, h)
	forRows(h, workers, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			i := base.PixOffset(0, y)
			for x := 0; x < w; x, i = x+1, i+4 {
				ta := p.coverage(i)
				ba := float64(base.Pix[i+3]) / 255.0
				outA := ta + ba*(1-ta)
				if outA <= 0 {
					continue
				}
				for c := 0; c < 3; c++ {
					bc := 0.0
					if ba > 0 {
						bc = float64(base.Pix[i+c]) / 255.0
					}
					tc := float64(p.img.Pix[i+c]) / 255.0
					mixed := clamp01(p.fn(bc, tc))
					premul := mixed*ta + bc*ba*(1-ta)
					out.Pix[i+c] = raster.ClampToUint8(premul / outA * 255.0)
				}
				out.Pix[i+3] = raster.ClampToUint8(outA * 255.0)
			}
		}
	})
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
