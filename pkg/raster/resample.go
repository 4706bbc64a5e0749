package raster

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// Resize scales src to w x h with Catmull-Rom interpolation. A buffer that
// already has the requested size is cloned instead.
func Resize(src *image.NRGBA, w, h int) *image.NRGBA {
	if src == nil {
		return nil
	}
	if src.Rect.Dx() == w && src.Rect.Dy() == h {
		return ToNRGBA(src)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w <= 0 || h <= 0 {
		return dst
	}
	xdraw.CatmullRom.Scale(dst, dst.Rect, src, src.Rect, xdraw.Src, nil)
	return dst
}

// Thumbnail returns an aspect-preserving copy of src whose longer side is at
// most maxSide pixels. Buffers that already fit are cloned unchanged.
func Thumbnail(src *image.NRGBA, maxSide int) *image.NRGBA {
	if src == nil {
		return nil
	}
	w, h := Size(src)
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return ToNRGBA(src)
	}
	tw, th := maxSide, maxSide
	if w >= h {
		th = clampInt(h*maxSide/w, 1, maxSide)
	} else {
		tw = clampInt(w*maxSide/h, 1, maxSide)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, tw, th))
	xdraw.ApproxBiLinear.Scale(dst, dst.Rect, src, src.Rect, xdraw.Src, nil)
	return dst
}

// Checker colours used behind transparent regions.
var (
	CheckerLight = color.NRGBA{R: 204, G: 204, B: 204, A: 255}
	CheckerDark  = color.NRGBA{R: 153, G: 153, B: 153, A: 255}
)

// Checkerboard paints a w x h opaque checkerboard with square cells of the
// given size (minimum 1).
func Checkerboard(w, h, cell int) *image.NRGBA {
	if cell < 1 {
		cell = 1
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := CheckerLight
			if (x/cell+y/cell)%2 == 1 {
				c = CheckerDark
			}
			i := img.PixOffset(x, y)
			img.Pix[i+0] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = c.A
		}
	}
	return img
}
