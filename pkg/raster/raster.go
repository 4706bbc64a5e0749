// Package raster holds the pixel buffer helpers shared by the layer model and
// the compositor. A buffer is an *image.NRGBA anchored at the origin: four
// non-premultiplied 8-bit channels, row-major, contiguous.
package raster

import (
	"image"
	"image/color"
	"image/draw"
)

// ToNRGBA converts any image.Image into a fresh origin-anchored *image.NRGBA.
// Sources without an alpha channel (Gray, YCbCr, RGB-only encodings) come out
// fully opaque. The result never aliases src.
func ToNRGBA(src image.Image) *image.NRGBA {
	if src == nil {
		return nil
	}
	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if n, ok := src.(*image.NRGBA); ok {
		// row copy keeps us away from the colour-model round trip
		rowLen := b.Dx() * 4
		for y := 0; y < b.Dy(); y++ {
			si := n.PixOffset(b.Min.X, b.Min.Y+y)
			di := out.PixOffset(0, y)
			copy(out.Pix[di:di+rowLen], n.Pix[si:si+rowLen])
		}
		return out
	}
	draw.Draw(out, out.Rect, src, b.Min, draw.Src)
	return out
}

// Clone returns an independent copy of src with identical bounds.
func Clone(src *image.NRGBA) *image.NRGBA {
	if src == nil {
		return nil
	}
	out := image.NewNRGBA(src.Rect)
	copy(out.Pix, src.Pix)
	return out
}

// NewTransparent allocates a w x h buffer with every sample zero.
func NewTransparent(w, h int) *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, w, h))
}

// NewSolid allocates a w x h buffer filled with c.
func NewSolid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	Fill(img, c)
	return img
}

// Fill overwrites every pixel of img with c.
func Fill(img *image.NRGBA, c color.NRGBA) {
	for i := 0; i+3 < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
}

// Size returns the buffer's width and height.
func Size(img *image.NRGBA) (int, int) {
	if img == nil {
		return 0, 0
	}
	return img.Rect.Dx(), img.Rect.Dy()
}

// SameSize reports whether a and b have identical dimensions.
func SameSize(a, b *image.NRGBA) bool {
	aw, ah := Size(a)
	bw, bh := Size(b)
	return aw == bw && ah == bh
}

// Equal reports whether a and b hold the same dimensions and pixel bytes.
func Equal(a, b *image.NRGBA) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !SameSize(a, b) {
		return false
	}
	w, h := Size(a)
	rowLen := w * 4
	for y := 0; y < h; y++ {
		ai := a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y)
		bi := b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y)
		for k := 0; k < rowLen; k++ {
			if a.Pix[ai+k] != b.Pix[bi+k] {
				return false
			}
		}
	}
	return true
}

// MaxAlpha returns the largest alpha sample in img, 0 for an empty buffer.
func MaxAlpha(img *image.NRGBA) uint8 {
	var m uint8
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] > m {
			m = img.Pix[i]
			if m == 255 {
				break
			}
		}
	}
	return m
}

// PasteRegion copies the pixels of src that fall inside r onto a copy of dst
// and returns it. r is clamped to the bounds of both buffers; anything
// outside r keeps dst's values.
func PasteRegion(dst, src *image.NRGBA, r image.Rectangle) *image.NRGBA {
	out := Clone(dst)
	r = r.Intersect(dst.Rect).Intersect(src.Rect)
	if r.Empty() {
		return out
	}
	draw.Draw(out, r, src, r.Min, draw.Src)
	return out
}

// ClampToUint8 rounds v and clamps it to [0,255].
func ClampToUint8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
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
