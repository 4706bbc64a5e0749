package filters

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"

	"github.com/Fepozopo/layerkit/pkg/raster"
)

// Flip mirrors the buffer vertically.
func Flip(src *image.NRGBA) *image.NRGBA {
	w, h := raster.Size(src)
	out := image.NewNRGBA(src.Rect)
	for y := 0; y < h; y++ {
		copy(out.Pix[(h-1-y)*out.Stride:(h-1-y)*out.Stride+4*w], src.Pix[y*src.Stride:y*src.Stride+4*w])
	}
	return out
}

// Flop mirrors the buffer horizontally.
func Flop(src *image.NRGBA) *image.NRGBA {
	w, h := raster.Size(src)
	out := image.NewNRGBA(src.Rect)
	rows(h, func(y int) {
		for x := 0; x < w; x++ {
			s, d := src.PixOffset(x, y), out.PixOffset(w-1-x, y)
			copy(out.Pix[d:d+4], src.Pix[s:s+4])
		}
	})
	return out
}

// Fill returns a buffer of the same size painted with c.
func Fill(src *image.NRGBA, c color.NRGBA) *image.NRGBA {
	w, h := raster.Size(src)
	return raster.NewSolid(w, h, c)
}

// ParseColor accepts SVG/CSS colour names, "transparent", and #rgb, #rgba,
// #rrggbb or #rrggbbaa hex.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return color.NRGBA{}, fmt.Errorf("empty colour")
	}
	if s == "transparent" {
		return color.NRGBA{}, nil
	}
	if c, ok := colornames.Map[s]; ok {
		return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}, nil
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.NRGBA{}, fmt.Errorf("unknown colour %q", s)
	}
	if len(hex) == 3 || len(hex) == 4 {
		var b strings.Builder
		for _, r := range hex {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		hex = b.String()
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid hex colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
