package filters

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/Fepozopo/layerkit/pkg/raster"
)

// LoadFace parses a TrueType or OpenType file at the given point size
// (72 DPI). An empty path selects the built-in 7x13 bitmap face.
func LoadFace(path string, size float64) (font.Face, error) {
	if path == "" {
		return basicfont.Face7x13, nil
	}
	if size <= 0 {
		return nil, fmt.Errorf("font size must be positive, got %g", size)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	tt, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return opentype.NewFace(tt, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
}

// Annotate draws s with its baseline starting at (x, y). A nil face uses
// the built-in bitmap font.
func Annotate(src *image.NRGBA, s string, x, y int, c color.NRGBA, face font.Face) *image.NRGBA {
	if face == nil {
		face = basicfont.Face7x13
	}
	out := raster.Clone(src)
	d := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
	return out
}
