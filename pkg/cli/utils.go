package cli

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Fepozopo/layerkit/pkg/filters"
	"github.com/Fepozopo/layerkit/pkg/raster"
)

// LoadImage decodes an image file into an NRGBA buffer. JPEG files are
// rotated according to their EXIF orientation. The returned format is the
// decoder name ("png", "jpeg", "gif", "bmp", "tiff", "webp").
func LoadImage(path string) (*image.NRGBA, string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	out := raster.ToNRGBA(img)
	if format == "jpeg" {
		if o, err := jpegOrientation(b); err == nil {
			out = autoOrient(out, o)
		}
	}
	return out, format, nil
}

// SaveImage encodes img by file extension: .png, .jpg/.jpeg or .gif.
// Anything else is written as PNG.
func SaveImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 92})
	case ".gif":
		err = gif.Encode(f, img, nil)
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// imageInfo returns a one-line size summary.
func imageInfo(img *image.NRGBA, format string) string {
	w, h := raster.Size(img)
	if format == "" {
		return fmt.Sprintf("Width: %d, Height: %d", w, h)
	}
	return fmt.Sprintf("Format: %s, Width: %d, Height: %d", strings.ToUpper(format), w, h)
}

// autoOrient maps EXIF orientation 2..8 back to orientation 1.
func autoOrient(img *image.NRGBA, o int) *image.NRGBA {
	switch o {
	case 2:
		return filters.Flop(img)
	case 3:
		return filters.Flip(filters.Flop(img))
	case 4:
		return filters.Flip(img)
	case 5:
		return transpose(img)
	case 6:
		return filters.Flop(transpose(img))
	case 7:
		return filters.Flip(filters.Flop(transpose(img)))
	case 8:
		return filters.Flip(transpose(img))
	}
	return img
}

func transpose(src *image.NRGBA) *image.NRGBA {
	w, h := raster.Size(src)
	out := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s, d := src.PixOffset(x, y), out.PixOffset(y, x)
			copy(out.Pix[d:d+4], src.Pix[s:s+4])
		}
	}
	return out
}

// exifStart returns the offset of the TIFF header inside the first APP1
// Exif segment of a JPEG stream.
func exifStart(data []byte) (int, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return -1, fmt.Errorf("not a jpeg stream")
	}
	for i := 2; i+4 <= len(data); {
		if data[i] != 0xFF {
			i++
			continue
		}
		marker := data[i+1]
		if marker == 0xDA {
			break
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if marker == 0xE1 && i+10 <= len(data) && string(data[i+4:i+10]) == "Exif\x00\x00" {
			return i + 10, nil
		}
		if segLen < 2 {
			i += 2
			continue
		}
		i += 2 + segLen
	}
	return -1, fmt.Errorf("no exif segment")
}

// jpegOrientation reads tag 0x0112 from IFD0.
func jpegOrientation(data []byte) (int, error) {
	start, err := exifStart(data)
	if err != nil {
		return 0, err
	}
	tiff := data[start:]
	if len(tiff) < 8 {
		return 0, fmt.Errorf("tiff header truncated")
	}
	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("unknown tiff byte order")
	}
	if order.Uint16(tiff[2:4]) != 0x002A {
		return 0, fmt.Errorf("invalid tiff magic")
	}
	ifd := int(order.Uint32(tiff[4:8]))
	if ifd+2 > len(tiff) {
		return 0, fmt.Errorf("ifd0 out of range")
	}
	n := int(order.Uint16(tiff[ifd : ifd+2]))
	for e := 0; e < n; e++ {
		ent := ifd + 2 + e*12
		if ent+12 > len(tiff) {
			break
		}
		if order.Uint16(tiff[ent:ent+2]) != 0x0112 {
			continue
		}
		// SHORT, count 1: value sits left-aligned in the offset field.
		o := int(order.Uint16(tiff[ent+8 : ent+10]))
		if o < 1 || o > 8 {
			return 0, fmt.Errorf("orientation %d out of range", o)
		}
		return o, nil
	}
	return 0, fmt.Errorf("orientation tag not found")
}
