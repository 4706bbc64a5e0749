package cli

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/Fepozopo/layerkit/pkg/raster"
)

// exifJPEG wraps a baseline JPEG with an APP1 segment holding only an
// orientation tag.
func exifJPEG(t *testing.T, w, h, orientation int, order binary.ByteOrder) []byte {
	t.Helper()
	var enc bytes.Buffer
	if err := jpeg.Encode(&enc, raster.NewSolid(w, h, color.NRGBA{R: 200, A: 255}), nil); err != nil {
		t.Fatal(err)
	}
	var tiff bytes.Buffer
	if order == binary.LittleEndian {
		tiff.WriteString("II")
	} else {
		tiff.WriteString("MM")
	}
	_ = binary.Write(&tiff, order, uint16(0x2A))
	_ = binary.Write(&tiff, order, uint32(8))
	_ = binary.Write(&tiff, order, uint16(1))
	_ = binary.Write(&tiff, order, uint16(0x0112))
	_ = binary.Write(&tiff, order, uint16(3))
	_ = binary.Write(&tiff, order, uint32(1))
	_ = binary.Write(&tiff, order, uint16(orientation))
	_ = binary.Write(&tiff, order, uint16(0))
	_ = binary.Write(&tiff, order, uint32(0))

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	var out bytes.Buffer
	out.Write(enc.Bytes()[:2])
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(enc.Bytes()[2:])
	return out.Bytes()
}

func TestJPEGOrientation(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		o, err := jpegOrientation(exifJPEG(t, 4, 2, 6, order))
		if err != nil || o != 6 {
			t.Fatalf("%v: got %d, %v", order, o, err)
		}
	}
	if _, err := jpegOrientation([]byte("\x89PNG\r\n\x1a\n")); err == nil {
		t.Fatal("non-jpeg input should fail")
	}
}

func TestLoadImageAutoOrients(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotated.jpg")
	if err := os.WriteFile(path, exifJPEG(t, 4, 2, 6, binary.BigEndian), 0o644); err != nil {
		t.Fatal(err)
	}
	img, format, err := LoadImage(path)
	if err != nil {
		t.Fatal(err)
	}
	if format != "jpeg" {
		t.Fatalf("format %q", format)
	}
	if w, h := raster.Size(img); w != 2 || h != 4 {
		t.Fatalf("orientation 6 should swap dimensions, got %dx%d", w, h)
	}
}

func TestAutoOrientCorners(t *testing.T) {
	src := raster.NewTransparent(3, 2)
	mark := color.NRGBA{R: 255, A: 255}
	src.SetNRGBA(0, 0, mark)
	// where the top-left pixel lands after undoing each orientation
	want := map[int][2]int{1: {0, 0}, 2: {2, 0}, 3: {2, 1}, 4: {0, 1}, 5: {0, 0}, 6: {1, 0}, 7: {1, 2}, 8: {0, 2}}
	for o, p := range want {
		out := autoOrient(src, o)
		if out.NRGBAAt(p[0], p[1]) != mark {
			t.Errorf("orientation %d: mark not at %v", o, p)
		}
	}
}

func TestSaveImageFormats(t *testing.T) {
	dir := t.TempDir()
	img := raster.NewSolid(3, 3, color.NRGBA{G: 120, A: 255})
	for _, name := range []string{"a.png", "b.jpg", "c.gif", "d.unknown"} {
		path := filepath.Join(dir, name)
		if err := SaveImage(path, img); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		got, _, err := LoadImage(path)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if w, h := raster.Size(got); w != 3 || h != 3 {
			t.Fatalf("%s: size %dx%d", name, w, h)
		}
	}
}
