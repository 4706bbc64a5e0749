package cli

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"strings"
	"testing"
)

func tinyImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{B: 255, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, G: 255, A: 255})
	return img
}

// inlineTerminal makes detection pick the OSC 1337 backend.
func inlineTerminal(t *testing.T) {
	t.Helper()
	t.Setenv("TERM_PROGRAM", "WezTerm")
	t.Setenv("TERM", "xterm-256color")
	t.Setenv("KITTY_WINDOW_ID", "")
	t.Setenv("KONSOLE_VERSION", "")
	t.Setenv("PREVIEW_BACKEND", "")
}

func inlinePayload(t *testing.T, out string) []byte {
	t.Helper()
	_, rest, ok := strings.Cut(out, ":")
	if !ok {
		t.Fatalf("no payload separator in %q", out)
	}
	payload, _, _ := strings.Cut(rest, "\a")
	dec, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("base64 decode failed: %v", err)
	}
	return dec
}

func TestPreviewInlineSequence(t *testing.T) {
	inlineTerminal(t)
	var buf bytes.Buffer
	if err := PreviewImage(&buf, tinyImage(), "png"); err != nil {
		t.Fatalf("PreviewImage error: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "\x1b]1337;File=name=preview.png;inline=1;") {
		t.Fatalf("expected inline 1337 sequence, got %q", out)
	}
	if dec := inlinePayload(t, out); !bytes.HasPrefix(dec, []byte("\x89PNG")) {
		t.Fatalf("expected PNG payload, got %x", dec[:4])
	}
}

func TestPreviewEncodesJPEG(t *testing.T) {
	inlineTerminal(t)
	var buf bytes.Buffer
	if err := PreviewImage(&buf, tinyImage(), "jpeg"); err != nil {
		t.Fatalf("PreviewImage error: %v", err)
	}
	if dec := inlinePayload(t, buf.String()); len(dec) < 2 || dec[0] != 0xFF || dec[1] != 0xD8 {
		t.Fatalf("expected JPEG SOI bytes, got %x", dec[:2])
	}
}

func TestPreviewKittyChunks(t *testing.T) {
	var buf bytes.Buffer
	data := bytes.Repeat([]byte{0xAB}, 5000) // encodes to more than one 4096 chunk
	if err := sendKittyImage(&buf, data, "png", PreviewSize{Cols: 10, Rows: 5}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "\x1b_Ga=T,f=100,t=d,q=2,c=10,r=5,m=1;") {
		t.Fatalf("unexpected first chunk header: %q", out[:40])
	}
	if !strings.Contains(out, "\x1b_Gm=0;") {
		t.Fatal("missing final chunk marker")
	}
}

func TestComputePreviewSize(t *testing.T) {
	cases := []struct {
		w, h       int
		cols, rows int
	}{
		{16, 16, 6, 3},     // tiny images hit the minimum
		{640, 640, 80, 40}, // both bounds
		{4000, 100, 80, 3}, // width bound
	}
	for _, c := range cases {
		got := computePreviewSize(image.Rect(0, 0, c.w, c.h))
		if got.Cols != c.cols || got.Rows != c.rows {
			t.Errorf("%dx%d: got %dx%d cells, want %dx%d", c.w, c.h, got.Cols, got.Rows, c.cols, c.rows)
		}
		if got.PixelWidth != got.Cols*8 || got.PixelHeight != got.Rows*16 {
			t.Errorf("%dx%d: pixel size not derived from cells: %+v", c.w, c.h, got)
		}
	}
}
