package cli

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"os/exec"
	"strings"

	"github.com/Fepozopo/layerkit/pkg/logging"
)

// Inline terminal preview. Backends, in default order:
//   - inline: iTerm2-style OSC 1337 (iTerm2, WezTerm, Warp, Tabby, VS Code ...)
//   - kitty: kitty graphics protocol, chunked base64 in ESC _G ... ESC \
//   - sixel: piped through img2sixel
//   - chafa: block-symbol approximation for any terminal
//
// PREVIEW_BACKEND names a backend to try first.

var errNoBackend = errors.New("no terminal preview backend available")

type previewBackend struct {
	name   string
	detect func() bool
	send   func(w io.Writer, data []byte, format string, size PreviewSize) error
}

var previewBackends = []previewBackend{
	{"inline", isInlineImageCapable, sendInlineImage},
	{"kitty", isKitty, sendKittyImage},
	{"sixel", isSixelCapable, sendSixelImage},
	{"chafa", hasChafa, sendChafaImage},
}

func isKitty() bool {
	if os.Getenv("KITTY_WINDOW_ID") != "" || os.Getenv("KONSOLE_VERSION") != "" {
		return true
	}
	term := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(term, "kitty") || strings.Contains(term, "ghost")
}

func isInlineImageCapable() bool {
	switch os.Getenv("TERM_PROGRAM") {
	case "iTerm.app", "WezTerm", "Warp", "Hyper", "vscode", "VSCode", "Tabby", "Bobcat":
		return true
	}
	if os.Getenv("ITERM_SESSION_ID") != "" {
		return true
	}
	term := strings.ToLower(os.Getenv("TERM"))
	for _, hint := range []string{"wez", "warp", "tabby", "vscode"} {
		if strings.Contains(term, hint) {
			return true
		}
	}
	return false
}

// isSixelCapable is heuristic; SIXEL_PREVIEW=1 forces it on.
func isSixelCapable() bool {
	if os.Getenv("SIXEL_PREVIEW") == "1" || os.Getenv("WT_SESSION") != "" {
		return true
	}
	term := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(term, "foot") || strings.Contains(term, "st") || strings.Contains(term, "linux")
}

func hasChafa() bool {
	if os.Getenv("NO_CHAFA") == "1" {
		return false
	}
	_, err := exec.LookPath("chafa")
	return err == nil
}

// PreviewSupported reports whether any backend is likely to work here.
func PreviewSupported() bool {
	for _, b := range previewBackends {
		if b.detect() {
			return true
		}
	}
	return false
}

// PreviewImage encodes img as PNG, or JPEG when format is "jpeg"/"jpg", and
// writes it to w with the first backend that succeeds. Kitty always
// receives PNG.
func PreviewImage(w io.Writer, img image.Image, format string) error {
	if img == nil {
		return fmt.Errorf("nil image")
	}
	order := previewBackends
	forced := strings.ToLower(os.Getenv("PREVIEW_BACKEND"))
	if forced != "" {
		order = make([]previewBackend, 0, len(previewBackends)+1)
		for _, b := range previewBackends {
			if b.name == forced || (forced == "iterm" || forced == "wezterm") && b.name == "inline" {
				b.detect = func() bool { return true }
				order = append(order, b)
			}
		}
		order = append(order, previewBackends...)
	}
	f := strings.ToLower(format)
	if f == "jpg" {
		f = "jpeg"
	}
	if f != "jpeg" || forced == "kitty" || forced == "" && isKitty() {
		f = "png"
	}
	var buf bytes.Buffer
	if f == "jpeg" {
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
			return fmt.Errorf("jpeg encode failed: %w", err)
		}
	} else if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("png encode failed: %w", err)
	}

	size := computePreviewSize(img)
	var errs []error
	for _, b := range order {
		if !b.detect() {
			continue
		}
		err := b.send(w, buf.Bytes(), f, size)
		if err == nil {
			return nil
		}
		logging.Logger().Debug("preview backend failed", "backend", b.name, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
	}
	if len(errs) == 0 {
		return errNoBackend
	}
	return errors.Join(errs...)
}

// PreviewSize is the placement requested from a backend.
type PreviewSize struct {
	Cols        int
	Rows        int
	PixelWidth  int
	PixelHeight int
}

// computePreviewSize fits the image into at most 80x40 character cells of
// 8x16 pixels, preserving aspect ratio and never scaling up.
func computePreviewSize(img image.Image) PreviewSize {
	const (
		cellW, cellH     = 8, 16
		minCols, minRows = 6, 3
		maxCols, maxRows = 80, 40
	)
	w, h := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	scale := 1.0
	if w > 0 && h > 0 {
		scale = math.Min(1, math.Min(maxCols*cellW/w, maxRows*cellH/h))
	}
	cols := min(max(int(math.Round(w*scale/cellW)), minCols), maxCols)
	rows := min(max(int(math.Round(h*scale/cellH)), minRows), maxRows)
	return PreviewSize{Cols: cols, Rows: rows, PixelWidth: cols * cellW, PixelHeight: rows * cellH}
}

// trailingNewlines keeps the prompt just under the image.
func trailingNewlines(w io.Writer, rows int) {
	n := 1
	switch {
	case rows <= 0:
	case rows <= 2:
	case rows <= 6:
		n = 2
	case rows <= 20:
		n = 3
	default:
		n = 4
	}
	fmt.Fprint(w, strings.Repeat("\n", n))
}

func sendKittyImage(w io.Writer, data []byte, _ string, size PreviewSize) error {
	if len(data) == 0 {
		return fmt.Errorf("no data")
	}
	const chunk = 4096
	enc := base64.StdEncoding.EncodeToString(data)
	for pos := 0; pos < len(enc); pos += chunk {
		end := min(pos+chunk, len(enc))
		more := 0
		if end < len(enc) {
			more = 1
		}
		var err error
		if pos == 0 {
			// a=T transmit and display, f=100 PNG, q=2 silence replies.
			_, err = fmt.Fprintf(w, "\x1b_Ga=T,f=100,t=d,q=2,c=%d,r=%d,m=%d;%s\x1b\\", size.Cols, size.Rows, more, enc[pos:end])
		} else {
			_, err = fmt.Fprintf(w, "\x1b_Gm=%d;%s\x1b\\", more, enc[pos:end])
		}
		if err != nil {
			return err
		}
	}
	trailingNewlines(w, size.Rows)
	return nil
}

func sendInlineImage(w io.Writer, data []byte, format string, size PreviewSize) error {
	if len(data) == 0 {
		return fmt.Errorf("no data")
	}
	name := "preview.png"
	if format == "jpeg" {
		name = "preview.jpg"
	}
	meta := fmt.Sprintf("size=%d;", len(data))
	if size.PixelWidth > 0 && size.PixelHeight > 0 {
		meta += fmt.Sprintf("width=%dpx;height=%dpx;", size.PixelWidth, size.PixelHeight)
	}
	if _, err := fmt.Fprintf(w, "\x1b]1337;File=name=%s;inline=1;%s:%s\a", name, meta, base64.StdEncoding.EncodeToString(data)); err != nil {
		return err
	}
	trailingNewlines(w, 0)
	return nil
}

func sendSixelImage(w io.Writer, data []byte, _ string, _ PreviewSize) error {
	if len(data) == 0 {
		return fmt.Errorf("no data")
	}
	cmd := exec.Command("img2sixel", "-")
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = w
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("img2sixel failed: %w", err)
	}
	trailingNewlines(w, 0)
	return nil
}

// sendChafaImage honours CHAFA_FILL and CHAFA_SYMBOLS.
func sendChafaImage(w io.Writer, data []byte, _ string, size PreviewSize) error {
	if len(data) == 0 {
		return fmt.Errorf("no data")
	}
	fill, symbols := "block", "block"
	if v := os.Getenv("CHAFA_FILL"); v != "" {
		fill = v
	}
	if v := os.Getenv("CHAFA_SYMBOLS"); v != "" {
		symbols = v
	}
	cmd := exec.Command("chafa", "--fill="+fill, "--symbols="+symbols, "-s", fmt.Sprintf("%dx%d", size.Cols, size.Rows), "-")
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = w
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("chafa failed: %w", err)
	}
	trailingNewlines(w, size.Rows)
	return nil
}
