package history

import (
	"bytes"
	"fmt"
	"image"

	"github.com/klauspost/compress/zstd"

	"github.com/Fepozopo/layerkit/pkg/layer"
	"github.com/Fepozopo/layerkit/pkg/logging"
)

// Snapshot is an immutable deep copy of a layer stack: every layer's
// attributes and pixels plus the active index. Pixel payloads are optionally
// zstd-compressed; restoring yields byte-identical buffers either way.
type Snapshot struct {
	attrs      []layer.Attrs
	bounds     []image.Rectangle
	pix        [][]byte
	active     int
	compressed bool
}

// Capture copies s into a new snapshot. Compression failure falls back to
// raw payloads.
func Capture(s *layer.Stack, compress bool) *Snapshot {
	n := s.Len()
	sn := &Snapshot{
		attrs:      make([]layer.Attrs, n),
		bounds:     make([]image.Rectangle, n),
		pix:        make([][]byte, n),
		active:     s.ActiveIndex(),
		compressed: compress,
	}
	for i, l := range s.Layers() {
		img := l.Image()
		sn.attrs[i] = l.Attrs()
		sn.bounds[i] = img.Rect
		sn.pix[i] = packed(img)
	}
	if !compress {
		return sn
	}
	out := make([][]byte, n)
	for i, p := range sn.pix {
		c, err := compressZstd(p)
		if err != nil {
			logging.Logger().Warn("snapshot compression failed, keeping raw pixels", "err", err)
			sn.compressed = false
			return sn
		}
		out[i] = c
	}
	sn.pix = out
	return sn
}

// Len returns the number of layers captured.
func (sn *Snapshot) Len() int { return len(sn.attrs) }

// Size returns the payload bytes held by the snapshot.
func (sn *Snapshot) Size() int {
	total := 0
	for _, p := range sn.pix {
		total += len(p)
	}
	return total
}

// Restore rebuilds an independent stack from the snapshot. The snapshot is
// not consumed and can be restored again.
func (sn *Snapshot) Restore() (*layer.Stack, error) {
	layers := make([]*layer.Layer, len(sn.attrs))
	for i, a := range sn.attrs {
		p := sn.pix[i]
		if sn.compressed {
			var err error
			if p, err = decompressZstd(p); err != nil {
				return nil, fmt.Errorf("restore layer %d: %w", i, err)
			}
		} else {
			p = append([]byte(nil), p...)
		}
		r := sn.bounds[i]
		if len(p) != 4*r.Dx()*r.Dy() {
			return nil, fmt.Errorf("restore layer %d: payload has %d bytes, want %d", i, len(p), 4*r.Dx()*r.Dy())
		}
		buf := &image.NRGBA{Pix: p, Stride: 4 * r.Dx(), Rect: r}
		layers[i] = layer.FromAttrs(a, buf)
	}
	return layer.Restore(layers, sn.active), nil
}

// packed returns img's pixels with no row padding.
func packed(img *image.NRGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]byte, 4*w*h)
	for y := 0; y < h; y++ {
		copy(out[y*4*w:(y+1)*4*w], img.Pix[y*img.Stride:y*img.Stride+4*w])
	}
	return out
}

func compressZstd(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(dec); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
