// Package project saves and loads layered documents: a YAML manifest next to
// one PNG per layer.
package project

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Fepozopo/layerkit/pkg/blend"
	"github.com/Fepozopo/layerkit/pkg/layer"
	"github.com/Fepozopo/layerkit/pkg/logging"
	"github.com/Fepozopo/layerkit/pkg/raster"
)

// ManifestName is the manifest file inside a project directory.
const ManifestName = "document.yaml"

// Version is the manifest format written by Save.
const Version = 1

// ErrInvalidManifest marks a manifest that cannot describe a document.
var ErrInvalidManifest = errors.New("invalid project manifest")

// Manifest describes a layered document.
type Manifest struct {
	Version  int         `yaml:"version"`
	Name     string      `yaml:"name,omitempty"`
	Created  time.Time   `yaml:"created"`
	Modified time.Time   `yaml:"modified"`
	Width    int         `yaml:"width"`
	Height   int         `yaml:"height"`
	Active   int         `yaml:"active"`
	Layers   []LayerSpec `yaml:"layers"`
}

// LayerSpec is one layer entry, bottom first. File is relative to the
// project directory.
type LayerSpec struct {
	Name         string  `yaml:"name"`
	File         string  `yaml:"file"`
	Visible      bool    `yaml:"visible"`
	Opacity      float64 `yaml:"opacity"`
	BlendMode    string  `yaml:"blend_mode"`
	ClippingMask bool    `yaml:"clipping_mask,omitempty"`
}

// Save writes st into dir, creating it if needed. created is kept when dir
// already holds a manifest.
func Save(dir, name string, st *layer.Stack) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	now := time.Now().UTC()
	created := now
	if old, err := readManifest(dir); err == nil && !old.Created.IsZero() {
		created = old.Created
	}
	w, h := st.CanvasSize()
	m := Manifest{
		Version:  Version,
		Name:     name,
		Created:  created,
		Modified: now,
		Width:    w,
		Height:   h,
		Active:   st.ActiveIndex(),
	}
	for i, l := range st.Layers() {
		file := fmt.Sprintf("layer-%03d.png", i)
		if err := writePNG(filepath.Join(dir, file), l.Image()); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		a := l.Attrs()
		m.Layers = append(m.Layers, LayerSpec{
			Name:         a.Name,
			File:         file,
			Visible:      a.Visible,
			Opacity:      a.Opacity,
			BlendMode:    a.BlendMode.String(),
			ClippingMask: a.ClippingMask,
		})
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0o644); err != nil {
		return err
	}
	logging.Logger().Info("project saved", "dir", dir, "layers", len(m.Layers))
	return nil
}

// Load reads the project in dir. Blend modes are validated here; an unknown
// name fails the whole load.
func Load(dir string) (*layer.Stack, *Manifest, error) {
	m, err := readManifest(dir)
	if err != nil {
		return nil, nil, err
	}
	if err := m.validate(); err != nil {
		return nil, nil, err
	}
	layers := make([]*layer.Layer, len(m.Layers))
	for i, spec := range m.Layers {
		mode, err := blend.ParseMode(spec.BlendMode)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: layer %d: %w", ErrInvalidManifest, i, err)
		}
		img, err := readPNG(filepath.Join(dir, spec.File))
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers[i] = layer.FromAttrs(layer.Attrs{
			Name:         spec.Name,
			Visible:      spec.Visible,
			Opacity:      spec.Opacity,
			BlendMode:    mode,
			ClippingMask: spec.ClippingMask && i > 0,
		}, raster.ToNRGBA(img))
	}
	st := layer.Restore(layers, m.Active)
	if w, h := st.CanvasSize(); w != m.Width || h != m.Height {
		logging.Logger().Warn("canvas size differs from manifest", "manifest", fmt.Sprintf("%dx%d", m.Width, m.Height), "bottom", fmt.Sprintf("%dx%d", w, h))
	}
	logging.Logger().Info("project loaded", "dir", dir, "layers", len(layers))
	return st, m, nil
}

func (m *Manifest) validate() error {
	if m.Version < 1 || m.Version > Version {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, m.Version)
	}
	if len(m.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrInvalidManifest)
	}
	for i, l := range m.Layers {
		if !filepath.IsLocal(l.File) {
			return fmt.Errorf("%w: layer %d: file %q escapes the project", ErrInvalidManifest, i, l.File)
		}
	}
	return nil
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return &m, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}
