// Package blend implements the per-channel colour blend modes used when a
// layer is composited onto everything below it.
//
// All functions work on normalized values in [0,1]. Alpha is never read or
// written here; the compositor owns coverage and opacity.
package blend

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Mode selects how a layer's colour combines with the colour beneath it.
type Mode int

const (
	Normal Mode = iota
	Multiply
	Screen
	Overlay
	Darken
	Lighten
	Difference
	Addition
	SoftLight
)

// ErrUnknownMode is returned when a textual blend mode cannot be parsed.
var ErrUnknownMode = errors.New("unknown blend mode")

var modeNames = [...]string{
	Normal:     "Normal",
	Multiply:   "Multiply",
	Screen:     "Screen",
	Overlay:    "Overlay",
	Darken:     "Darken",
	Lighten:    "Lighten",
	Difference: "Difference",
	Addition:   "Addition",
	SoftLight:  "Soft Light",
}

// Modes lists every supported mode in menu order.
func Modes() []Mode {
	return []Mode{Normal, Multiply, Screen, Overlay, Darken, Lighten, Difference, Addition, SoftLight}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return m >= Normal && m <= SoftLight
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode accepts a mode name case-insensitively. Spaces, dashes and
// underscores are ignored, so "soft light", "soft_light" and "SoftLight" are
// all accepted, as are the short aliases "add" and "diff".
func ParseMode(s string) (Mode, error) {
	key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch key {
	case "normal", "over", "":
		return Normal, nil
	case "multiply":
		return Multiply, nil
	case "screen":
		return Screen, nil
	case "overlay":
		return Overlay, nil
	case "darken":
		return Darken, nil
	case "lighten":
		return Lighten, nil
	case "difference", "diff":
		return Difference, nil
	case "addition", "add", "plus":
		return Addition, nil
	case "softlight":
		return SoftLight, nil
	}
	return Normal, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names are
// rejected here so nothing downstream has to handle them.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Func returns the per-channel function for m. Callers pick it once per
// layer and reuse it across pixels.
func (m Mode) Func() func(bottom, top float64) float64 {
	switch m {
	case Multiply:
		return multiply
	case Screen:
		return screen
	case Overlay:
		return overlay
	case Darken:
		return darken
	case Lighten:
		return lighten
	case Difference:
		return difference
	case Addition:
		return addition
	case SoftLight:
		return softLight
	default:
		return normal
	}
}

// Channel blends a single normalized channel and clamps the result.
func Channel(m Mode, bottom, top float64) float64 {
	return clamp01(m.Func()(bottom, top))
}

// RGB blends normalized RGB triples channel by channel.
func RGB(m Mode, bottom, top [3]float64) [3]float64 {
	f := m.Func()
	return [3]float64{
		clamp01(f(bottom[0], top[0])),
		clamp01(f(bottom[1], top[1])),
		clamp01(f(bottom[2], top[2])),
	}
}

func normal(_, top float64) float64        { return top }
func multiply(bottom, top float64) float64 { return bottom * top }
func screen(bottom, top float64) float64   { return 1 - (1-bottom)*(1-top) }

// overlay picks its branch from the bottom value; 0.5 takes the screen side.
func overlay(bottom, top float64) float64 {
	if bottom < 0.5 {
		return 2 * bottom * top
	}
	return 1 - 2*(1-bottom)*(1-top)
}

func darken(bottom, top float64) float64     { return math.Min(bottom, top) }
func lighten(bottom, top float64) float64    { return math.Max(bottom, top) }
func difference(bottom, top float64) float64 { return math.Abs(bottom - top) }
func addition(bottom, top float64) float64   { return clamp01(bottom + top) }

func softLight(bottom, top float64) float64 {
	return (1-2*top)*bottom*bottom + 2*top*bottom
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
