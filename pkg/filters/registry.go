package filters

import (
	"fmt"
	"image"
	"image/color"
	"slices"
	"strconv"
	"strings"
)

// ArgSpec describes one command argument for help text and validation.
type ArgSpec struct {
	Name        string
	Type        string // "int", "float", "bool", "color", "string", "text"
	Required    bool
	Default     string
	Description string
}

// CommandSpec defines a filter command and how to build it from text args.
type CommandSpec struct {
	Name        string
	Args        []ArgSpec
	Usage       string
	Description string
	build       func(a args) (Func, error)
}

// Commands lists every filter the command line can apply to a layer.
var Commands = []CommandSpec{
	{
		Name:        "grayscale",
		Usage:       "grayscale",
		Description: "Convert to luminance (Rec.709).",
		build:       func(args) (Func, error) { return Grayscale, nil },
	},
	{
		Name:        "negate",
		Args:        []ArgSpec{{"onlyGray", "bool", false, "false", "invert luminance only"}},
		Usage:       "negate [onlyGray]",
		Description: "Invert colours.",
		build: func(a args) (Func, error) {
			only, err := a.boolean(0, false)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return Negate(img, only) }, nil
		},
	},
	{
		Name:        "gamma",
		Args:        []ArgSpec{{"gamma", "float", true, "", "gamma value"}},
		Usage:       "gamma <gamma>",
		Description: "Apply gamma correction.",
		build: func(a args) (Func, error) {
			g, err := a.float(0)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return Gamma(img, g) }, nil
		},
	},
	{
		Name: "level",
		Args: []ArgSpec{
			{"blackPoint", "float", true, "", "black point (0-255)"},
			{"gamma", "float", true, "", "gamma"},
			{"whitePoint", "float", true, "", "white point (0-255)"},
		},
		Usage:       "level <blackPoint> <gamma> <whitePoint>",
		Description: "Adjust levels (black/gamma/white).",
		build: func(a args) (Func, error) {
			v, err := a.floats(3)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return Level(img, v[0], v[1], v[2]) }, nil
		},
	},
	{
		Name:        "threshold",
		Args:        []ArgSpec{{"value", "float", true, "", "threshold (0-255)"}, {"perChannel", "bool", false, "false", "apply per channel"}},
		Usage:       "threshold <value> [perChannel]",
		Description: "Threshold by luminance or per channel.",
		build: func(a args) (Func, error) {
			v, err := a.float(0)
			if err != nil {
				return nil, err
			}
			per, err := a.boolean(1, false)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return Threshold(img, v, per) }, nil
		},
	},
	{
		Name: "modulate",
		Args: []ArgSpec{
			{"brightness", "float", true, "", "brightness percent (100 = unchanged)"},
			{"saturation", "float", true, "", "saturation percent"},
			{"hue", "float", true, "", "hue rotation in degrees"},
		},
		Usage:       "modulate <brightness> <saturation> <hue>",
		Description: "Adjust brightness, saturation and hue.",
		build: func(a args) (Func, error) {
			v, err := a.floats(3)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return Modulate(img, v[0], v[1], v[2]) }, nil
		},
	},
	{
		Name:        "blur",
		Args:        []ArgSpec{{"sigma", "float", true, "", "gaussian sigma"}},
		Usage:       "blur <sigma>",
		Description: "Separable Gaussian blur.",
		build: func(a args) (Func, error) {
			s, err := a.float(0)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return GaussianBlur(img, s) }, nil
		},
	},
	{
		Name:        "sharpen",
		Args:        []ArgSpec{{"sigma", "float", true, "", "blur sigma"}, {"amount", "float", false, "1.0", "strength"}},
		Usage:       "sharpen <sigma> [amount]",
		Description: "Unsharp mask.",
		build: func(a args) (Func, error) {
			s, err := a.float(0)
			if err != nil {
				return nil, err
			}
			amt, err := a.floatOr(1, 1)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return Sharpen(img, s, amt) }, nil
		},
	},
	{
		Name:        "posterize",
		Args:        []ArgSpec{{"levels", "int", true, "", "levels per channel"}},
		Usage:       "posterize <levels>",
		Description: "Reduce colour levels per channel.",
		build: func(a args) (Func, error) {
			n, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return Posterize(img, n) }, nil
		},
	},
	{
		Name:        "sepia",
		Args:        []ArgSpec{{"amount", "float", false, "0.8", "blend toward sepia, 0..1"}},
		Usage:       "sepia [amount]",
		Description: "Warm brown tone (Lab blend).",
		build: func(a args) (Func, error) {
			amt, err := a.floatOr(0, 0.8)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return Sepia(img, amt) }, nil
		},
	},
	{
		Name:        "vignette",
		Args:        []ArgSpec{{"strength", "float", false, "0.6", "corner darkening, 0..1"}},
		Usage:       "vignette [strength]",
		Description: "Darken toward the corners.",
		build: func(a args) (Func, error) {
			s, err := a.floatOr(0, 0.6)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return Vignette(img, s) }, nil
		},
	},
	{
		Name:        "edge",
		Args:        []ArgSpec{{"sigma", "float", false, "0", "pre-blur sigma"}},
		Usage:       "edge [sigma]",
		Description: "Sobel edge magnitude.",
		build: func(a args) (Func, error) {
			s, err := a.floatOr(0, 0)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return Edge(img, s) }, nil
		},
	},
	{
		Name:        "equalize",
		Usage:       "equalize",
		Description: "Histogram equalisation per channel.",
		build:       func(args) (Func, error) { return Equalize, nil },
	},
	{
		Name: "floodfill",
		Args: []ArgSpec{
			{"x", "int", true, "", "start column"},
			{"y", "int", true, "", "start row"},
			{"color", "color", true, "", "fill colour"},
			{"fuzz", "float", false, "0", "colour tolerance (delta E)"},
		},
		Usage:       "floodfill <x> <y> <color> [fuzz]",
		Description: "Fill the connected area around a point.",
		build: func(a args) (Func, error) {
			x, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			y, err := a.integer(1)
			if err != nil {
				return nil, err
			}
			if !a.has(2) {
				return nil, fmt.Errorf("missing argument color")
			}
			c, err := ParseColor(a[2])
			if err != nil {
				return nil, err
			}
			fuzz, err := a.floatOr(3, 0)
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return FloodFill(img, x, y, c, fuzz) }, nil
		},
	},
	{
		Name: "annotate",
		Args: []ArgSpec{
			{"x", "int", true, "", "baseline start column"},
			{"y", "int", true, "", "baseline row"},
			{"color", "color", true, "", "text colour"},
			{"text", "text", true, "", "text to draw"},
		},
		Usage:       "annotate <x> <y> <color> <text...>",
		Description: "Draw text with the built-in font.",
		build: func(a args) (Func, error) {
			x, y, c, err := textPlacement(a)
			if err != nil {
				return nil, err
			}
			s := a[3]
			return func(img *image.NRGBA) *image.NRGBA { return Annotate(img, s, x, y, c, nil) }, nil
		},
	},
	{
		Name: "annotatettf",
		Args: []ArgSpec{
			{"font", "string", true, "", "TrueType/OpenType file"},
			{"size", "float", true, "", "point size"},
			{"x", "int", true, "", "baseline start column"},
			{"y", "int", true, "", "baseline row"},
			{"color", "color", true, "", "text colour"},
			{"text", "text", true, "", "text to draw"},
		},
		Usage:       "annotatettf <font> <size> <x> <y> <color> <text...>",
		Description: "Draw text with a font file.",
		build: func(a args) (Func, error) {
			if !a.has(0) {
				return nil, fmt.Errorf("missing argument font")
			}
			size, err := a.float(1)
			if err != nil {
				return nil, err
			}
			face, err := LoadFace(a[0], size)
			if err != nil {
				return nil, err
			}
			x, y, c, err := textPlacement(a[2:])
			if err != nil {
				return nil, err
			}
			s := a[5]
			return func(img *image.NRGBA) *image.NRGBA { return Annotate(img, s, x, y, c, face) }, nil
		},
	},
	{
		Name:        "flip",
		Usage:       "flip",
		Description: "Vertical flip.",
		build:       func(args) (Func, error) { return Flip, nil },
	},
	{
		Name:        "flop",
		Usage:       "flop",
		Description: "Horizontal flip.",
		build:       func(args) (Func, error) { return Flop, nil },
	},
	{
		Name:        "fill",
		Args:        []ArgSpec{{"color", "color", true, "", "CSS colour name or hex (e.g. #ff0000)"}},
		Usage:       "fill <color>",
		Description: "Paint with a solid colour.",
		build: func(a args) (Func, error) {
			if !a.has(0) {
				return nil, fmt.Errorf("missing argument color")
			}
			c, err := ParseColor(a[0])
			if err != nil {
				return nil, err
			}
			return func(img *image.NRGBA) *image.NRGBA { return Fill(img, c) }, nil
		},
	},
}

// Lookup finds a command by name, case-insensitively.
func Lookup(name string) (CommandSpec, bool) {
	i := slices.IndexFunc(Commands, func(c CommandSpec) bool { return strings.EqualFold(c.Name, name) })
	if i < 0 {
		return CommandSpec{}, false
	}
	return Commands[i], true
}

// Build parses textual arguments for the named command and returns the
// transform. Extra arguments are rejected unless the last argument is free
// text, which absorbs the rest.
func Build(name string, argv []string) (Func, error) {
	spec, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown filter %q", name)
	}
	if n := len(spec.Args); n > 0 && spec.Args[n-1].Type == "text" && len(argv) > n {
		argv = append(slices.Clone(argv[:n-1]), strings.Join(argv[n-1:], " "))
	}
	if len(argv) > len(spec.Args) {
		return nil, fmt.Errorf("%s: too many arguments (usage: %s)", spec.Name, spec.Usage)
	}
	fn, err := spec.build(args(argv))
	if err != nil {
		return nil, fmt.Errorf("%s: %w (usage: %s)", spec.Name, err, spec.Usage)
	}
	return fn, nil
}

// Names returns the command names in registry order.
func Names() []string {
	out := make([]string, len(Commands))
	for i, c := range Commands {
		out[i] = c.Name
	}
	return out
}

type args []string

// textPlacement reads the leading "<x> <y> <color> <text>" arguments.
func textPlacement(a args) (x, y int, c color.NRGBA, err error) {
	if x, err = a.integer(0); err != nil {
		return
	}
	if y, err = a.integer(1); err != nil {
		return
	}
	if !a.has(2) {
		err = fmt.Errorf("missing argument color")
		return
	}
	if c, err = ParseColor(a[2]); err != nil {
		return
	}
	if !a.has(3) {
		err = fmt.Errorf("missing argument text")
	}
	return
}

func (a args) has(i int) bool { return i < len(a) && a[i] != "" }

func (a args) float(i int) (float64, error) {
	if !a.has(i) {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	v, err := strconv.ParseFloat(a[i], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", a[i])
	}
	return v, nil
}

func (a args) floatOr(i int, def float64) (float64, error) {
	if !a.has(i) {
		return def, nil
	}
	return a.float(i)
}

func (a args) floats(n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		v, err := a.float(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (a args) integer(i int) (int, error) {
	if !a.has(i) {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	v, err := strconv.Atoi(a[i])
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", a[i])
	}
	return v, nil
}

func (a args) boolean(i int, def bool) (bool, error) {
	if !a.has(i) {
		return def, nil
	}
	v, err := strconv.ParseBool(a[i])
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", a[i])
	}
	return v, nil
}
