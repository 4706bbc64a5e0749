// Package cli is the interactive front end: a line-oriented REPL that edits
// one layered document, previews it in the terminal and saves it.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/Fepozopo/layerkit/pkg/blend"
	"github.com/Fepozopo/layerkit/pkg/composite"
	"github.com/Fepozopo/layerkit/pkg/config"
	"github.com/Fepozopo/layerkit/pkg/filters"
	"github.com/Fepozopo/layerkit/pkg/layer"
	"github.com/Fepozopo/layerkit/pkg/logging"
	"github.com/Fepozopo/layerkit/pkg/project"
	"github.com/Fepozopo/layerkit/pkg/session"
)

// errQuit ends Run without an error.
var errQuit = errors.New("quit")

// REPL holds one open document and the terminal it talks to.
type REPL struct {
	in      *bufio.Reader
	out     io.Writer
	cfg     config.Config
	sess    *session.Session
	cancel  func()
	name    string
	format  string
	preview bool
	changed atomic.Bool
}

// New starts with an empty 800x600 document. Previews are enabled when the
// terminal looks capable of showing them.
func New(cfg config.Config, in io.Reader, out io.Writer) *REPL {
	r := &REPL{in: bufio.NewReader(in), out: out, cfg: cfg, preview: PreviewSupported()}
	r.setSession(session.New(800, 600, cfg.SessionOptions()), "untitled", "")
	return r
}

// SetPreview turns the automatic composite preview on or off.
func (r *REPL) SetPreview(on bool) { r.preview = on }

// Session returns the document being edited.
func (r *REPL) Session() *session.Session { return r.sess }

func (r *REPL) setSession(s *session.Session, name, format string) {
	if r.cancel != nil {
		r.cancel()
	}
	r.sess, r.name, r.format = s, name, format
	r.cancel = s.Subscribe(func(ev session.Event) {
		logging.Logger().Debug("document changed", "kind", ev.Kind.String(), "active", ev.Active, "generation", ev.Generation)
		if ev.Kind != session.Selection {
			r.changed.Store(true)
		}
	})
	r.changed.Store(true)
}

// Open replaces the document with a single-layer one built from an image
// file, or with a saved project when path is a project directory.
func (r *REPL) Open(path string) error {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return r.loadProject(path)
	}
	img, format, err := LoadImage(path)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	r.setSession(session.Open(name, img, r.cfg.SessionOptions()), name, format)
	fmt.Fprintf(r.out, "Opened %s\n", path)
	fmt.Fprintln(r.out, imageInfo(img, format))
	return nil
}

func (r *REPL) loadProject(dir string) error {
	st, m, err := project.Load(dir)
	if err != nil {
		return err
	}
	name := m.Name
	if name == "" {
		name = filepath.Base(dir)
	}
	r.setSession(session.FromStack(st, r.cfg.SessionOptions()), name, "")
	fmt.Fprintf(r.out, "Loaded %s (%d layers)\n", dir, st.Len())
	return nil
}

// Run reads commands until "quit" or end of input.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "Layered Terminal Image Editor")
	fmt.Fprintln(r.out, "Type 'help' for commands.")
	r.refresh(ctx)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := r.prompt("> ")
		if errors.Is(err, io.EOF) && line == "" {
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read input: %w", err)
		}
		if err := r.Exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(r.out, "Exiting...")
				return nil
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
			continue
		}
		r.refresh(ctx)
	}
}

// Exec runs one command line.
func (r *REPL) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	c, ok := lookupCommand(fields[0])
	if !ok {
		return fmt.Errorf("unknown command %q (try 'help')", fields[0])
	}
	if len(fields)-1 < c.minArgs {
		return fmt.Errorf("usage: %s", c.usage)
	}
	return c.run(r, ctx, fields[1:])
}

// prompt writes label and reads one trimmed line.
func (r *REPL) prompt(label string) (string, error) {
	fmt.Fprint(r.out, label)
	line, err := r.in.ReadString('\n')
	return strings.TrimSpace(line), err
}

// refresh previews the composite if something changed since the last look.
func (r *REPL) refresh(ctx context.Context) {
	if !r.preview || !r.changed.Swap(false) {
		return
	}
	if err := r.show(ctx); err != nil {
		logging.Logger().Debug("preview failed", "err", err)
	}
}

// show renders the composite off the REPL goroutine and previews it. A
// render overtaken by a newer edit is dropped by the session.
func (r *REPL) show(ctx context.Context) error {
	var img *image.NRGBA
	<-r.sess.RequestComposite(ctx, func(c *image.NRGBA) { img = c })
	if img == nil {
		img = r.sess.Composite()
	}
	return PreviewImage(r.out, img, r.format)
}

// edit applies op to the stack with history.
func (r *REPL) edit(kind session.Kind, op func(*layer.Stack) error) error {
	return r.sess.Edit(kind, op)
}

// layerIndex parses an optional explicit index, defaulting to the active layer.
func (r *REPL) layerIndex(args []string) (int, error) {
	if len(args) == 0 {
		return r.sess.ActiveIndex(), nil
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid layer index %q", args[0])
	}
	return i, nil
}

// splitRegion peels a trailing "@x,y,w,h" off args.
func splitRegion(args []string) ([]string, *image.Rectangle, error) {
	if len(args) == 0 || !strings.HasPrefix(args[len(args)-1], "@") {
		return args, nil, nil
	}
	parts := strings.Split(strings.TrimPrefix(args[len(args)-1], "@"), ",")
	if len(parts) != 4 {
		return nil, nil, fmt.Errorf("region must be @x,y,w,h")
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid region value %q", p)
		}
		v[i] = n
	}
	rect := image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3])
	return args[:len(args)-1], &rect, nil
}

// buildFilter resolves a filter by name, or through fzf when name is empty.
func (r *REPL) buildFilter(args []string) (string, filters.Func, *image.Rectangle, error) {
	args, region, err := splitRegion(args)
	if err != nil {
		return "", nil, nil, err
	}
	var name string
	if len(args) == 0 {
		if name, err = selectFilterWithFzf(filters.Commands); err != nil {
			return "", nil, nil, fmt.Errorf("no filter given (see 'filters'): %w", err)
		}
	} else {
		name, args = args[0], args[1:]
	}
	spec, ok := filters.Lookup(name)
	if !ok {
		return "", nil, nil, fmt.Errorf("unknown filter %q", name)
	}
	argv, err := normalizeFilterArgs(spec, args)
	if err != nil {
		return "", nil, nil, err
	}
	fn, err := filters.Build(spec.Name, argv)
	return spec.Name, fn, region, err
}

func (r *REPL) printLayers() {
	layers := r.sess.Layers()
	active := r.sess.ActiveIndex()
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		mark := " "
		if i == active {
			mark = "*"
		}
		vis := "visible"
		if !l.Visible() {
			vis = "hidden"
		}
		clip := ""
		if l.ClippingMask() {
			clip = " [clip]"
		}
		fmt.Fprintf(r.out, "%s %2d  %-20s %-7s %3.0f%%  %s%s\n", mark, i, l.Name(), vis, l.Opacity()*100, l.BlendMode(), clip)
	}
}

func (r *REPL) printInfo() {
	w, h := r.sess.CanvasSize()
	fmt.Fprintf(r.out, "Document: %s  %dx%d  layers: %d  active: %d\n", r.name, w, h, len(r.sess.Layers()), r.sess.ActiveIndex())
	fmt.Fprintf(r.out, "History: %d undo, %d redo\n", r.sess.UndoLen(), r.sess.RedoLen())
}

func (r *REPL) usage() {
	fmt.Fprintln(r.out, "Commands available:")
	for _, c := range commands {
		fmt.Fprintf(r.out, "  %-34s %s\n", c.usage, c.desc)
	}
	fmt.Fprintln(r.out, "Filters take an optional trailing region @x,y,w,h.")
}

func (r *REPL) usageFilters() {
	for _, c := range filters.Commands {
		fmt.Fprintln(r.out, "  "+filterHelp(c))
	}
}

// pathArg returns the joined args, or asks fzf for one when none was given.
func pathArg(args []string, dirs bool) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	return selectFileWithFzf(".", dirs)
}

// flattened is the document with transparency kept, for export.
func (r *REPL) flattened() *image.NRGBA {
	return composite.Flatten(r.sess.Layers(), r.cfg.CompositeOptions())
}

// RunCLI is the binary's entry point. An optional first argument names an
// image file or project directory to open.
func RunCLI(ctx context.Context, cfg config.Config, args []string) error {
	r := New(cfg, os.Stdin, os.Stdout)
	if len(args) > 0 {
		if err := r.Open(args[0]); err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
	}
	return r.Run(ctx)
}

// parseBlendMode accepts multi-word names such as "soft light".
func parseBlendMode(args []string) (blend.Mode, error) {
	m, err := blend.ParseMode(strings.Join(args, " "))
	if err != nil {
		names := make([]string, 0, len(blend.Modes()))
		for _, mode := range blend.Modes() {
			names = append(names, mode.String())
		}
		return 0, fmt.Errorf("%w (one of: %s)", err, strings.Join(names, ", "))
	}
	return m, nil
}
