package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/Fepozopo/layerkit/pkg/layer"
	"github.com/Fepozopo/layerkit/pkg/project"
	"github.com/Fepozopo/layerkit/pkg/session"
)

type command struct {
	names   []string
	usage   string
	desc    string
	minArgs int
	run     func(r *REPL, ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{names: []string{"help", "h", "?"}, usage: "help", desc: "Show this help message.",
			run: func(r *REPL, _ context.Context, _ []string) error { r.usage(); return nil }},
		{names: []string{"filters"}, usage: "filters", desc: "List filters and their arguments.",
			run: func(r *REPL, _ context.Context, _ []string) error { r.usageFilters(); return nil }},
		{names: []string{"layers", "ls"}, usage: "layers", desc: "List layers, top first; * marks the active one.",
			run: func(r *REPL, _ context.Context, _ []string) error { r.printLayers(); return nil }},
		{names: []string{"info"}, usage: "info", desc: "Show document size and history depth.",
			run: func(r *REPL, _ context.Context, _ []string) error { r.printInfo(); return nil }},

		{names: []string{"new"}, usage: "new <width> <height>", desc: "Start a blank document.", minArgs: 2, run: cmdNew},
		{names: []string{"open", "o"}, usage: "open [path]", desc: "Open an image or project directory.", run: cmdOpen},
		{names: []string{"import"}, usage: "import <path>", desc: "Add an image file as a new layer above the active one.", minArgs: 1, run: cmdImport},
		{names: []string{"save", "s"}, usage: "save <file>", desc: "Export the flattened image (.png, .jpg, .gif).", minArgs: 1, run: cmdSave},
		{names: []string{"savedoc"}, usage: "savedoc <dir>", desc: "Save the layered document to a directory.", minArgs: 1, run: cmdSaveDoc},
		{names: []string{"loaddoc"}, usage: "loaddoc [dir]", desc: "Load a layered document.", run: cmdLoadDoc},

		{names: []string{"select", "sel"}, usage: "select <index>", desc: "Make a layer active.", minArgs: 1, run: cmdSelect},
		{names: []string{"add"}, usage: "add [name]", desc: "Add a transparent layer above the active one.", run: cmdAdd},
		{names: []string{"dup"}, usage: "dup", desc: "Duplicate the active layer.",
			run: stackOp(session.Structure, func(st *layer.Stack) error { return st.Duplicate(st.ActiveIndex()) })},
		{names: []string{"del", "delete"}, usage: "del", desc: "Delete the active layer.",
			run: stackOp(session.Structure, func(st *layer.Stack) error { return st.Delete(st.ActiveIndex()) })},
		{names: []string{"clear"}, usage: "clear", desc: "Erase the active layer to transparent.",
			run: stackOp(session.LayerPixels, func(st *layer.Stack) error { return st.Clear(st.ActiveIndex()) })},
		{names: []string{"mergedown", "md"}, usage: "mergedown", desc: "Merge the active layer into the one below.",
			run: stackOp(session.Structure, func(st *layer.Stack) error { return st.MergeDown(st.ActiveIndex()) })},
		{names: []string{"writedown", "wd"}, usage: "writedown", desc: "Write the active layer onto the one below, keeping both.",
			run: stackOp(session.LayerPixels, func(st *layer.Stack) error { return st.WriteDown(st.ActiveIndex()) })},
		{names: []string{"mergeall"}, usage: "mergeall", desc: "Flatten every layer into one.",
			run: stackOp(session.Structure, func(st *layer.Stack) error { st.MergeAll(); return nil })},
		{names: []string{"mergevisible"}, usage: "mergevisible", desc: "Flatten visible layers, keeping hidden ones.",
			run: stackOp(session.Structure, func(st *layer.Stack) error { st.MergeAllVisible(); return nil })},
		{names: []string{"up"}, usage: "up", desc: "Move the active layer up one step.",
			run: stackOp(session.Structure, func(st *layer.Stack) error { return st.Move(st.ActiveIndex(), 1) })},
		{names: []string{"down"}, usage: "down", desc: "Move the active layer down one step.",
			run: stackOp(session.Structure, func(st *layer.Stack) error { return st.Move(st.ActiveIndex(), -1) })},
		{names: []string{"top"}, usage: "top", desc: "Move the active layer to the top.",
			run: stackOp(session.Structure, func(st *layer.Stack) error { return st.MoveToExtreme(st.ActiveIndex(), true) })},
		{names: []string{"bottom"}, usage: "bottom", desc: "Move the active layer to the bottom.",
			run: stackOp(session.Structure, func(st *layer.Stack) error { return st.MoveToExtreme(st.ActiveIndex(), false) })},
		{names: []string{"clip"}, usage: "clip", desc: "Toggle the active layer's clipping mask.",
			run: stackOp(session.LayerAttrs, func(st *layer.Stack) error { return st.ToggleClippingMask(st.ActiveIndex()) })},
		{names: []string{"opacity"}, usage: "opacity <0..1|N%>", desc: "Set the active layer's opacity.", minArgs: 1, run: cmdOpacity},
		{names: []string{"mode", "blend"}, usage: "mode <blend mode>", desc: "Set the active layer's blend mode.", minArgs: 1, run: cmdMode},
		{names: []string{"show"}, usage: "show [index]", desc: "Make a layer visible.", run: cmdVisible(true)},
		{names: []string{"hide"}, usage: "hide [index]", desc: "Hide a layer.", run: cmdVisible(false)},
		{names: []string{"rename"}, usage: "rename <name>", desc: "Rename the active layer.", minArgs: 1, run: cmdRename},

		{names: []string{"filter", "f", "/"}, usage: "filter [name] [args...] [@x,y,w,h]", desc: "Apply a filter to the active layer.", run: cmdFilter},
		{names: []string{"preview", "try"}, usage: "preview <name> [args...] [@x,y,w,h]", desc: "Try a filter, then keep or discard it.", run: cmdPreview},
		{names: []string{"undo", "u"}, usage: "undo", desc: "Undo the last change.", run: cmdUndo},
		{names: []string{"redo", "r"}, usage: "redo", desc: "Redo the last undone change.", run: cmdRedo},

		{names: []string{"view", "v"}, usage: "view", desc: "Preview the composite in the terminal.",
			run: func(r *REPL, ctx context.Context, _ []string) error { r.changed.Store(false); return r.show(ctx) }},
		{names: []string{"thumb"}, usage: "thumb [index] [size]", desc: "Preview one layer's thumbnail.", run: cmdThumb},
		{names: []string{"autopreview"}, usage: "autopreview <on|off>", desc: "Preview after every change.", minArgs: 1, run: cmdAutoPreview},
		{names: []string{"update"}, usage: "update", desc: "Check for a newer release.",
			run: func(r *REPL, ctx context.Context, _ []string) error { return r.checkForUpdates(ctx, r.cfg.Update.Repo) }},
		{names: []string{"quit", "q", "exit"}, usage: "quit", desc: "Quit.",
			run: func(*REPL, context.Context, []string) error { return errQuit }},
	}
}

func lookupCommand(name string) (command, bool) {
	name = strings.ToLower(name)
	i := slices.IndexFunc(commands, func(c command) bool { return slices.Contains(c.names, name) })
	if i < 0 {
		return command{}, false
	}
	return commands[i], true
}

// stackOp wraps a layer operation as a recorded edit.
func stackOp(kind session.Kind, op func(*layer.Stack) error) func(*REPL, context.Context, []string) error {
	return func(r *REPL, _ context.Context, _ []string) error {
		return r.edit(kind, op)
	}
}

func cmdNew(r *REPL, _ context.Context, args []string) error {
	w, err := strconv.Atoi(args[0])
	if err != nil || w <= 0 {
		return fmt.Errorf("invalid width %q", args[0])
	}
	h, err := strconv.Atoi(args[1])
	if err != nil || h <= 0 {
		return fmt.Errorf("invalid height %q", args[1])
	}
	r.setSession(session.New(w, h, r.cfg.SessionOptions()), "untitled", "")
	fmt.Fprintf(r.out, "New %dx%d document\n", w, h)
	return nil
}

func cmdOpen(r *REPL, _ context.Context, args []string) error {
	path, err := pathArg(args, false)
	if err != nil {
		return fmt.Errorf("open cancelled: %w", err)
	}
	return r.Open(path)
}

func cmdImport(r *REPL, _ context.Context, args []string) error {
	path := strings.Join(args, " ")
	img, _, err := LoadImage(path)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return r.edit(session.Structure, func(st *layer.Stack) error {
		st.AddLayer(name, img, true)
		return nil
	})
}

func cmdSave(r *REPL, _ context.Context, args []string) error {
	path := strings.Join(args, " ")
	if err := SaveImage(path, r.flattened()); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	fmt.Fprintf(r.out, "Saved to %s\n", path)
	return nil
}

func cmdSaveDoc(r *REPL, _ context.Context, args []string) error {
	dir := strings.Join(args, " ")
	if err := project.Save(dir, r.name, r.sess.Snapshot()); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Saved document to %s\n", dir)
	return nil
}

func cmdLoadDoc(r *REPL, _ context.Context, args []string) error {
	dir, err := pathArg(args, true)
	if err != nil {
		return fmt.Errorf("load cancelled: %w", err)
	}
	return r.loadProject(dir)
}

func cmdSelect(r *REPL, _ context.Context, args []string) error {
	i, err := r.layerIndex(args)
	if err != nil {
		return err
	}
	return r.sess.SetActive(i)
}

func cmdAdd(r *REPL, _ context.Context, args []string) error {
	name := strings.Join(args, " ")
	if name == "" {
		name = fmt.Sprintf("Layer %d", len(r.sess.Layers())+1)
	}
	return r.edit(session.Structure, func(st *layer.Stack) error {
		st.AddLayer(name, nil, true)
		return nil
	})
}

func cmdOpacity(r *REPL, _ context.Context, args []string) error {
	v, err := parsePercent(args[0])
	if err != nil {
		return err
	}
	return r.edit(session.LayerAttrs, func(st *layer.Stack) error { return st.SetOpacity(st.ActiveIndex(), v) })
}

func cmdMode(r *REPL, _ context.Context, args []string) error {
	m, err := parseBlendMode(args)
	if err != nil {
		return err
	}
	return r.edit(session.LayerAttrs, func(st *layer.Stack) error { return st.SetBlendMode(st.ActiveIndex(), m) })
}

func cmdVisible(on bool) func(*REPL, context.Context, []string) error {
	return func(r *REPL, _ context.Context, args []string) error {
		i, err := r.layerIndex(args)
		if err != nil {
			return err
		}
		return r.edit(session.LayerAttrs, func(st *layer.Stack) error { return st.SetVisible(i, on) })
	}
}

func cmdRename(r *REPL, _ context.Context, args []string) error {
	name := strings.Join(args, " ")
	return r.edit(session.LayerAttrs, func(st *layer.Stack) error { return st.Rename(st.ActiveIndex(), name) })
}

func cmdFilter(r *REPL, _ context.Context, args []string) error {
	name, fn, region, err := r.buildFilter(args)
	if err != nil {
		return err
	}
	if err := r.sess.Apply(session.Transform(fn), region); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Applied %s\n", name)
	return nil
}

// cmdPreview opens a preview transaction, shows the result and asks
// whether to keep it. Anything but yes discards it.
func cmdPreview(r *REPL, ctx context.Context, args []string) error {
	name, fn, region, err := r.buildFilter(args)
	if err != nil {
		return err
	}
	p, err := r.sess.BeginPreview()
	if err != nil {
		return err
	}
	if err := p.Update(session.Transform(fn), region); err != nil {
		_ = p.Cancel()
		return err
	}
	if r.preview {
		if err := r.show(ctx); err != nil {
			fmt.Fprintf(r.out, "preview unavailable: %v\n", err)
		}
	}
	answer, _ := r.prompt(fmt.Sprintf("Keep %s? (y/N): ", name))
	if keep, _ := parseBoolLikeToString(answer); keep == "true" {
		fmt.Fprintf(r.out, "Applied %s\n", name)
		return p.Confirm()
	}
	fmt.Fprintln(r.out, "Discarded")
	return p.Cancel()
}

func cmdUndo(r *REPL, _ context.Context, _ []string) error {
	if !r.sess.Undo() {
		fmt.Fprintln(r.out, "Nothing to undo")
	}
	return nil
}

func cmdRedo(r *REPL, _ context.Context, _ []string) error {
	if !r.sess.Redo() {
		fmt.Fprintln(r.out, "Nothing to redo")
	}
	return nil
}

func cmdThumb(r *REPL, _ context.Context, args []string) error {
	i, err := r.layerIndex(args)
	if err != nil {
		return err
	}
	size := 128
	if len(args) > 1 {
		if size, err = strconv.Atoi(args[1]); err != nil || size <= 0 {
			return fmt.Errorf("invalid thumbnail size %q", args[1])
		}
	}
	img, err := r.sess.Thumbnail(i, size)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, imageInfo(img, ""))
	if !r.preview {
		return nil
	}
	return PreviewImage(r.out, img, "png")
}

func cmdAutoPreview(r *REPL, _ context.Context, args []string) error {
	on, err := parseBoolLikeToString(args[0])
	if err != nil {
		return err
	}
	r.preview = on == "true"
	return nil
}
