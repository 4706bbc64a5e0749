package cli

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Fepozopo/layerkit/pkg/filters"
)

// selectFilterWithFzf lists the filter registry in fzf and returns the chosen name.
func selectFilterWithFzf(commands []filters.CommandSpec) (string, error) {
	var b strings.Builder
	for _, c := range commands {
		fmt.Fprintf(&b, "%s: %s\n", c.Name, c.Description)
	}
	cmd := exec.Command("fzf", "--prompt=Filter> ")
	cmd.Stdin = strings.NewReader(b.String())
	cmd.Stderr = os.Stderr
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("error running fzf: %w", err)
	}
	name, _, _ := strings.Cut(strings.TrimSpace(out.String()), ":")
	if name = strings.TrimSpace(name); name == "" {
		return "", fmt.Errorf("no filter selected")
	}
	return name, nil
}

// fzfPreviewCommand picks the renderer fzf uses for its preview pane,
// following the same terminal detection as the inline preview.
func fzfPreviewCommand() string {
	const chafa = "chafa --fill=block --symbols=block -s 80x40 {} 2>/dev/null"
	switch {
	case isKitty():
		return `printf "\x1b_Ga=d\x1b\\"; kitty +kitten icat --silent {} 2>/dev/null || ` + chafa
	case isInlineImageCapable():
		return "imgcat {} 2>/dev/null || " + chafa
	case isSixelCapable():
		return "img2sixel {} 2>/dev/null || " + chafa
	}
	return chafa
}

// selectFileWithFzf runs find piped into fzf under startDir. With dirs set
// it lists project directories (those holding a manifest) instead of images.
func selectFileWithFzf(startDir string, dirs bool) (string, error) {
	find := fmt.Sprintf(
		"find %s -type f \\( -iname '*.png' -o -iname '*.jpg' -o -iname '*.jpeg' -o -iname '*.gif' -o -iname '*.bmp' -o -iname '*.tif' -o -iname '*.tiff' -o -iname '*.webp' \\)",
		strconv.Quote(startDir))
	preview := fmt.Sprintf("--preview=%q --preview-window='right:60%%'", fzfPreviewCommand())
	if dirs {
		find = fmt.Sprintf("find %s -type f -name document.yaml -exec dirname {} \\;", strconv.Quote(startDir))
		preview = ""
	}
	cmd := exec.Command("bash", "-lc", find+" | fzf --height 100% --border --prompt='Files> ' --ansi "+preview)
	cmd.Stderr = os.Stderr
	var out bytes.Buffer
	cmd.Stdout = &out
	err := cmd.Run()
	clearKittyImages()
	if err != nil {
		return "", fmt.Errorf("error running fzf for files: %w", err)
	}
	sel := strings.TrimSpace(out.String())
	if sel == "" {
		return "", fmt.Errorf("no file selected")
	}
	return sel, nil
}

// clearKittyImages removes images the fzf previewer left behind. Terminals
// without the kitty graphics protocol ignore the sequence.
func clearKittyImages() {
	if isKitty() {
		fmt.Fprint(os.Stdout, "\x1b_Ga=d\x1b\\")
	}
}
