package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Fepozopo/layerkit/pkg/filters"
)

// parseBoolLikeToString accepts common truthy/falsy forms and returns "true"/"false".
func parseBoolLikeToString(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return "true", nil
	case "0", "f", "false", "n", "no", "off":
		return "false", nil
	default:
		return "", fmt.Errorf("invalid boolean: %q", s)
	}
}

// parsePercent accepts "35%" as 0.35 and a bare number as-is.
func parsePercent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if raw, ok := strings.CutSuffix(s, "%"); ok {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid percent value: %q", s)
		}
		return f / 100, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %q", s)
	}
	return f, nil
}

// filterHelp renders one filter's usage and argument list.
func filterHelp(c filters.CommandSpec) string {
	var sb strings.Builder
	sb.WriteString(c.Usage)
	if c.Description != "" {
		sb.WriteString("  ")
		sb.WriteString(c.Description)
	}
	for _, a := range c.Args {
		req := "optional"
		if a.Required {
			req = "required"
		}
		fmt.Fprintf(&sb, "\n    %s (%s, %s)", a.Name, a.Type, req)
		if a.Default != "" {
			fmt.Fprintf(&sb, " default %s", a.Default)
		}
		if a.Description != "" {
			sb.WriteString(": " + a.Description)
		}
	}
	return sb.String()
}

// normalizeFilterArgs rewrites friendly boolean spellings ("yes", "on")
// into the forms filters.Build parses. Other arguments pass through.
func normalizeFilterArgs(c filters.CommandSpec, argv []string) ([]string, error) {
	out := make([]string, len(argv))
	for i, v := range argv {
		out[i] = v
		if i >= len(c.Args) || c.Args[i].Type != "bool" {
			continue
		}
		b, err := parseBoolLikeToString(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Args[i].Name, err)
		}
		out[i] = b
	}
	return out, nil
}
