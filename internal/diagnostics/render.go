package diagnostics

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// RenderOptions controls report formatting.
type RenderOptions struct {
	// Color enables ANSI severity coloring (ttys only, the caller decides).
	Color bool
}

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiReset  = "\x1b[0m"
)

func severityColor(s Severity) string {
	switch s {
	case SeverityError:
		return ansiRed
	case SeverityWarning:
		return ansiYellow
	default:
		return ansiCyan
	}
}

// Render writes a human-readable report of the diagnostics, one block per
// finding, with offending ranges listed underneath with humanized sizes.
func Render(w io.Writer, diags []Diagnostic, opts RenderOptions) error {
	for _, d := range diags {
		head := fmt.Sprintf("%s[%s]", d.Severity, d.Kind)
		if opts.Color {
			head = severityColor(d.Severity) + head + ansiReset
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", head, d.Message); err != nil {
			return err
		}
		for i, r := range d.Ranges {
			label := "region"
			if i < len(d.Labels) && d.Labels[i] != "" {
				label = d.Labels[i]
			}
			if _, err := fmt.Fprintf(w, "    %-18s %s (%s)\n",
				label, r, humanize.IBytes(r.Size)); err != nil {
				return err
			}
		}
	}
	return nil
}

// RenderJSON writes the diagnostics as a JSON array for machine consumers.
func RenderJSON(w io.Writer, diags []Diagnostic) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if diags == nil {
		diags = []Diagnostic{}
	}
	return enc.Encode(diags)
}
