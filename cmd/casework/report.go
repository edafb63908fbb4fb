package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"casework/internal/daemonctl"
)

// Severity values carried by daemonctl.StatusLine.
const (
	severityOK    = "ok"
	severityWarn  = "warn"
	severityError = "error"
	severityInfo  = "info"
)

const checkLabelWidth = 20

var severityColors = map[string]text.Color{
	severityOK:    text.FgGreen,
	severityWarn:  text.FgYellow,
	severityError: text.FgRed,
	severityInfo:  text.FgBlue,
}

func normalizeSeverity(raw string) string {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case severityOK, severityWarn, severityError:
		return s
	default:
		return severityInfo
	}
}

// report prints status checks grouped under section headings, colored by
// severity when writing to a terminal.
type report struct {
	out   io.Writer
	color bool
}

func newReport(out io.Writer) *report {
	return &report{out: out, color: isTerminal(out)}
}

func (r *report) section(title string, checks []daemonctl.StatusLine) {
	r.heading(title)
	for _, check := range checks {
		r.check(check)
	}
	fmt.Fprintln(r.out)
}

func (r *report) heading(title string) {
	title = strings.TrimSpace(title)
	fmt.Fprintln(r.out, r.paint(severityInfo, title))
	fmt.Fprintln(r.out, r.paint(severityInfo, strings.Repeat("=", len(title))))
}

func (r *report) check(line daemonctl.StatusLine) {
	fmt.Fprintln(r.out, r.paint(normalizeSeverity(line.Severity), formatCheck(line)))
}

func (r *report) paint(severity, s string) string {
	if !r.color {
		return s
	}
	return severityColors[severity].Sprint(s)
}

// formatCheck lays a check out as severity, label, then detail.
func formatCheck(line daemonctl.StatusLine) string {
	severity := strings.ToUpper(normalizeSeverity(line.Severity))
	out := fmt.Sprintf("  %-5s %-*s", severity, checkLabelWidth, line.Label)
	if detail := strings.TrimSpace(line.Detail); detail != "" {
		out += " " + detail
	}
	return strings.TrimRight(out, " ")
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
