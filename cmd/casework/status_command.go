package main

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"casework/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, snap)
			}
			renderStatus(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(stdout io.Writer, snap *daemonctl.Snapshot) {
	r := newReport(stdout)

	system := snap.SystemChecks
	if current := snap.Work.Current; current != nil {
		system = append(slices.Clip(system), daemonctl.StatusLine{
			Label:    "Current task",
			Severity: severityInfo,
			Detail:   fmt.Sprintf("%s %s (%s)", current.Kind, current.ID, orDash(current.CaseID)),
		})
	}
	r.section("System Status", system)
	r.section("Dependencies", dependencyChecks(snap))
	r.section("Paths", snap.Paths)

	r.heading("Recent Tasks")
	rows := taskCountRows(snap.TaskCounts)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "No task history")
		return
	}
	fmt.Fprintln(stdout, newGrid("State", "Count").alignRight(1).appendRows(rows))
}

func taskCountRows(counts map[string]int) [][]string {
	states := make([]string, 0, len(counts))
	for state, count := range counts {
		if count > 0 {
			states = append(states, state)
		}
	}
	sort.Strings(states)
	rows := make([][]string, 0, len(states))
	for _, state := range states {
		rows = append(rows, []string{stateLabel(state), strconv.Itoa(counts[state])})
	}
	return rows
}

// dependencyChecks lists the dependency summary, one check per dependency,
// and a closing line naming whatever is missing.
func dependencyChecks(snap *daemonctl.Snapshot) []daemonctl.StatusLine {
	summary := snap.DependencySummary
	checks := make([]daemonctl.StatusLine, 0, len(snap.Dependencies)+2)
	checks = append(checks, daemonctl.StatusLine{Label: "Summary", Severity: summary.Severity, Detail: summary.Detail})

	var missing []string
	for _, dep := range snap.Dependencies {
		severity, ok := snap.Severities[dep.Name]
		if !ok {
			severity = daemonctl.DependencySeverity(dep)
		}
		detail := strings.TrimSpace(dep.Detail)
		switch {
		case dep.Available && dep.Command != "":
			detail = "Ready (command: " + dep.Command + ")"
		case dep.Available:
			detail = "Ready"
		case detail == "":
			detail = "not available"
		}
		if !dep.Available {
			missing = append(missing, dep.Name)
		}
		checks = append(checks, daemonctl.StatusLine{Label: dep.Name, Severity: severity, Detail: detail})
	}
	if len(missing) > 0 {
		checks = append(checks, daemonctl.StatusLine{Label: "Missing dependencies", Severity: severityWarn, Detail: strings.Join(missing, ", ")})
	}
	return checks
}
