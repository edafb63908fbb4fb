package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"casework/internal/config"
	"casework/internal/events"
	"casework/internal/ipc"
	"casework/internal/poll"
	"casework/internal/services"
	"casework/internal/store"
)

func newPollCommand(ctx *commandContext) *cobra.Command {
	var local, jsonOut, verbose bool
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Check every case for new remote files",
		Long: "Queue an immediate poll pass on the daemon. With --local the pass runs in this\n" +
			"process against the store and the results are printed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !local {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.PollNow()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued poll %s\n", resp.TaskID)
					return nil
				})
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				logger := ctx.localLogger(cmd, verbose)
				poller := poll.NewFromConfig(cfg, st, services.CommandExecutor{}, events.NewBus(logger), logger)
				cases, err := st.ListCases(cmd.Context())
				if err != nil {
					return err
				}
				snap := poller.RunOnce(cmd.Context(), cases)
				if jsonOut {
					return writeJSON(cmd, snap)
				}
				renderPollSnapshot(cmd.OutOrStdout(), snap)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Run the pass in this process instead of the daemon")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON (with --local)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log per-case details")
	return cmd
}

func renderPollSnapshot(out io.Writer, snap poll.Snapshot) {
	if len(snap.Results) == 0 {
		fmt.Fprintln(out, "No cases registered")
		return
	}
	rows := make([][]string, 0, len(snap.Results))
	for _, id := range snap.CaseIDs() {
		r := snap.Results[id]
		status := r.ExternalStatus
		switch {
		case r.ScanErr != "":
			status = "scan error: " + r.ScanErr
		case r.StatusErr != "":
			status = "status error: " + r.StatusErr
		}
		rows = append(rows, []string{id, strconv.Itoa(r.FileCount), strconv.Itoa(r.NewFileDelta), truncate(orDash(status), 60)})
	}
	fmt.Fprintln(out, newGrid("Case", "Files", "New", "Status").alignRight(1, 2).appendRows(rows))
	fmt.Fprintf(out, "%d new file(s) across %d case(s)\n", snap.NewFiles(), len(snap.Results))
}
