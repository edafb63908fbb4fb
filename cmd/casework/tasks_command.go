package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"casework/internal/ipc"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	var failedOnly bool
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List recent tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Tasks(limit)
				if err != nil {
					return err
				}
				tasks := resp.Tasks
				if failedOnly {
					tasks = filterFailed(tasks)
				}
				if jsonOut {
					return writeJSON(cmd, tasks)
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				fmt.Fprintln(out, newGrid("ID", "Kind", "Case", "State", "Enqueued", "Duration", "Error").alignRight(5).appendRows(taskRows(tasks)))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of tasks")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Show failed tasks only")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func filterFailed(tasks []ipc.Task) []ipc.Task {
	out := tasks[:0:0]
	for _, task := range tasks {
		if task.State == "failed" {
			out = append(out, task)
		}
	}
	return out
}

func taskRows(tasks []ipc.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		errText := task.ErrorMessage
		if task.ErrorKind != "" {
			errText = task.ErrorKind + ": " + errText
		}
		kind := task.Kind
		if task.AutomationName != "" {
			kind += " (" + task.AutomationName + ")"
		}
		rows = append(rows, []string{
			truncate(task.ID, 12),
			kind,
			orDash(task.CaseID),
			stateLabel(task.State),
			formatAge(task.EnqueuedAt),
			formatDuration(task.StartedAt, task.FinishedAt),
			truncate(orDash(errText), 60),
		})
	}
	return rows
}
