package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"casework/internal/ipc"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue work on the daemon",
	}
	cmd.AddCommand(newTransferEnqueueCommand(ctx, "download", "Copy a file or directory from the remote share into the workspace"))
	cmd.AddCommand(newTransferEnqueueCommand(ctx, "upload", "Copy a file or directory from the workspace to the remote share"))
	cmd.AddCommand(newRefreshEnqueueCommand(ctx))
	cmd.AddCommand(newAutomationEnqueueCommand(ctx))
	return cmd
}

func newTransferEnqueueCommand(ctx *commandContext, kind, short string) *cobra.Command {
	var caseID, dest string
	cmd := &cobra.Command{
		Use:   kind + " <path>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			if dest != "" {
				if dest, err = filepath.Abs(dest); err != nil {
					return fmt.Errorf("resolve destination: %w", err)
				}
			}
			return submit(ctx, cmd, ipc.EnqueueRequest{
				Kind:       kind,
				CaseID:     strings.TrimSpace(caseID),
				SourcePath: source,
				DestPath:   dest,
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "Owning case id (destination is derived from the case trees)")
	cmd.Flags().StringVar(&dest, "dest", "", "Explicit destination path")
	return cmd
}

func newRefreshEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <case-id>",
		Short: "Rescan both trees of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(ctx, cmd, ipc.EnqueueRequest{Kind: "refresh", CaseID: strings.TrimSpace(args[0])})
		},
	}
}

func newAutomationEnqueueCommand(ctx *commandContext) *cobra.Command {
	var caseID string
	var options []string
	cmd := &cobra.Command{
		Use:   "automation <name> <target>",
		Short: "Run an automation against a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := filepath.Abs(args[1])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[1], err)
			}
			overrides, err := parseOptions(options)
			if err != nil {
				return err
			}
			return submit(ctx, cmd, ipc.EnqueueRequest{
				Kind:       "automation",
				CaseID:     strings.TrimSpace(caseID),
				SourcePath: target,
				Automation: strings.TrimSpace(args[0]),
				Options:    overrides,
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "Owning case id")
	cmd.Flags().StringArrayVar(&options, "option", nil, "Option override as key=value (repeatable)")
	return cmd
}

func parseOptions(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q (expected key=value)", raw)
		}
		out[key] = value
	}
	return out, nil
}

func submit(ctx *commandContext, cmd *cobra.Command, req ipc.EnqueueRequest) error {
	return ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.Enqueue(req)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, id := range resp.TaskIDs {
			fmt.Fprintf(out, "Queued %s\n", id)
		}
		return nil
	})
}
