package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"casework/internal/ipc"
)

func newAutomationsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "automations",
		Aliases: []string{"automation"},
		Short:   "List and toggle discovered automations",
	}
	cmd.AddCommand(newAutomationsListCommand(ctx))
	cmd.AddCommand(newAutomationToggleCommand(ctx, "enable", true))
	cmd.AddCommand(newAutomationToggleCommand(ctx, "disable", false))
	return cmd
}

func newAutomationsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List admitted automations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Automations()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Automations)
				}
				out := cmd.OutOrStdout()
				if len(resp.Automations) == 0 {
					fmt.Fprintln(out, "No automations discovered")
					return nil
				}
				rows := make([][]string, 0, len(resp.Automations))
				for _, a := range resp.Automations {
					rows = append(rows, []string{
						a.Name,
						stateLabel(a.Kind.String()),
						a.Version,
						yesNo(a.Enabled),
						yesNo(a.DownloadFirst),
						orDash(strings.Join(a.Extensions, ",")),
						truncate(orDash(a.Description), 48),
					})
				}
				fmt.Fprintln(out, newGrid("Name", "Kind", "Version", "Enabled", "Download first", "Extensions", "Description").appendRows(rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newAutomationToggleCommand(ctx *commandContext, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <name>",
		Short: stateLabel(verb) + " an automation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetAutomation(args[0], enabled)
				if err != nil {
					return err
				}
				state := "disabled"
				if resp.Enabled {
					state = "enabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Automation %s %s\n", resp.Name, state)
				return nil
			})
		},
	}
}
