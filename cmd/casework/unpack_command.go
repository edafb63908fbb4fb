package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"casework/internal/services"
	"casework/internal/unpack"
)

func newUnpackCommand(ctx *commandContext) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "unpack <archive>",
		Short: "Unpack an archive next to itself using the configured chains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			archive, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			pipeline := unpack.New(unpack.OptionsFromConfig(cfg), services.CommandExecutor{}, ctx.localLogger(cmd, verbose))
			if !pipeline.Supports(archive) {
				return fmt.Errorf("%s is not a recognised archive", archive)
			}
			result, err := pipeline.Unpack(cmd.Context(), archive)
			if err != nil {
				if details := services.Details(err); details.Stderr != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), details.Stderr)
				}
				return err
			}
			renderUnpackResult(cmd.OutOrStdout(), result)
			if n := result.NestedFailures(); n > 0 {
				return fmt.Errorf("%d nested bundle(s) failed to unpack", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log tool invocations")
	return cmd
}

func renderUnpackResult(out io.Writer, result unpack.Result) {
	if result.Skipped {
		fmt.Fprintf(out, "Skipped %s: %s already exists\n", filepath.Base(result.Source), result.Dest)
		return
	}
	fmt.Fprintf(out, "Unpacked %s (%s) into %s\n", filepath.Base(result.Source), result.Chain, result.Dest)
	if len(result.Nested) == 0 {
		return
	}
	rows := make([][]string, 0, len(result.Nested))
	for _, nested := range result.Nested {
		outcome := "ok"
		switch {
		case nested.Err != nil:
			outcome = nested.Err.Error()
		case nested.Skipped:
			outcome = "skipped"
		}
		rows = append(rows, []string{filepath.Base(nested.Source), nested.Chain.String(), truncate(outcome, 60)})
	}
	fmt.Fprintln(out, newGrid("Bundle", "Chain", "Outcome").appendRows(rows))
}
