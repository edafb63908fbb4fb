package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"casework/internal/scanner"
	"casework/internal/store"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var caseID, location string
	var jsonOut, verbose bool
	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Inventory a directory breadth-first without storing the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			loc, err := store.ParseLocation(location)
			if err != nil {
				return err
			}
			sc := scanner.New(cfg.Favorites.Names, ctx.localLogger(cmd, verbose))
			records, err := sc.Scan(cmd.Context(), scanner.Target{
				CaseID:   strings.TrimSpace(caseID),
				Root:     root,
				Location: loc,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintf(out, "No entries under %s\n", root)
				return nil
			}
			fmt.Fprintln(out, renderRecords(records))
			fmt.Fprintln(out, scanSummary(records))
			return nil
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "Case id stamped on the records")
	cmd.Flags().StringVar(&location, "location", string(store.LocationLocal), "Location stamped on the records (remote or local)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log skipped entries")
	return cmd
}

func scanSummary(records []store.FileRecord) string {
	var files, dirs, favorites int
	var bytes int64
	for _, rec := range records {
		if rec.IsDir() {
			dirs++
			continue
		}
		files++
		bytes += rec.Size
		if rec.Favorite {
			favorites++
		}
	}
	return fmt.Sprintf("%d files (%s), %d directories, %d favorites", files, formatSize(bytes), dirs, favorites)
}
