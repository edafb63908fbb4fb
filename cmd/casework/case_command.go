package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"casework/internal/config"
	"casework/internal/store"
)

func newCaseCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Manage cases and inspect their file records",
	}
	cmd.AddCommand(newCaseAddCommand(ctx))
	cmd.AddCommand(newCaseListCommand(ctx))
	cmd.AddCommand(newCaseRemoveCommand(ctx))
	cmd.AddCommand(newCaseFilesCommand(ctx))
	cmd.AddCommand(newCaseNoteCommand(ctx))
	cmd.AddCommand(newFavoritesCommand(ctx))
	return cmd
}

func newCaseAddCommand(ctx *commandContext) *cobra.Command {
	var remote, local string
	cmd := &cobra.Command{
		Use:   "add <case-id>",
		Short: "Register a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				id := strings.TrimSpace(args[0])
				if id == "" || strings.ContainsAny(id, `/\`) {
					return fmt.Errorf("invalid case id %q", args[0])
				}
				c := store.Case{ID: id, RemotePath: cfg.CaseRemoteDir(id), LocalPath: cfg.CaseLocalDir(id)}
				var err error
				if remote != "" {
					if c.RemotePath, err = config.ExpandPath(remote); err != nil {
						return fmt.Errorf("resolve remote path: %w", err)
					}
				}
				if local != "" {
					if c.LocalPath, err = config.ExpandPath(local); err != nil {
						return fmt.Errorf("resolve local path: %w", err)
					}
				}
				if err := os.MkdirAll(c.LocalPath, 0o755); err != nil {
					return fmt.Errorf("create local tree: %w", err)
				}
				if err := st.PutCase(cmd.Context(), c); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Case %s registered\n", c.ID)
				fmt.Fprintf(out, "  remote: %s\n", c.RemotePath)
				fmt.Fprintf(out, "  local:  %s\n", c.LocalPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "Remote tree (default <remote_root>/<case-id>)")
	cmd.Flags().StringVar(&local, "local", "", "Local tree (default <workspace_dir>/<case-id>)")
	return cmd
}

func newCaseListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				cases, err := st.ListCases(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, cases)
				}
				out := cmd.OutOrStdout()
				if len(cases) == 0 {
					fmt.Fprintln(out, "No cases registered")
					return nil
				}
				rows := make([][]string, 0, len(cases))
				for _, c := range cases {
					files, lastPoll := "-", "-"
					if state, ok, err := st.GetSyncState(cmd.Context(), c.ID); err == nil && ok {
						files = strconv.Itoa(state.LastFileCount)
						lastPoll = formatAge(state.LastPollTime)
					}
					rows = append(rows, []string{c.ID, c.RemotePath, c.LocalPath, files, lastPoll})
				}
				fmt.Fprintln(out, newGrid("Case", "Remote", "Local", "Files", "Last poll").alignRight(3).appendRows(rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newCaseRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <case-id>",
		Short: "Forget a case and its records (files are left in place)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				c, err := st.GetCase(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if c == nil {
					return fmt.Errorf("case %s not found", args[0])
				}
				if err := st.DeleteCase(cmd.Context(), c.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Case %s removed\n", c.ID)
				return nil
			})
		},
	}
}

func newCaseFilesCommand(ctx *commandContext) *cobra.Command {
	var location string
	var favoritesOnly bool
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "files <case-id>",
		Short: "List the stored file records of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var loc store.Location
			if location != "" {
				parsed, err := store.ParseLocation(location)
				if err != nil {
					return err
				}
				loc = parsed
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				records, err := st.ListFileRecords(cmd.Context(), args[0], loc)
				if err != nil {
					return err
				}
				if favoritesOnly {
					filtered := records[:0]
					for _, rec := range records {
						if rec.Favorite {
							filtered = append(filtered, rec)
						}
					}
					records = filtered
				}
				if jsonOut {
					return writeJSON(cmd, records)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintf(out, "No records for case %s (run `casework enqueue refresh %s`)\n", args[0], args[0])
					return nil
				}
				fmt.Fprintln(out, renderRecords(records))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "Filter by location (remote or local)")
	cmd.Flags().BoolVar(&favoritesOnly, "favorites", false, "Show favorite files only")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderRecords(records []store.FileRecord) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		size := formatSize(rec.Size)
		if rec.IsDir() {
			size = "-"
		}
		name := rec.Path
		if rec.Favorite {
			name += " *"
		}
		rows = append(rows, []string{
			string(rec.Location),
			strconv.Itoa(rec.DepthIndex),
			name,
			rec.Type,
			size,
			formatAge(rec.ModifiedAt),
			truncate(orDash(rec.Notes), 40),
		})
	}
	return newGrid("Location", "Depth", "Path", "Type", "Size", "Modified", "Notes").alignRight(1, 4).appendRows(rows).String()
}

func newCaseNoteCommand(ctx *commandContext) *cobra.Command {
	var location string
	cmd := &cobra.Command{
		Use:   "note <case-id> <path> <note>",
		Short: "Attach a note to a file record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := store.ParseLocation(location)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				rel := filepath.ToSlash(filepath.Clean(args[1]))
				rec, err := st.GetFileRecord(cmd.Context(), args[0], rel, loc)
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("no %s record %s in case %s", loc, rel, args[0])
				}
				if err := st.SetNotes(cmd.Context(), args[0], rel, loc, args[2]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Note saved on %s\n", rel)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", string(store.LocationLocal), "Record location (remote or local)")
	return cmd
}

func newFavoritesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "favorites",
		Short: "Show the newest copy of each favorite file name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				favorites, err := st.ListFavorites(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(favorites) == 0 {
					fmt.Fprintln(out, "No favorites recorded")
					return nil
				}
				rows := make([][]string, 0, len(favorites))
				for _, fav := range favorites {
					rows = append(rows, []string{fav.Name, fav.CaseID, string(fav.Location), fav.Path, formatAge(fav.ModifiedAt)})
				}
				fmt.Fprintln(out, newGrid("Name", "Case", "Location", "Path", "Modified").appendRows(rows))
				return nil
			})
		},
	}
}
