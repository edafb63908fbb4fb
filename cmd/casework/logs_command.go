package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"casework/internal/ipc"
	"casework/internal/logs"
)

type tailFunc func(context.Context, ipc.LogTailRequest) (*ipc.LogTailResponse, error)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var match string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		Long: "Read the daemon log through the running daemon, or directly from\n" +
			"the configured log directory when the daemon is not running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			client, dialErr := ctx.dialClient()
			var tail tailFunc
			if dialErr == nil {
				defer client.Close()
				tail = func(_ context.Context, req ipc.LogTailRequest) (*ipc.LogTailResponse, error) {
					return client.LogTail(req)
				}
			} else {
				path := cfg.LogPath()
				if path == "" {
					return errors.New("no log directory configured")
				}
				tail = localTail(path)
			}
			return followLogs(cmd, tail, lines, follow, match)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&match, "match", "", "Only show lines containing this text")
	return cmd
}

func localTail(path string) tailFunc {
	return func(ctx context.Context, req ipc.LogTailRequest) (*ipc.LogTailResponse, error) {
		wait := time.Duration(req.WaitMillis) * time.Millisecond
		if req.Follow && wait > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, wait+500*time.Millisecond)
			defer cancel()
		}
		result, err := logs.Tail(ctx, path, logs.TailOptions{
			Offset: req.Offset,
			Limit:  req.Limit,
			Follow: req.Follow,
			Wait:   wait,
			Match:  req.Match,
		})
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if req.Follow && len(result.Lines) == 0 {
			// Tail returns at once while the file does not exist yet.
			select {
			case <-ctx.Done():
			case <-time.After(250 * time.Millisecond):
			}
		}
		return &ipc.LogTailResponse{Lines: result.Lines, Offset: result.Offset}, nil
	}
}

func followLogs(cmd *cobra.Command, tail tailFunc, lines int, follow bool, match string) error {
	ctx := cmd.Context()
	limit := lines
	if limit < 0 {
		limit = 0
	}
	offset := int64(-1)
	if limit == 0 {
		offset = 0
	}
	printed := false

	for {
		resp, err := tail(ctx, ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Follow:     follow,
			WaitMillis: 1000,
			Match:      match,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return errors.New("log tail response missing")
		}
		for _, line := range resp.Lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
			printed = true
		}
		offset = resp.Offset
		limit = 0
		if !follow {
			if !printed {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}
