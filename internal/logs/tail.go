package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const pollInterval = 250 * time.Millisecond

// TailOptions selects which part of the log to return.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Match  string
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads path according to opts. A missing file yields no lines and a
// zero offset.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	opts.Wait = max(opts.Wait, 0)
	keep := matcher(opts.Match)

	if opts.Offset < 0 {
		lines, offset, err := readLast(path, opts.Limit, keep)
		if err != nil {
			return result, err
		}
		result = TailResult{Lines: lines, Offset: offset}
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// Rotated or truncated.
			offset = 0
		}
		lines, next, err := readFrom(path, offset, keep)
		if err != nil {
			return result, err
		}
		result = TailResult{Lines: lines, Offset: next}
	}

	if opts.Follow && opts.Wait > 0 && len(result.Lines) == 0 {
		return waitForLines(ctx, path, result.Offset, opts.Wait, keep)
	}
	return result, nil
}

func matcher(match string) func(string) bool {
	match = strings.TrimSpace(match)
	if match == "" {
		return func(string) bool { return true }
	}
	return func(line string) bool { return strings.Contains(line, match) }
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}

// readLast returns the last limit kept lines and the end-of-file offset.
func readLast(path string, limit int, keep func(string) bool) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, 0, limit)
	start := 0
	scanner := newLineScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !keep(line) {
			continue
		}
		if len(ring) < limit {
			ring = append(ring, line)
			continue
		}
		ring[start] = line
		start = (start + 1) % limit
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	lines := make([]string, 0, len(ring))
	lines = append(lines, ring[start:]...)
	lines = append(lines, ring[:start]...)
	return lines, end, nil
}

// readFrom returns kept lines after offset. A trailing partial line is left
// for the next read.
func readFrom(path string, offset int64, keep func(string) bool) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	next := offset
	for {
		raw, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read log file: %w", err)
		}
		next += int64(len(raw))
		if line := strings.TrimRight(raw, "\r\n"); keep(line) {
			lines = append(lines, line)
		}
	}
	return lines, next, nil
}

func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration, keep func(string) bool) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		lines, next, err := readFrom(path, result.Offset, keep)
		if err != nil {
			return result, err
		}
		result.Offset = next
		if len(lines) > 0 {
			result.Lines = lines
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
