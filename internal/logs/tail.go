package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	backwardBlock = 8 * 1024
	pollEvery     = 200 * time.Millisecond
)

type TailOptions struct {
	// Offset < 0 asks for the last Limit lines.
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

type TailResult struct {
	Lines []string
	// Offset is the byte position to pass to the next call.
	Offset int64
}

// Tail reads lines from path according to opts. A missing file yields an
// empty result at offset 0.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		result.Lines, err = lastLines(file, info.Size(), opts.Limit)
		result.Offset = info.Size()
	} else {
		start := opts.Offset
		if start > info.Size() {
			// Truncated or rotated: restart from the beginning.
			start = 0
		}
		result.Lines, result.Offset, err = readFrom(file, start)
	}
	if err != nil || len(result.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, err
	}
	return follow(ctx, file, result.Offset, opts.Wait)
}

// lastLines scans backwards in fixed blocks until limit newlines are seen.
func lastLines(file *os.File, size int64, limit int) ([]string, error) {
	if limit <= 0 || size == 0 {
		return nil, nil
	}
	var buf []byte
	pos := size
	for pos > 0 && bytes.Count(buf, []byte{'\n'}) <= limit {
		n := min(int64(backwardBlock), pos)
		pos -= n
		block := make([]byte, n)
		if _, err := file.ReadAt(block, pos); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read log file: %w", err)
		}
		buf = append(block, buf...)
	}
	lines := splitLines(buf)
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}

func readFrom(file *os.File, offset int64) ([]string, int64, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReader(file)
	var lines []string
	pos := offset
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// A partial trailing line is left for the next read.
			return lines, pos, nil
		}
		if err != nil {
			return lines, pos, fmt.Errorf("read log file: %w", err)
		}
		pos += int64(len(line))
		lines = append(lines, trimEOL(line))
	}
}

func follow(ctx context.Context, file *os.File, offset int64, wait time.Duration) (TailResult, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-timer.C:
			return TailResult{Offset: offset}, nil
		case <-ticker.C:
		}
		lines, next, err := readFrom(file, offset)
		if err != nil || len(lines) > 0 {
			return TailResult{Lines: lines, Offset: next}, err
		}
	}
}

func splitLines(buf []byte) []string {
	buf = bytes.TrimRight(buf, "\n")
	if len(buf) == 0 {
		return nil
	}
	parts := bytes.Split(buf, []byte{'\n'})
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		lines = append(lines, trimEOL(string(p)))
	}
	return lines
}

func trimEOL(line string) string {
	return strings.TrimRight(line, "\r\n")
}
