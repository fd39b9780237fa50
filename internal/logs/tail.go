package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

const maxLineBytes = 1024 * 1024

// Request selects which part of the log to read. A negative Offset reads
// the last Limit lines; otherwise reading starts at Offset. Wait bounds how
// long Tail blocks for new lines when none are available.
type Request struct {
	Offset int64
	Limit  int
	Wait   time.Duration
}

// Chunk is a batch of complete lines and the offset following them.
type Chunk struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from path according to req.
func Tail(ctx context.Context, path string, req Request) (Chunk, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Chunk{}, nil
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Chunk{}, fmt.Errorf("log path %q is a directory", path)
	}

	var chunk Chunk
	if req.Offset < 0 {
		chunk, err = lastLines(path, req.Limit)
	} else {
		offset := req.Offset
		if offset > info.Size() {
			// Rotated or truncated underneath the caller.
			offset = 0
		}
		chunk, err = readFrom(path, offset)
	}
	if err != nil || len(chunk.Lines) > 0 || req.Wait <= 0 {
		return chunk, err
	}
	return waitForLines(ctx, path, chunk.Offset, req.Wait)
}

func lastLines(path string, limit int) (Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return Chunk{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return Chunk{}, fmt.Errorf("seek log file: %w", err)
		}
		return Chunk{Offset: end}, nil
	}

	ring := make([]string, 0, limit)
	next := 0
	offset, err := scanLines(file, func(line string) {
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[next] = line
		next = (next + 1) % limit
	})
	if err != nil {
		return Chunk{}, err
	}
	lines := make([]string, 0, len(ring))
	lines = append(lines, ring[next:]...)
	lines = append(lines, ring[:next]...)
	return Chunk{Lines: lines, Offset: offset}, nil
}

func readFrom(path string, offset int64) (Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	consumed, err := scanLines(file, func(line string) { lines = append(lines, line) })
	if err != nil {
		return Chunk{Offset: offset}, err
	}
	return Chunk{Lines: lines, Offset: offset + consumed}, nil
}

// scanLines emits each newline-terminated line and returns the number of
// bytes consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, emit func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadSlice('\n')
		if err == nil {
			consumed += int64(len(line))
			emit(trimLineEnding(line))
			continue
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			// Oversized line; keep reading until its newline.
			rest, restErr := reader.ReadBytes('\n')
			if restErr != nil {
				if errors.Is(restErr, io.EOF) {
					return consumed, nil
				}
				return consumed, fmt.Errorf("read log file: %w", restErr)
			}
			full := append(append([]byte(nil), line...), rest...)
			consumed += int64(len(full))
			if len(full) > maxLineBytes {
				full = full[:maxLineBytes]
			}
			emit(trimLineEnding(full))
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}

func trimLineEnding(line []byte) string {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return string(line[:n])
}

func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration) (Chunk, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("watch log file: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("watch log file: %w", err)
	}
	// Lines may have landed before the watch was registered.
	if chunk, err := readFrom(path, offset); err != nil || len(chunk.Lines) > 0 {
		return chunk, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return Chunk{Offset: offset}, ctx.Err()
		case <-timer.C:
			return readFrom(path, offset)
		case err, ok := <-watcher.Errors:
			if !ok {
				return readFrom(path, offset)
			}
			return Chunk{Offset: offset}, fmt.Errorf("watch log file: %w", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return readFrom(path, offset)
			}
			if !event.Has(fsnotify.Write) {
				continue
			}
			chunk, err := readFrom(path, offset)
			if err != nil || len(chunk.Lines) > 0 {
				return chunk, err
			}
		}
	}
}
