package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"narrator/internal/logging"
)

const maxLineBytes = 1024 * 1024

// Entry is one parsed log record.
type Entry struct {
	Time      string         `json:"ts"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	JobID     string         `json:"job_id,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Component string         `json:"component,omitempty"`
	EventType string         `json:"event_type,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Filter selects entries. Empty fields match everything.
type Filter struct {
	JobID string
	Stage string
	// MinLevel drops entries below debug, info, warn or error.
	MinLevel string
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Match reports whether e passes the filter. JobID matches by prefix so short
// ids from `narrator jobs list` work.
func (f Filter) Match(e Entry) bool {
	if f.JobID != "" && (e.JobID == "" || !strings.HasPrefix(e.JobID, f.JobID)) {
		return false
	}
	if f.Stage != "" && !strings.EqualFold(e.Stage, f.Stage) {
		return false
	}
	if floor, ok := levelRank[strings.ToLower(f.MinLevel)]; ok {
		if rank, known := levelRank[e.Level]; known && rank < floor {
			return false
		}
	}
	return true
}

// Parse decodes one JSON log line. Lines that are not JSON objects are
// rejected.
func Parse(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Entry{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, false
	}
	take := func(key string) string {
		v, _ := raw[key].(string)
		delete(raw, key)
		return v
	}
	e := Entry{
		Time:      take("ts"),
		Level:     take("level"),
		Message:   take("msg"),
		JobID:     take(logging.FieldJobID),
		Stage:     take(logging.FieldStage),
		Component: take(logging.FieldComponent),
		EventType: take(logging.FieldEventType),
	}
	delete(raw, "source")
	if len(raw) > 0 {
		e.Fields = raw
	}
	return e, true
}

// Last returns the newest limit entries matching f and the file size they were
// read up to. A missing file yields no entries.
func Last(path string, limit int, f Filter) ([]Entry, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, offset, nil
	}

	ring := make([]Entry, limit)
	count, idx := 0, 0
	offset, err := scan(file, func(e Entry) {
		if !f.Match(e) {
			return
		}
		ring[idx] = e
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	entries := make([]Entry, count)
	if count == limit {
		for i := range count {
			entries[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(entries, ring[:count])
	}
	return entries, offset, nil
}

// Follow reports entries appended after offset until ctx ends. A truncated
// or rotated file is read again from the start.
func Follow(ctx context.Context, path string, offset int64, f Filter, poll time.Duration, fn func(Entry)) error {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		next, err := readFrom(path, offset, func(e Entry) {
			if f.Match(e) {
				fn(e)
			}
		})
		if err != nil {
			return err
		}
		offset = next
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, fn func(Entry)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scan(file, fn)
	if err != nil {
		return offset, err
	}
	return offset + read, nil
}

// scan parses complete lines from r and returns the bytes consumed. A trailing
// partial line is left for the next read.
func scan(r io.Reader, fn func(Entry)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			continue
		}
		if e, ok := Parse(line); ok {
			fn(e)
		}
	}
}
