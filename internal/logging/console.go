package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders one human-readable line per record:
//
//	2026-01-02T15:04:05Z INFO [1b4e28ba/Acquiring] acquisition: probe ok duration=42.5
//
// Job, stage and component are lifted out of the attributes into the
// header. Attributes bound with WithAttrs are rendered once and reused.
type consoleHandler struct {
	out       *lockedWriter
	level     slog.Leveler
	addSource bool

	jobID     string
	stage     string
	component string
	bound     string
	group     string
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(p)
	return err
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) *consoleHandler {
	return &consoleHandler{out: &lockedWriter{w: w}, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	line := *h
	var attrs strings.Builder
	attrs.WriteString(h.bound)
	record.Attrs(func(attr slog.Attr) bool {
		line.absorb(&attrs, h.group, attr)
		return true
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.UTC().Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(levelLabel(record.Level))
	if subject := consoleSubject(line.jobID, line.stage); subject != "" {
		b.WriteByte(' ')
		b.WriteString(subject)
	}
	b.WriteByte(' ')
	if line.component != "" {
		b.WriteString(line.component)
		b.WriteString(": ")
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString("(no message)")
	}
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteString(attrs.String())
	b.WriteByte('\n')
	return h.out.write([]byte(b.String()))
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	var b strings.Builder
	b.WriteString(h.bound)
	for _, attr := range attrs {
		next.absorb(&b, h.group, attr)
	}
	next.bound = b.String()
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

// absorb either lifts a header field into h or appends " key=value" to b.
func (h *consoleHandler) absorb(b *strings.Builder, prefix string, attr slog.Attr) {
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = joinKey(prefix, attr.Key)
		}
		for _, member := range value.Group() {
			h.absorb(b, inner, member)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	if prefix == "" {
		var slot *string
		switch attr.Key {
		case FieldJobID:
			slot = &h.jobID
		case FieldStage:
			slot = &h.stage
		case FieldComponent:
			slot = &h.component
		}
		if slot != nil {
			if *slot == "" {
				*slot = plainValue(value)
			}
			return
		}
	}
	b.WriteByte(' ')
	b.WriteString(joinKey(prefix, attr.Key))
	b.WriteByte('=')
	b.WriteString(quoteIfNeeded(plainValue(value)))
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
	return v.String()
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

// consoleSubject renders the "[job/stage]" prefix; job ids are shortened to
// their first uuid group.
func consoleSubject(jobID, stage string) string {
	if i := strings.IndexByte(jobID, '-'); i > 0 {
		jobID = jobID[:i]
	}
	switch {
	case jobID == "" && stage == "":
		return ""
	case jobID == "":
		return "[" + stage + "]"
	case stage == "":
		return "[" + jobID + "]"
	}
	return "[" + jobID + "/" + stage + "]"
}
