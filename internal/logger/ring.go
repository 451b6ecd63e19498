package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loykin/jenky/pkg/client"
)

// DefaultRingSize is how many records the dashboard log feed keeps.
const DefaultRingSize = 200

// Ring is a slog.Handler keeping the last N formatted records in memory.
// Derived handlers (WithAttrs/WithGroup) share the same buffer.
type Ring struct {
	buf    *ringBuffer
	level  slog.Leveler
	prefix string // preformatted attrs
	group  string
}

type ringBuffer struct {
	mu      sync.Mutex
	entries []client.LogEntry
	next    int
	full    bool
}

// NewRing creates a Ring holding up to size entries (DefaultRingSize when <= 0).
func NewRing(size int, level slog.Leveler) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	if level == nil {
		level = slog.LevelDebug
	}
	return &Ring{buf: &ringBuffer{entries: make([]client.LogEntry, size)}, level: level}
}

func (r *Ring) Enabled(_ context.Context, l slog.Level) bool { return l >= r.level.Level() }

func (r *Ring) Handle(_ context.Context, rec slog.Record) error {
	var sb strings.Builder
	t := rec.Time
	if t.IsZero() {
		t = time.Now()
	}
	fmt.Fprintf(&sb, "%s - %s - %s", t.Format("2006-01-02 15:04:05.000"), rec.Level, rec.Message)
	sb.WriteString(r.prefix)
	rec.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, r.group, a)
		return true
	})
	r.buf.add(client.LogEntry{Created: float64(t.UnixNano()) / 1e9, Message: sb.String()})
	return nil
}

func (r *Ring) WithAttrs(attrs []slog.Attr) slog.Handler {
	var sb strings.Builder
	sb.WriteString(r.prefix)
	for _, a := range attrs {
		writeAttr(&sb, r.group, a)
	}
	n := *r
	n.prefix = sb.String()
	return &n
}

func (r *Ring) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	n := *r
	if n.group != "" {
		n.group += "." + name
	} else {
		n.group = name
	}
	return &n
}

func writeAttr(sb *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		g := a.Key
		if group != "" && g != "" {
			g = group + "." + g
		} else if g == "" {
			g = group
		}
		for _, ga := range a.Value.Group() {
			writeAttr(sb, g, ga)
		}
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	fmt.Fprintf(sb, " %s=%v", key, a.Value.Resolve())
}

// Since returns entries newest first, stopping at (and including) the first
// entry whose Created equals created. If none matches, the whole ring is returned.
func (r *Ring) Since(created float64) []client.LogEntry {
	all := r.buf.snapshot()
	out := make([]client.LogEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if all[i].Created == created {
			break
		}
	}
	return out
}

// Len returns the number of buffered entries.
func (r *Ring) Len() int { return len(r.buf.snapshot()) }

func (b *ringBuffer) add(e client.LogEntry) {
	b.mu.Lock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
}

// snapshot returns entries oldest first.
func (b *ringBuffer) snapshot() []client.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]client.LogEntry(nil), b.entries[:b.next]...)
	}
	out := make([]client.LogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}
