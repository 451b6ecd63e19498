package history

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventStart, "svc-a", "web", 42, ReasonSync)
	if e.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatal("expected random id")
	}
	if e.Type != EventStart || e.Repo != "svc-a" || e.Process != "web" || e.PID != 42 || e.Reason != ReasonSync {
		t.Fatalf("unexpected event %+v", e)
	}
	if time.Since(e.OccurredAt) > time.Minute || e.OccurredAt.Location() != time.UTC {
		t.Fatalf("unexpected occurred_at %v", e.OccurredAt)
	}
}

func TestSQLSink_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewSQLSinkFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()

	start := NewEvent(EventStart, "svc-a", "web", 100, ReasonSync)
	stop := NewEvent(EventStop, "svc-a", "web", 100, ReasonKill)
	stop.OccurredAt = start.OccurredAt.Add(time.Second)
	other := NewEvent(EventStart, "svc-b", "web", 7, ReasonRestart)
	for _, e := range []Event{start, stop, other} {
		if err := s.Send(ctx, e); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	got, err := s.Recent(ctx, "svc-a", "web", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != stop.ID || got[0].Type != EventStop || got[0].Reason != ReasonKill {
		t.Fatalf("newest first expected, got %+v", got[0])
	}
	if got[1].ID != start.ID || got[1].PID != 100 {
		t.Fatalf("unexpected second event %+v", got[1])
	}

	// schema creation is idempotent
	s2, err := NewSQLSinkFromDSN(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = s2.Close()
}

func TestSQLSink_Memory(t *testing.T) {
	s, err := NewSQLSinkFromDSN(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	if err := s.Send(context.Background(), NewEvent(EventStart, "r", "p", 1, ReasonSync)); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := s.Recent(context.Background(), "r", "p", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("recent: %v %v", got, err)
	}
}

func TestNewSinkFromDSN(t *testing.T) {
	ctx := context.Background()
	if _, err := NewSinkFromDSN(ctx, "  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
	if _, err := NewSinkFromDSN(ctx, "mongodb://localhost"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
	// credentials never reach the error text
	for _, dsn := range []string{
		"mongodb://admin:hunter2@db:27017/app",
		"clickhouse://bob:hunter2@ch:badport/metrics",
	} {
		_, err := Open(ctx, []string{dsn})
		if err == nil {
			t.Fatalf("expected error for %s", dsn)
		}
		if strings.Contains(err.Error(), "hunter2") {
			t.Fatalf("error leaks the password: %v", err)
		}
	}
	if _, err := NewSinkFromDSN(ctx, "mongodb://x"); err == nil || !strings.Contains(err.Error(), `"mongodb"`) {
		t.Fatalf("error should name the scheme: %v", err)
	}
	s, err := NewSinkFromDSN(ctx, "sqlite://"+filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if _, ok := s.(*SQLSink); !ok {
		t.Fatalf("expected *SQLSink, got %T", s)
	}
	_ = s.Close()
}

func TestClickHouseOptionsFromURL(t *testing.T) {
	o, err := clickHouseOptionsFromURL("clickhouse://bob:secret@ch:9000/metrics?table=events")
	if err != nil {
		t.Fatal(err)
	}
	want := ClickHouseOptions{Addr: "ch:9000", Database: "metrics", Username: "bob", Password: "secret", Table: "events"}
	if o != want {
		t.Fatalf("got %+v want %+v", o, want)
	}
	o, _ = clickHouseOptionsFromURL("clickhouse://?database=x")
	if o.Addr != "localhost:9000" || o.Database != "x" {
		t.Fatalf("defaults not applied: %+v", o)
	}
}

func TestClickHouseSink_RejectsBadTable(t *testing.T) {
	_, err := NewClickHouseSink(context.Background(), ClickHouseOptions{Addr: "127.0.0.1:1", Table: "x; DROP TABLE y"})
	if err == nil {
		t.Fatal("expected invalid table error")
	}
}

type fakeSink struct {
	sent   []Event
	err    error
	closed bool
}

func (f *fakeSink) Send(_ context.Context, e Event) error { f.sent = append(f.sent, e); return f.err }
func (f *fakeSink) Close() error                         { f.closed = true; return nil }

func TestMulti(t *testing.T) {
	a, b := &fakeSink{}, &fakeSink{err: errors.New("down")}
	m := Multi{a, b}
	err := m.Send(context.Background(), NewEvent(EventStop, "r", "p", 1, ReasonSync))
	if err == nil || err.Error() != "down" {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Fatal("every sink should receive the event")
	}
	if err := m.Close(); err != nil || !a.closed || !b.closed {
		t.Fatal("close should reach every sink")
	}
}

func TestOpen_ClosesOnFailure(t *testing.T) {
	_, err := Open(context.Background(), []string{filepath.Join(t.TempDir(), "ok.db"), "bogus://x"})
	if err == nil {
		t.Fatal("expected error")
	}
	m, err := Open(context.Background(), nil)
	if err != nil || len(m) != 0 {
		t.Fatalf("empty open: %v %v", m, err)
	}
}
