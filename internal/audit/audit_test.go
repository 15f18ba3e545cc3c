package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher must report zero counters")
	}
}

func TestDispatcherDeliversAndFlushesOnClose(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "issue", Success: true})
	}
	d.Close()

	if got := d.Delivered(); got != 3 {
		t.Fatalf("expected 3 delivered, got %d", got)
	}
	e := <-sink.Events()
	if e.Timestamp.IsZero() {
		t.Fatal("expected dispatcher to stamp timestamp")
	}

	d.Emit(context.Background(), Event{EventType: "late"})
	if d.Delivered() != 3 {
		t.Fatal("events after Close must be ignored")
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "burst"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops while sink is blocked")
	}
	close(sink.release)
	d.Close()

	if d.Dropped()+d.Delivered() != 10 {
		t.Fatalf("dropped %d + delivered %d != 10", d.Dropped(), d.Delivered())
	}
}

func TestDispatcherBlockingHonoursContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.release)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "c"})
	if d.Dropped() != 1 {
		t.Fatalf("expected context-cancelled emit to count as dropped, got %d", d.Dropped())
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: "logout", SessionID: "s1", Success: true})
	s.Emit(context.Background(), Event{EventType: "logout_all", UserID: "u1", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EventType != "logout" || decoded.SessionID != "s1" {
		t.Fatalf("unexpected event %+v", decoded)
	}
}

func TestZerologSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	sink := NewZerologSink(logger)

	sink.Emit(context.Background(), Event{EventType: "refresh_success", Success: true, UserID: "u1"})
	sink.Emit(context.Background(), Event{EventType: "csrf_rejected", Error: "csrf_invalid", RequestID: "r-1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["level"] != "info" || first["user_id"] != "u1" {
		t.Fatalf("unexpected success line %v", first)
	}
	if second["level"] != "warn" || second["error_code"] != "csrf_invalid" || second["request_id"] != "r-1" {
		t.Fatalf("unexpected failure line %v", second)
	}
}

func TestMultiSink(t *testing.T) {
	a, b := NewChannelSink(1), NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), Event{EventType: "x"})
	if (<-a.Events()).EventType != "x" || (<-b.Events()).EventType != "x" {
		t.Fatal("expected both sinks to receive the event")
	}
}
