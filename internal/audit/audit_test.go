package audit

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/firefly-engineering/hearth/internal/store"
)

func TestLogger_LogAndEvents(t *testing.T) {
	logger := NewLogger(t.TempDir())
	now := time.Now().Truncate(time.Millisecond)

	events := []Event{
		{Timestamp: now, Type: EventEnqueued, Server: "srv-1", Job: "j1", JobType: store.JobCreate},
		{Timestamp: now.Add(time.Second), Type: EventStarted, Server: "srv-1", Job: "j1", JobType: store.JobCreate},
		{Timestamp: now.Add(2 * time.Second), Type: EventSucceeded, Server: "srv-1", Job: "j1", JobType: store.JobCreate, Details: "container=abc"},
	}
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	got, err := logger.Events("srv-1")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("got %d events, want %d", len(got), len(events))
	}
	for i, e := range got {
		if e.Type != events[i].Type {
			t.Errorf("event %d: type = %q, want %q", i, e.Type, events[i].Type)
		}
		if e.JobType != events[i].JobType {
			t.Errorf("event %d: job type = %q, want %q", i, e.JobType, events[i].JobType)
		}
		if e.Details != events[i].Details {
			t.Errorf("event %d: details = %q, want %q", i, e.Details, events[i].Details)
		}
	}
}

func TestLogger_LogJob(t *testing.T) {
	logger := NewLogger(t.TempDir())
	job := &store.Job{ID: "job-1", ServerID: "srv-2", Type: store.JobStop}

	if err := logger.LogJob(EventFailed, job, "container stop failed"); err != nil {
		t.Fatalf("LogJob failed: %v", err)
	}

	events, err := logger.Events("srv-2")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.Job != "job-1" || e.JobType != store.JobStop || e.Type != EventFailed {
		t.Errorf("event = %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp should be set automatically")
	}
}

func TestLogger_EventsEmpty(t *testing.T) {
	logger := NewLogger(t.TempDir())

	events, err := logger.Events("nonexistent")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestLogger_RejectsPathServerIDs(t *testing.T) {
	logger := NewLogger(t.TempDir())

	for _, id := range []string{"", "..", "../escape", "a/b"} {
		if err := logger.Log(Event{Type: EventStarted, Server: id}); err == nil {
			t.Errorf("Log(%q) should fail", id)
		}
	}
}

func TestLogger_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)
	logger.Log(Event{Type: EventStarted, Server: "srv"})

	path := filepath.Join(dir, "srv.events.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	f.WriteString("{\"timestamp\":\n")
	f.Close()
	logger.Log(Event{Type: EventSucceeded, Server: "srv"})

	events, err := logger.Events("srv")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestLogger_ConcurrentWriters(t *testing.T) {
	logger := NewLogger(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(Event{Type: EventStarted, Server: "busy"})
		}()
	}
	wg.Wait()

	events, _ := logger.Events("busy")
	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
}
