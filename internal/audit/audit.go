// Package audit records server lifecycle events as JSON Lines, one file
// per server. The trail outlives the server row so a deleted server's
// history stays readable.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/firefly-engineering/hearth/internal/store"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventEnqueued  EventType = "enqueued"
	EventStarted   EventType = "started"
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
	EventSkipped   EventType = "skipped"
	EventCleanup   EventType = "cleanup"
	EventDrift     EventType = "drift"
)

// Event is a single audit entry.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	Type      EventType     `json:"type"`
	Server    string        `json:"server"`
	Job       string        `json:"job,omitempty"`
	JobType   store.JobType `json:"job_type,omitempty"`
	Details   string        `json:"details,omitempty"`
}

// Logger appends events to {dir}/{server}.events.jsonl and reads them
// back.
type Logger struct {
	dir string
	now func() time.Time

	mu sync.Mutex
}

// NewLogger creates a logger rooted at dir.
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir, now: time.Now}
}

// trail returns the server's event file, refusing ids that would escape dir.
func (l *Logger) trail(server string) (string, error) {
	switch {
	case server == "", server == ".", server == "..", filepath.Base(server) != server:
		return "", fmt.Errorf("audit: bad server id %q", server)
	}
	return filepath.Join(l.dir, server+".events.jsonl"), nil
}

// Log appends event to its server's trail, stamping it if needed.
func (l *Logger) Log(event Event) error {
	path, err := l.trail(event.Server)
	if err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	// Encode writes the object and its newline in one call.
	if err := json.NewEncoder(f).Encode(event); err != nil {
		f.Close()
		return fmt.Errorf("audit: append to %s: %w", path, err)
	}
	return f.Close()
}

// LogJob records an event about job.
func (l *Logger) LogJob(eventType EventType, job *store.Job, details string) error {
	return l.Log(Event{
		Type:    eventType,
		Server:  job.ServerID,
		Job:     job.ID,
		JobType: job.Type,
		Details: details,
	})
}

// Events returns a server's trail oldest first. A server with no trail
// has no events. Lines that do not decode, left by a crash mid-write,
// are skipped.
func (l *Logger) Events(server string) ([]Event, error) {
	path, err := l.trail(server)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var ev Event
		if json.Unmarshal(sc.Bytes(), &ev) == nil {
			events = append(events, ev)
		}
	}
	if err := sc.Err(); err != nil {
		return events, fmt.Errorf("audit: read %s: %w", path, err)
	}
	return events, nil
}
