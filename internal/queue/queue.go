package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/retry"
	"github.com/firefly-engineering/hearth/internal/store"
)

// Message states.
const (
	StateReady     = "ready"
	StateClaimed   = "claimed"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

const schema = `
	CREATE TABLE IF NOT EXISTS queue_messages (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		id           TEXT    NOT NULL UNIQUE,
		queue        TEXT    NOT NULL,
		server_id    TEXT    NOT NULL,
		job_id       TEXT    NOT NULL,
		type         TEXT    NOT NULL,
		state        TEXT    NOT NULL DEFAULT 'ready',
		attempts     INTEGER NOT NULL DEFAULT 0,
		available_at INTEGER NOT NULL,
		claimed_by   TEXT    NOT NULL DEFAULT '',
		claimed_at   INTEGER,
		last_error   TEXT    NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL,
		finished_at  INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_queue_ready ON queue_messages(queue, state, available_at, seq);
`

// Message is the request carried from the Enqueue API to the worker pool.
type Message struct {
	ID       string
	ServerID string
	JobID    string
	Type     store.JobType
}

// Delivery is a claimed message. Attempts counts this delivery.
type Delivery struct {
	Message
	Seq      int64
	Attempts int
}

// Queue is a named, durable, at-least-once work queue stored in SQLite.
type Queue struct {
	db            *sql.DB
	name          string
	maxAttempts   int
	keepCompleted int
	keepFailed    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	now           func() time.Time
	notify        chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxAttempts sets how many deliveries a message gets before it is
// moved to failed.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithRetention sets how many completed and failed messages are kept.
func WithRetention(completed, failed int) Option {
	return func(q *Queue) {
		q.keepCompleted = completed
		q.keepFailed = failed
	}
}

// WithBackoff sets the redelivery delay bounds.
func WithBackoff(base, max time.Duration) Option {
	return func(q *Queue) {
		q.baseDelay = base
		q.maxDelay = max
	}
}

// WithClock replaces the time source. Intended for testing.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// New migrates the queue table and returns the queue called name.
func New(ctx context.Context, db *sql.DB, name string, opts ...Option) (*Queue, error) {
	q := &Queue{
		db:            db,
		name:          name,
		maxAttempts:   1,
		keepCompleted: 100,
		keepFailed:    100,
		baseDelay:     time.Second,
		maxDelay:      time.Minute,
		now:           time.Now,
		notify:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("queue: migration failed: %w", err)
	}
	return q, nil
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Notify returns a channel that receives when a message is published by
// this process. It is a hint; consumers still poll.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) millis() int64 {
	return q.now().UnixMilli()
}

// Publish appends msg to the queue. An empty ID is assigned.
func (q *Queue) Publish(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := q.millis()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO queue_messages (id, queue, server_id, job_id, type, state, available_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, q.name, msg.ServerID, msg.JobID, msg.Type, StateReady, now, now)
	if err != nil {
		return errors.LedgerError("publish message", err)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Claim takes the oldest ready message for consumer. It returns nil when
// the queue has nothing available.
func (q *Queue) Claim(ctx context.Context, consumer string) (*Delivery, error) {
	now := q.millis()
	row := q.db.QueryRowContext(ctx, `
		UPDATE queue_messages
		SET state = ?, claimed_by = ?, claimed_at = ?, attempts = attempts + 1
		WHERE seq = (
			SELECT seq FROM queue_messages
			WHERE queue = ? AND state = ? AND available_at <= ?
			ORDER BY seq LIMIT 1
		)
		RETURNING seq, id, server_id, job_id, type, attempts`,
		StateClaimed, consumer, now, q.name, StateReady, now)

	var d Delivery
	err := row.Scan(&d.Seq, &d.ID, &d.ServerID, &d.JobID, &d.Type, &d.Attempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.LedgerError("claim message", err)
	}
	return &d, nil
}

// Complete acknowledges a delivery.
func (q *Queue) Complete(ctx context.Context, d *Delivery) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE queue_messages SET state = ?, finished_at = ?, last_error = ''
		WHERE seq = ? AND state = ?`,
		StateCompleted, q.millis(), d.Seq, StateClaimed)
	if err != nil {
		return errors.LedgerError("complete message", err)
	}
	_, err = q.Prune(ctx)
	return err
}

// Fail records cause against a delivery. The message is made ready again
// after a backoff while attempts remain, and moved to failed otherwise.
// It reports whether the message will be redelivered.
func (q *Queue) Fail(ctx context.Context, d *Delivery, cause error) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	if d.Attempts < q.maxAttempts {
		next := q.now().Add(retry.Backoff(q.baseDelay, q.maxDelay, d.Attempts)).UnixMilli()
		_, err := q.db.ExecContext(ctx, `
			UPDATE queue_messages
			SET state = ?, available_at = ?, claimed_by = '', claimed_at = NULL, last_error = ?
			WHERE seq = ? AND state = ?`,
			StateReady, next, msg, d.Seq, StateClaimed)
		if err != nil {
			return false, errors.LedgerError("requeue message", err)
		}
		return true, nil
	}

	_, err := q.db.ExecContext(ctx, `
		UPDATE queue_messages SET state = ?, finished_at = ?, last_error = ?
		WHERE seq = ? AND state = ?`,
		StateFailed, q.millis(), msg, d.Seq, StateClaimed)
	if err != nil {
		return false, errors.LedgerError("fail message", err)
	}
	_, err = q.Prune(ctx)
	return false, err
}

// RecoverStale makes claimed messages ready again once their claim is
// older than visibility, so work held by a crashed consumer is delivered
// again. It returns the number of messages recovered.
func (q *Queue) RecoverStale(ctx context.Context, visibility time.Duration) (int64, error) {
	cutoff := q.now().Add(-visibility).UnixMilli()
	res, err := q.db.ExecContext(ctx, `
		UPDATE queue_messages
		SET state = ?, claimed_by = '', claimed_at = NULL, available_at = ?
		WHERE queue = ? AND state = ? AND claimed_at < ?`,
		StateReady, q.millis(), q.name, StateClaimed, cutoff)
	if err != nil {
		return 0, errors.LedgerError("recover stale messages", err)
	}
	return res.RowsAffected()
}

// Prune keeps only the most recent completed and failed messages, per the
// configured retention. It returns the number of rows removed.
func (q *Queue) Prune(ctx context.Context) (int64, error) {
	var total int64
	for _, r := range []struct {
		state string
		keep  int
	}{
		{StateCompleted, q.keepCompleted},
		{StateFailed, q.keepFailed},
	} {
		res, err := q.db.ExecContext(ctx, `
			DELETE FROM queue_messages
			WHERE queue = ? AND state = ? AND seq NOT IN (
				SELECT seq FROM queue_messages
				WHERE queue = ? AND state = ?
				ORDER BY seq DESC LIMIT ?
			)`,
			q.name, r.state, q.name, r.state, r.keep)
		if err != nil {
			return total, errors.LedgerError("prune messages", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Counts returns the number of messages in each state.
func (q *Queue) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM queue_messages WHERE queue = ? GROUP BY state`, q.name)
	if err != nil {
		return nil, errors.LedgerError("count messages", err)
	}
	defer rows.Close()

	counts := map[string]int{StateReady: 0, StateClaimed: 0, StateCompleted: 0, StateFailed: 0}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, errors.LedgerError("count messages", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}
