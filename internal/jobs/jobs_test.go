package jobs

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/firefly-engineering/hearth/internal/audit"
	"github.com/firefly-engineering/hearth/internal/database"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/queue"
	"github.com/firefly-engineering/hearth/internal/store"
)

type fixture struct {
	db  *sql.DB
	st  *store.Store
	q   *queue.Queue
	svc *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(filepath.Join(t.TempDir(), "hearth.db"))
	if err != nil {
		t.Fatalf("database.Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st, err := store.New(ctx, db)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	q, err := queue.New(ctx, db, "server-lifecycle")
	if err != nil {
		t.Fatalf("queue.New failed: %v", err)
	}
	return &fixture{db: db, st: st, q: q, svc: NewService(st, q, opts...)}
}

func TestEnqueueCreate_PendingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := &store.Server{Name: "mc", GameKey: "minecraft-java"}
	f.st.CreateServer(ctx, srv)

	job, err := f.svc.EnqueueCreate(ctx, srv.ID)
	if err != nil {
		t.Fatalf("EnqueueCreate failed: %v", err)
	}

	stored, err := f.st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	for _, j := range []*store.Job{job, stored} {
		if j.Type != store.JobCreate || j.Status != store.JobPending || j.Progress != 0 || j.Logs != "" {
			t.Errorf("job = %+v", j)
		}
		if diff := cmp.Diff(map[string]any{}, j.Payload); diff != "" {
			t.Errorf("Payload mismatch (-want +got):\n%s", diff)
		}
		if j.Error != nil || j.StartedAt != nil || j.FinishedAt != nil {
			t.Errorf("pending job has outcome fields set: %+v", j)
		}
	}

	d, err := f.q.Claim(ctx, "test")
	if err != nil || d == nil {
		t.Fatalf("Claim = %v, %v", d, err)
	}
	want := queue.Message{ID: d.ID, ServerID: srv.ID, JobID: job.ID, Type: store.JobCreate}
	if diff := cmp.Diff(want, d.Message); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestEnqueue_AllTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fns := map[store.JobType]func(context.Context, string) (*store.Job, error){
		store.JobCreate:  f.svc.EnqueueCreate,
		store.JobStart:   f.svc.EnqueueStart,
		store.JobStop:    f.svc.EnqueueStop,
		store.JobRestart: f.svc.EnqueueRestart,
		store.JobDelete:  f.svc.EnqueueDelete,
	}
	if len(fns) != len(store.AllJobTypes) {
		t.Fatalf("have %d enqueue helpers for %d job types", len(fns), len(store.AllJobTypes))
	}
	for typ, fn := range fns {
		job, err := fn(ctx, "srv")
		if err != nil {
			t.Fatalf("enqueue %s failed: %v", typ, err)
		}
		if job.Type != typ {
			t.Errorf("job type = %s, want %s", job.Type, typ)
		}
	}
}

func TestEnqueue_NoServerCheck(t *testing.T) {
	f := newFixture(t)

	job, err := f.svc.EnqueueStart(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("EnqueueStart failed: %v", err)
	}
	if job.Status != store.JobPending {
		t.Errorf("Status = %s, want PENDING", job.Status)
	}
}

func TestEnqueueDelete_MarksServerDeleting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := &store.Server{Name: "mc", GameKey: "minecraft-java", Status: store.ServerRunning}
	if err := f.st.CreateServer(ctx, srv); err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}

	if _, err := f.svc.EnqueueStop(ctx, srv.ID); err != nil {
		t.Fatalf("EnqueueStop failed: %v", err)
	}
	got, _ := f.st.GetServer(ctx, srv.ID)
	if got.Status != store.ServerRunning {
		t.Errorf("status after STOP enqueue = %s, want RUNNING", got.Status)
	}

	job, err := f.svc.EnqueueDelete(ctx, srv.ID)
	if err != nil {
		t.Fatalf("EnqueueDelete failed: %v", err)
	}
	if job.Status != store.JobPending {
		t.Errorf("job status = %s, want PENDING", job.Status)
	}
	got, _ = f.st.GetServer(ctx, srv.ID)
	if got.Status != store.ServerDeleting {
		t.Errorf("status after DELETE enqueue = %s, want DELETING", got.Status)
	}
}

func TestEnqueueDelete_UnknownServer(t *testing.T) {
	f := newFixture(t)

	job, err := f.svc.EnqueueDelete(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("EnqueueDelete failed: %v", err)
	}
	if job.Status != store.JobPending {
		t.Errorf("Status = %s, want PENDING", job.Status)
	}
}

func TestEnqueue_DuplicatesAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.svc.EnqueueStart(ctx, "srv")
	b, _ := f.svc.EnqueueStart(ctx, "srv")
	if a.ID == b.ID {
		t.Fatal("duplicate enqueues shared a job")
	}

	counts, err := f.q.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[queue.StateReady] != 2 {
		t.Errorf("ready messages = %d, want 2", counts[queue.StateReady])
	}
}

func TestEnqueue_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		serverID string
		typ      store.JobType
	}{
		{"unknown type", "srv", store.JobType("REBOOT")},
		{"lower-case type", "srv", store.JobType("start")},
		{"empty server", "", store.JobStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Enqueue(ctx, tt.serverID, tt.typ)
			if errors.KindOf(err) != errors.KindValidation {
				t.Errorf("Enqueue error = %v, want validation failure", err)
			}
		})
	}
}

func TestEnqueue_PublishFailureClosesJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.db.Exec(`DROP TABLE queue_messages`); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	if _, err := f.svc.EnqueueStop(ctx, "srv"); err == nil {
		t.Fatal("expected publish error")
	}
	jobs, err := f.st.ListJobs(ctx, "srv")
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != store.JobFailed {
		t.Errorf("jobs = %+v, want one FAILED", jobs)
	}
}

func TestEnqueueDelete_PublishFailureKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := &store.Server{Name: "mc", GameKey: "minecraft-java", Status: store.ServerStopped}
	if err := f.st.CreateServer(ctx, srv); err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	if _, err := f.db.Exec(`DROP TABLE queue_messages`); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	if _, err := f.svc.EnqueueDelete(ctx, srv.ID); err == nil {
		t.Fatal("expected publish error")
	}
	got, _ := f.st.GetServer(ctx, srv.ID)
	if got.Status != store.ServerStopped {
		t.Errorf("status = %s, want STOPPED", got.Status)
	}
}

func TestEnqueue_Audit(t *testing.T) {
	dir := t.TempDir()
	logger := audit.NewLogger(dir)
	f := newFixture(t, WithAuditLogger(logger))

	job, err := f.svc.EnqueueRestart(context.Background(), "srv")
	if err != nil {
		t.Fatalf("EnqueueRestart failed: %v", err)
	}
	events, _ := logger.Events("srv")
	if len(events) != 1 || events[0].Type != audit.EventEnqueued || events[0].Job != job.ID {
		t.Errorf("events = %+v", events)
	}
}
