package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/database"
	hearthErrors "github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/games"
	"github.com/firefly-engineering/hearth/internal/port"
	"github.com/firefly-engineering/hearth/internal/retry"
	"github.com/firefly-engineering/hearth/internal/runtime"
	"github.com/firefly-engineering/hearth/internal/store"
	"github.com/firefly-engineering/hearth/internal/system"
)

type harness struct {
	cfg     *config.HostConfig
	st      *store.Store
	rt      *runtime.MockRuntime
	fs      *system.MockFS
	probe   *system.MockProbe
	catalog *games.Catalog
	o       *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	cfg := config.Default(dir)
	cfg.Ports = config.PortRange{From: 30000, To: 30009}

	db, err := database.Open(filepath.Join(dir, "hearth.db"))
	if err != nil {
		t.Fatalf("database.Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st, err := store.New(ctx, db)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	catalog, err := games.NewCatalog(nil)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	h := &harness{
		cfg:     cfg,
		st:      st,
		rt:      runtime.NewMockRuntime(),
		fs:      system.NewMockFS(),
		probe:   system.NewMockProbe(),
		catalog: catalog,
	}
	alloc := port.New(cfg.Ports, st, h.rt, h.probe)
	h.o = New(cfg, st, h.rt, alloc,
		WithFileSystem(h.fs),
		WithPullRetry(retry.Config{MaxAttempts: 2}),
	)
	return h
}

func (h *harness) task(t *testing.T, gameKey string, typ store.JobType) *Task {
	t.Helper()
	ctx := context.Background()
	srv := &store.Server{Name: "test", GameKey: gameKey, MemoryMiB: 2048, CPUShares: 512}
	if err := h.st.CreateServer(ctx, srv); err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	return h.taskFor(t, srv, typ)
}

func (h *harness) taskFor(t *testing.T, srv *store.Server, typ store.JobType) *Task {
	t.Helper()
	ctx := context.Background()
	job, err := h.st.CreateJob(ctx, srv.ID, typ)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	game, err := h.catalog.Get(srv.GameKey)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", srv.GameKey, err)
	}
	return &Task{Job: job, Server: srv, Game: game}
}

func (h *harness) created(t *testing.T, gameKey string) *Task {
	t.Helper()
	task := h.task(t, gameKey, store.JobCreate)
	if err := h.o.Create(context.Background(), task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return task
}

func TestCreate_CatalogGame(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.task(t, "valheim", store.JobCreate)

	if err := h.o.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	srv, err := h.st.GetServer(ctx, task.Server.ID)
	if err != nil {
		t.Fatalf("GetServer failed: %v", err)
	}
	if srv.Status != store.ServerStopped {
		t.Errorf("Status = %s, want STOPPED", srv.Status)
	}
	if srv.ContainerID == "" {
		t.Fatal("ContainerID not persisted")
	}
	wantPorts := []store.PortMapping{
		{ContainerPort: 2456, HostPort: 2456, Protocol: "udp"},
		{ContainerPort: 2457, HostPort: 2457, Protocol: "udp"},
	}
	if diff := cmp.Diff(wantPorts, srv.Ports); diff != "" {
		t.Errorf("Ports mismatch (-want +got):\n%s", diff)
	}

	opts := h.rt.Created[srv.ContainerID]
	if opts.Name != h.cfg.ContainerName(srv.ID) {
		t.Errorf("container name = %q", opts.Name)
	}
	if opts.MemoryMiB != 2048 || opts.CPUShares != 512 {
		t.Errorf("limits = %d MiB / %d shares", opts.MemoryMiB, opts.CPUShares)
	}
	if !opts.NoNewPrivileges {
		t.Error("privilege escalation must be disabled")
	}
	if opts.RestartPolicy != "unless-stopped" {
		t.Errorf("RestartPolicy = %q", opts.RestartPolicy)
	}
	if opts.Labels[LabelServer] != srv.ID || opts.Labels[LabelGame] != "valheim" {
		t.Errorf("Labels = %v", opts.Labels)
	}
	dataDir, _ := h.cfg.ServerDataDir(srv.ID)
	wantMounts := []runtime.Mount{{HostPath: dataDir, ContainerPath: "/config"}}
	if diff := cmp.Diff(wantMounts, opts.Mounts); diff != "" {
		t.Errorf("Mounts mismatch (-want +got):\n%s", diff)
	}
	if !h.fs.Exists(dataDir) {
		t.Error("data directory not created")
	}
	if !h.rt.Images["lloesche/valheim-server:latest"] {
		t.Error("image not pulled")
	}

	job, _ := h.st.GetJob(ctx, task.Job.ID)
	if job.Progress != ProgressDone {
		t.Errorf("Progress = %d, want %d", job.Progress, ProgressDone)
	}
	if !strings.Contains(job.Logs, "created container") {
		t.Errorf("Logs = %q", job.Logs)
	}
}

func TestCreate_PortFallbackAndReservations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.probe.SetBusy(25565)

	task := h.created(t, "minecraft-java")

	srv, _ := h.st.GetServer(ctx, task.Server.ID)
	if len(srv.Ports) != 1 || srv.Ports[0].HostPort != 30000 {
		t.Fatalf("Ports = %+v, want host 30000", srv.Ports)
	}
	r, err := h.st.PortReservation(ctx, 25565)
	if err != nil || r != nil {
		t.Errorf("rejected 1:1 port still reserved: %+v, %v", r, err)
	}
}

func TestCreate_TwoServersGetDistinctPorts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.created(t, "terraria")
	b := h.created(t, "terraria")

	sa, _ := h.st.GetServer(ctx, a.Server.ID)
	sb, _ := h.st.GetServer(ctx, b.Server.ID)
	if sa.Ports[0].HostPort == sb.Ports[0].HostPort {
		t.Errorf("both servers got host port %d", sa.Ports[0].HostPort)
	}
}

func TestCreate_CustomPlaceholderScript(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task := h.created(t, games.CustomKey)

	srv, _ := h.st.GetServer(ctx, task.Server.ID)
	if len(srv.Ports) != 1 || srv.Ports[0].ContainerPort != 27015 {
		t.Errorf("Ports = %+v, want the default custom port", srv.Ports)
	}

	scriptDir, _ := h.cfg.ServerScriptDir(srv.ID)
	data, mode, ok := h.fs.GetFile(filepath.Join(scriptDir, "start.sh"))
	if !ok {
		t.Fatal("startup script not written")
	}
	if string(data) != PlaceholderScript {
		t.Errorf("script = %q, want placeholder", data)
	}
	if mode != 0755 {
		t.Errorf("mode = %o, want 755", mode)
	}

	opts := h.rt.Created[srv.ContainerID]
	var found bool
	for _, m := range opts.Mounts {
		if m.ContainerPath == games.ScriptPath {
			found = true
			if !m.ReadOnly {
				t.Error("script mount must be read-only")
			}
		}
	}
	if !found {
		t.Errorf("script not mounted: %+v", opts.Mounts)
	}
}

func TestCreate_CustomScriptPortsAndEnv(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.task(t, games.CustomKey, store.JobCreate)

	content := "#!/bin/bash\nset -e\nexec ./server --port 7000\n"
	err := h.st.SaveCustomScript(ctx, &store.CustomScript{
		ServerID: task.Server.ID,
		Content:  content,
		Hash:     "h",
		Ports:    []store.PortSpec{{ContainerPort: 7000, Protocol: "udp"}, {ContainerPort: 7001, Protocol: "tcp"}},
		Env:      map[string]string{"MAX_PLAYERS": "8"},
	})
	if err != nil {
		t.Fatalf("SaveCustomScript failed: %v", err)
	}

	if err := h.o.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	srv, _ := h.st.GetServer(ctx, task.Server.ID)
	want := []store.PortMapping{{ContainerPort: 7000, HostPort: 7000, Protocol: "udp"}}
	if diff := cmp.Diff(want, srv.Ports); diff != "" {
		t.Errorf("Ports mismatch (-want +got):\n%s", diff)
	}
	if env := h.rt.Created[srv.ContainerID].Env; env["MAX_PLAYERS"] != "8" {
		t.Errorf("Env = %v", env)
	}
	scriptDir, _ := h.cfg.ServerScriptDir(srv.ID)
	if data, _, _ := h.fs.GetFile(filepath.Join(scriptDir, "start.sh")); string(data) != content {
		t.Errorf("script = %q, want stored content", data)
	}
}

func TestCreate_AlreadyCreatedIsNoop(t *testing.T) {
	h := newHarness(t)
	task := h.created(t, "terraria")
	creates := len(h.rt.GetCallsFor("Create"))

	again := h.taskFor(t, task.Server, store.JobCreate)
	if err := h.o.Create(context.Background(), again); err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if got := len(h.rt.GetCallsFor("Create")); got != creates {
		t.Errorf("Create called %d times, want %d", got, creates)
	}
}

func TestCreate_RemovesLeftoverContainer(t *testing.T) {
	h := newHarness(t)
	task := h.task(t, "terraria", store.JobCreate)
	leftover := h.rt.AddContainer(h.cfg.ContainerName(task.Server.ID), runtime.StatusStopped)

	if err := h.o.Create(context.Background(), task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, ok := h.rt.Containers[leftover]; ok {
		t.Error("leftover container was not removed")
	}
}

func TestCreate_FailureCompensates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.rt.SetError("Create", errors.New("daemon exploded"))
	task := h.task(t, "minecraft-java", store.JobCreate)

	err := h.o.Create(ctx, task)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "daemon exploded") {
		t.Errorf("error = %v, want the runtime cause", err)
	}
	if hearthErrors.KindOf(err) != hearthErrors.KindExternalService {
		t.Errorf("KindOf = %q", hearthErrors.KindOf(err))
	}

	dataDir, _ := h.cfg.ServerDataDir(task.Server.ID)
	if h.fs.Exists(dataDir) {
		t.Error("data directory should be removed by compensation")
	}
	if r, _ := h.st.PortReservation(ctx, 25565); r != nil {
		t.Errorf("reservation leaked: %+v", r)
	}
	if !h.rt.Images["itzg/minecraft-server:latest"] {
		t.Error("pulled image should be left in place")
	}
	srv, _ := h.st.GetServer(ctx, task.Server.ID)
	if srv.ContainerID != "" || len(srv.Ports) != 0 {
		t.Errorf("server row changed on failure: %+v", srv)
	}
}

func TestCreate_FailureWithoutCompensation(t *testing.T) {
	h := newHarness(t)
	h.cfg.CompensateFailedCreate = false
	h.rt.SetError("Create", errors.New("boom"))
	task := h.task(t, "terraria", store.JobCreate)

	if err := h.o.Create(context.Background(), task); err == nil {
		t.Fatal("expected error")
	}
	dataDir, _ := h.cfg.ServerDataDir(task.Server.ID)
	if !h.fs.Exists(dataDir) {
		t.Error("data directory should be left behind")
	}
}

func TestCreate_PullFailure(t *testing.T) {
	h := newHarness(t)
	h.rt.SetError("PullImage", errors.New("manifest unknown"))
	task := h.task(t, "terraria", store.JobCreate)

	err := h.o.Create(context.Background(), task)
	if err == nil || !strings.Contains(err.Error(), "manifest unknown") {
		t.Fatalf("Create error = %v", err)
	}
	if n := len(h.rt.GetCallsFor("PullImage")); n != 1 {
		t.Errorf("PullImage called %d times, a permanent error should not be retried", n)
	}
	if n := len(h.rt.GetCallsFor("Create")); n != 0 {
		t.Errorf("container created after failed pull")
	}
}

func TestCreate_PortsExhausted(t *testing.T) {
	h := newHarness(t)
	busy := []int{7777}
	for p := h.cfg.Ports.From; p <= h.cfg.Ports.To; p++ {
		busy = append(busy, p)
	}
	h.probe.SetBusy(busy...)
	task := h.task(t, "terraria", store.JobCreate)

	err := h.o.Create(context.Background(), task)
	if hearthErrors.KindOf(err) != hearthErrors.KindResourceExhaustion {
		t.Fatalf("Create error = %v, want resource exhaustion", err)
	}
	if n := len(h.rt.GetCallsFor("Create")); n != 0 {
		t.Error("container must not be created without ports")
	}
}

func TestCreate_PullProgress(t *testing.T) {
	h := newHarness(t)
	h.rt.PullEvents = []runtime.PullProgress{
		{Status: "Downloading", Current: 50, Total: 100},
		{Status: "Downloading", Current: 10, Total: 100},
	}
	task := h.task(t, "terraria", store.JobCreate)
	if err := h.o.pull(context.Background(), task, task.Game.Image); err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	job, _ := h.st.GetJob(context.Background(), task.Job.ID)
	if job.Progress != 20 {
		t.Errorf("Progress = %d, want 20", job.Progress)
	}
}

func TestStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.created(t, "terraria")

	task := h.taskFor(t, created.Server, store.JobStart)
	if err := h.o.Start(ctx, task); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	srv, _ := h.st.GetServer(ctx, created.Server.ID)
	if srv.Status != store.ServerRunning {
		t.Errorf("Status = %s, want RUNNING", srv.Status)
	}
	if h.rt.Containers[srv.ContainerID].Status != runtime.StatusRunning {
		t.Error("container not running")
	}
}

func TestStart_MissingContainer(t *testing.T) {
	h := newHarness(t)
	created := h.created(t, "terraria")
	delete(h.rt.Containers, created.Server.ContainerID)

	err := h.o.Start(context.Background(), h.taskFor(t, created.Server, store.JobStart))
	if err == nil || err.Error() != "Container not found" {
		t.Fatalf("Start error = %v, want Container not found", err)
	}
	if !hearthErrors.IsNotFound(err) {
		t.Error("error should be NotFound")
	}
}

func TestLifecycle_RequiresContainer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	handlers := map[store.JobType]func(context.Context, *Task) error{
		store.JobStart:   h.o.Start,
		store.JobStop:    h.o.Stop,
		store.JobRestart: h.o.Restart,
	}
	for typ, fn := range handlers {
		t.Run(string(typ), func(t *testing.T) {
			task := h.task(t, "terraria", typ)
			err := fn(ctx, task)
			if hearthErrors.KindOf(err) != hearthErrors.KindConflict {
				t.Errorf("error = %v, want conflict", err)
			}
		})
	}
}

func TestStop_AlreadyStopped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.created(t, "terraria")

	for i := 0; i < 2; i++ {
		if err := h.o.Stop(ctx, h.taskFor(t, created.Server, store.JobStop)); err != nil {
			t.Fatalf("Stop #%d failed: %v", i, err)
		}
	}
	srv, _ := h.st.GetServer(ctx, created.Server.ID)
	if srv.Status != store.ServerStopped {
		t.Errorf("Status = %s, want STOPPED", srv.Status)
	}
}

func TestStop_AlreadyInStateError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.created(t, "terraria")
	h.st.SetServerStatus(ctx, created.Server.ID, store.ServerRunning)
	h.rt.SetError("Stop", runtime.ErrAlreadyInState)

	if err := h.o.Stop(ctx, h.taskFor(t, created.Server, store.JobStop)); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	srv, _ := h.st.GetServer(ctx, created.Server.ID)
	if srv.Status != store.ServerStopped {
		t.Errorf("Status = %s, want STOPPED", srv.Status)
	}
}

func TestStop_UsesGracePeriod(t *testing.T) {
	h := newHarness(t)
	created := h.created(t, "terraria")

	h.o.Stop(context.Background(), h.taskFor(t, created.Server, store.JobStop))
	calls := h.rt.GetCallsFor("Stop")
	if len(calls) != 1 || calls[0].Args[1] != config.DefaultStopGrace {
		t.Errorf("Stop calls = %+v, want grace %s", calls, config.DefaultStopGrace)
	}
}

func TestRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.created(t, "terraria")

	if err := h.o.Restart(ctx, h.taskFor(t, created.Server, store.JobRestart)); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	srv, _ := h.st.GetServer(ctx, created.Server.ID)
	if srv.Status != store.ServerRunning {
		t.Errorf("Status = %s, want RUNNING", srv.Status)
	}

	h.rt.SetError("Restart", errors.New("timeout"))
	err := h.o.Restart(ctx, h.taskFor(t, created.Server, store.JobRestart))
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("Restart error = %v", err)
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, task *Task)
	}{
		{"container present", func(h *harness, task *Task) {}},
		{"container already gone", func(h *harness, task *Task) {
			delete(h.rt.Containers, task.Server.ContainerID)
		}},
		{"runtime failing", func(h *harness, task *Task) {
			h.rt.SetError("Stop", errors.New("down"))
			h.rt.SetError("Remove", errors.New("down"))
		}},
		{"directory removal failing", func(h *harness, task *Task) {
			h.fs.RemoveAllErr = errors.New("busy")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			created := h.created(t, "terraria")
			tt.setup(h, created)

			task := h.taskFor(t, created.Server, store.JobDelete)
			if err := h.o.Delete(ctx, task); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := h.st.GetServer(ctx, created.Server.ID); !hearthErrors.IsNotFound(err) {
				t.Errorf("server still present: %v", err)
			}
			jobs, _ := h.st.ListJobs(ctx, created.Server.ID)
			if len(jobs) != 0 {
				t.Errorf("%d jobs survived delete", len(jobs))
			}
		})
	}
}

func TestDelete_NeverCreated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.task(t, "terraria", store.JobDelete)

	if err := h.o.Delete(ctx, task); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	calls := h.rt.GetCallsFor("Remove")
	if len(calls) != 1 || calls[0].Args[0] != h.cfg.ContainerName(task.Server.ID) {
		t.Errorf("Remove calls = %+v, want removal by name", calls)
	}
}
