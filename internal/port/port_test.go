package port

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/database"
	hearthErrors "github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/runtime"
	"github.com/firefly-engineering/hearth/internal/store"
	"github.com/firefly-engineering/hearth/internal/system"
)

// fakeLedger is an in-memory Ledger.
type fakeLedger struct {
	mu       sync.Mutex
	used     map[int]bool
	owners   map[int]string
	usedErr  error
	released []int
}

func newFakeLedger(used ...int) *fakeLedger {
	l := &fakeLedger{used: map[int]bool{}, owners: map[int]string{}}
	for _, p := range used {
		l.used[p] = true
	}
	return l
}

func (l *fakeLedger) UsedHostPorts(ctx context.Context) (map[int]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.usedErr != nil {
		return nil, l.usedErr
	}
	out := make(map[int]bool, len(l.used))
	for p := range l.used {
		out[p] = true
	}
	return out, nil
}

func (l *fakeLedger) ReservePort(ctx context.Context, serverID string, p int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if owner, ok := l.owners[p]; ok && owner != serverID {
		return false, nil
	}
	l.owners[p] = serverID
	return true, nil
}

func (l *fakeLedger) ReleasePort(ctx context.Context, serverID string, p int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[p] == serverID {
		delete(l.owners, p)
	}
	l.released = append(l.released, p)
	return nil
}

var window = config.PortRange{From: 30000, To: 30009}

func newAllocator(ledger Ledger, rt *runtime.MockRuntime, probe *system.MockProbe) *Allocator {
	return New(window, ledger, rt, probe)
}

func TestAllocate_PrefersOneToOne(t *testing.T) {
	a := newAllocator(newFakeLedger(), runtime.NewMockRuntime(), system.NewMockProbe())

	got, err := a.Allocate(context.Background(), "srv", 25565, nil)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if got != 25565 {
		t.Errorf("Allocate = %d, want 25565", got)
	}
}

func TestAllocate_FallsBackToWindow(t *testing.T) {
	tests := []struct {
		name     string
		ledger   *fakeLedger
		rt       func() *runtime.MockRuntime
		probe    *system.MockProbe
		reserved map[int]bool
		want     int
	}{
		{
			name:     "reserved in this job",
			ledger:   newFakeLedger(),
			rt:       runtime.NewMockRuntime,
			probe:    system.NewMockProbe(),
			reserved: map[int]bool{2456: true, 30000: true},
			want:     30001,
		},
		{
			name:   "held in ledger",
			ledger: newFakeLedger(2456, 30000, 30001),
			rt:     runtime.NewMockRuntime,
			probe:  system.NewMockProbe(),
			want:   30002,
		},
		{
			name:   "published by stopped container",
			ledger: newFakeLedger(),
			rt: func() *runtime.MockRuntime {
				m := runtime.NewMockRuntime()
				m.AddContainer("other", runtime.StatusStopped, runtime.PortBinding{ContainerPort: 2456, HostPort: 2456, Protocol: "udp"})
				return m
			},
			probe: system.NewMockProbe(),
			want:  30000,
		},
		{
			name:   "host listener",
			ledger: newFakeLedger(),
			rt:     runtime.NewMockRuntime,
			probe:  system.NewMockProbe(2456, 30000),
			want:   30001,
		},
		{
			name:   "out-of-range container port",
			ledger: newFakeLedger(),
			rt:     runtime.NewMockRuntime,
			probe:  system.NewMockProbe(),
			want:   30000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAllocator(tt.ledger, tt.rt(), tt.probe)
			containerPort := 2456
			if tt.name == "out-of-range container port" {
				containerPort = 70000
			}

			got, err := a.Allocate(context.Background(), "srv", containerPort, tt.reserved)
			if err != nil {
				t.Fatalf("Allocate failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Allocate = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAllocate_SequentialCallsAreDistinct(t *testing.T) {
	a := newAllocator(newFakeLedger(), runtime.NewMockRuntime(), system.NewMockProbe())
	reserved := map[int]bool{}

	for i := 0; i < 8; i++ {
		p, err := a.Allocate(context.Background(), "srv", 7777, reserved)
		if err != nil {
			t.Fatalf("Allocate #%d failed: %v", i, err)
		}
		if reserved[p] {
			t.Fatalf("Allocate #%d returned duplicate port %d", i, p)
		}
		reserved[p] = true
	}
	if !reserved[7777] {
		t.Error("first allocation should have been the 1:1 port")
	}
}

func TestAllocate_ReservationHeldByOtherServer(t *testing.T) {
	ledger := newFakeLedger()
	a := newAllocator(ledger, runtime.NewMockRuntime(), system.NewMockProbe())
	ctx := context.Background()

	first, err := a.Allocate(ctx, "a", 7777, nil)
	if err != nil || first != 7777 {
		t.Fatalf("first Allocate = %d, %v", first, err)
	}
	// Server b runs concurrently with its own empty in-job set.
	second, err := a.Allocate(ctx, "b", 7777, nil)
	if err != nil {
		t.Fatalf("second Allocate failed: %v", err)
	}
	if second == first {
		t.Errorf("two servers were given port %d", first)
	}
}

func TestAllocate_ReleasesRejectedReservations(t *testing.T) {
	ledger := newFakeLedger()
	a := newAllocator(ledger, runtime.NewMockRuntime(), system.NewMockProbe(7777))

	got, err := a.Allocate(context.Background(), "srv", 7777, nil)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if got != 30000 {
		t.Errorf("Allocate = %d, want 30000", got)
	}
	if _, held := ledger.owners[7777]; held {
		t.Error("reservation for busy port 7777 was not released")
	}
	if ledger.owners[30000] != "srv" {
		t.Error("chosen port should stay reserved")
	}
}

func TestAllocate_Exhausted(t *testing.T) {
	busy := []int{2456}
	for p := window.From; p <= window.To; p++ {
		busy = append(busy, p)
	}
	a := newAllocator(newFakeLedger(busy...), runtime.NewMockRuntime(), system.NewMockProbe())

	_, err := a.Allocate(context.Background(), "srv", 2456, nil)
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if hearthErrors.KindOf(err) != hearthErrors.KindResourceExhaustion {
		t.Errorf("KindOf = %q, want resource-exhaustion", hearthErrors.KindOf(err))
	}
}

func TestAllocate_AuthorityFailures(t *testing.T) {
	t.Run("runtime down aborts", func(t *testing.T) {
		down := errors.New("daemon unreachable")
		rt := runtime.NewMockRuntime()
		rt.SetError("List", down)
		ledger := newFakeLedger()
		a := newAllocator(ledger, rt, system.NewMockProbe())

		_, err := a.Allocate(context.Background(), "srv", 2456, nil)
		if hearthErrors.KindOf(err) != hearthErrors.KindResourceExhaustion {
			t.Fatalf("Allocate error = %v, want resource-exhaustion", err)
		}
		if !errors.Is(err, down) {
			t.Errorf("Allocate error = %v, want the listing failure, not window exhaustion", err)
		}
		if len(ledger.owners) != 0 {
			t.Errorf("reservations leaked: %v", ledger.owners)
		}
	})

	t.Run("probe down counts as busy", func(t *testing.T) {
		probeErr := errors.New("ss failed")
		probe := system.NewMockProbe()
		probe.Err = probeErr
		a := newAllocator(newFakeLedger(), runtime.NewMockRuntime(), probe)

		_, err := a.Allocate(context.Background(), "srv", 2456, nil)
		if hearthErrors.KindOf(err) != hearthErrors.KindResourceExhaustion {
			t.Fatalf("Allocate error = %v, want resource-exhaustion", err)
		}
		if errors.Is(err, probeErr) {
			t.Errorf("Allocate error = %v, want window exhaustion", err)
		}
	})

	t.Run("ledger down", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.usedErr = errors.New("database locked")
		a := newAllocator(ledger, runtime.NewMockRuntime(), system.NewMockProbe())

		if _, err := a.Allocate(context.Background(), "srv", 2456, nil); err == nil {
			t.Fatal("expected error when ledger is unavailable")
		}
	})
}

func TestCheckDaemon(t *testing.T) {
	rt := runtime.NewMockRuntime()
	rt.AddContainer("running", runtime.StatusRunning, runtime.PortBinding{ContainerPort: 25565, HostPort: 25565, Protocol: "tcp"})
	rt.AddContainer("stopped", runtime.StatusStopped, runtime.PortBinding{ContainerPort: 7777, HostPort: 30005, Protocol: "tcp"})
	a := newAllocator(newFakeLedger(), rt, system.NewMockProbe())
	ctx := context.Background()

	for port, want := range map[int]bool{25565: true, 30005: true, 7777: false, 30000: false} {
		got, err := a.CheckDaemon(ctx, port)
		if err != nil {
			t.Fatalf("CheckDaemon(%d) failed: %v", port, err)
		}
		if got != want {
			t.Errorf("CheckDaemon(%d) = %v, want %v", port, got, want)
		}
	}
}

func TestCheck_Report(t *testing.T) {
	rt := runtime.NewMockRuntime()
	rt.SetError("List", errors.New("down"))
	a := newAllocator(newFakeLedger(30000), rt, system.NewMockProbe())

	r := a.Check(context.Background(), 30000)
	if !r.Ledger || r.DaemonErr == nil || r.System {
		t.Errorf("report = %+v", r)
	}
	if !r.Busy() {
		t.Error("report with ledger hit should be busy")
	}
}

func TestAllocate_WithStore(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "hearth.db"))
	if err != nil {
		t.Fatalf("database.Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	st, err := store.New(ctx, db)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}

	existing := &store.Server{Name: "old", GameKey: "terraria"}
	st.CreateServer(ctx, existing)
	st.SetServerContainer(ctx, existing.ID, "c1", []store.PortMapping{{ContainerPort: 7777, HostPort: 7777, Protocol: "tcp"}}, store.ServerStopped)
	fresh := &store.Server{Name: "new", GameKey: "terraria"}
	st.CreateServer(ctx, fresh)

	a := New(window, st, runtime.NewMockRuntime(), system.NewMockProbe())
	got, err := a.Allocate(ctx, fresh.ID, 7777, nil)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if got != 30000 {
		t.Errorf("Allocate = %d, want 30000", got)
	}
	r, err := st.PortReservation(ctx, 30000)
	if err != nil || r == nil || r.ServerID != fresh.ID {
		t.Errorf("reservation = %+v, %v", r, err)
	}
}
