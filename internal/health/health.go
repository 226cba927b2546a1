package health

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/orchestrator"
	"github.com/firefly-engineering/hearth/internal/runtime"
	"github.com/firefly-engineering/hearth/internal/store"
)

// Status represents how a server's recorded state matches its container
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusDrift   Status = "drift"
	StatusMissing Status = "missing"
	StatusPending Status = "pending"
	StatusOrphan  Status = "orphan"
)

// Ledger is the recorded state Check compares against the runtime.
type Ledger interface {
	ListServers(ctx context.Context) ([]*store.Server, error)

	// ActiveJobs returns each server's oldest PENDING or RUNNING job.
	ActiveJobs(ctx context.Context) (map[string]*store.Job, error)
}

// Result is the health of one server, or of one orphaned container.
type Result struct {
	ServerID    string                  `json:"serverId"`
	Name        string                  `json:"name,omitempty"`
	Recorded    store.ServerStatus      `json:"recorded,omitempty"`
	ContainerID string                  `json:"containerId,omitempty"`
	Container   runtime.ContainerStatus `json:"container"`
	Status      Status                  `json:"status"`
	Detail      string                  `json:"detail,omitempty"`

	// Since is how long ago the recorded state last changed.
	Since string `json:"since,omitempty"`
}

// expected maps the server statuses that pin a container state.
var expected = map[store.ServerStatus]runtime.ContainerStatus{
	store.ServerRunning: runtime.StatusRunning,
	store.ServerStopped: runtime.StatusStopped,
}

// Check compares every server against the runtime's containers. The
// ledger is never modified. A server with an unfinished job is pending
// whatever its container shows, since the job may be mid-way through
// changing it. Containers labelled for a server id that is not in the
// ledger are reported as orphans.
func Check(ctx context.Context, ledger Ledger, rt runtime.Runtime) ([]Result, error) {
	list, err := ledger.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	active, err := ledger.ActiveJobs(ctx)
	if err != nil {
		return nil, err
	}
	containers, err := rt.List(ctx)
	if err != nil {
		return nil, errors.ContainerFailed("list", err)
	}

	byID := make(map[string]*runtime.ContainerInfo, len(containers))
	byServer := make(map[string]*runtime.ContainerInfo, len(containers))
	for _, c := range containers {
		byID[c.ID] = c
		if id := c.Labels[orchestrator.LabelServer]; id != "" {
			byServer[id] = c
		}
	}

	now := time.Now()
	known := make(map[string]bool, len(list))
	results := make([]Result, 0, len(list))
	for _, srv := range list {
		known[srv.ID] = true
		r := checkServer(srv, byID, byServer)
		if job, ok := active[srv.ID]; ok && r.Status != StatusHealthy {
			r.Status = StatusPending
			r.Detail = fmt.Sprintf("%s job %s is %s", job.Type, job.ID, job.Status)
		}
		if !srv.UpdatedAt.IsZero() {
			r.Since = formatDuration(now.Sub(srv.UpdatedAt))
		}
		results = append(results, r)
	}

	for id, c := range byServer {
		if known[id] {
			continue
		}
		results = append(results, Result{
			ServerID:    id,
			ContainerID: c.ID,
			Container:   c.Status,
			Status:      StatusOrphan,
			Detail:      fmt.Sprintf("container %s belongs to no server", c.Name),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ServerID < results[j].ServerID
	})
	return results, nil
}

func checkServer(srv *store.Server, byID, byServer map[string]*runtime.ContainerInfo) Result {
	r := Result{
		ServerID:    srv.ID,
		Name:        srv.Name,
		Recorded:    srv.Status,
		ContainerID: srv.ContainerID,
		Container:   runtime.StatusNotFound,
	}

	if srv.ContainerID == "" {
		if c, ok := byServer[srv.ID]; ok {
			r.Container = c.Status
			r.Status = StatusDrift
			r.Detail = fmt.Sprintf("untracked container %s carries this server's label", c.ID)
			return r
		}
		r.Status = StatusPending
		r.Detail = "no container created yet"
		return r
	}

	c, ok := byID[srv.ContainerID]
	if !ok {
		r.Status = StatusMissing
		r.Detail = "recorded container no longer exists"
		return r
	}
	r.Container = c.Status

	want, pinned := expected[srv.Status]
	switch {
	case !pinned:
		r.Status = StatusDrift
		r.Detail = fmt.Sprintf("server is %s with container %s", srv.Status, c.Status)
	case c.Status != want:
		r.Status = StatusDrift
		r.Detail = fmt.Sprintf("recorded %s, container %s", srv.Status, c.Status)
	default:
		r.Status = StatusHealthy
	}
	return r
}

// Summary counts results by status.
func Summary(results []Result) map[Status]int {
	counts := make(map[Status]int)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}

// Healthy reports whether every result is healthy or pending.
func Healthy(results []Result) bool {
	for _, r := range results {
		if r.Status != StatusHealthy && r.Status != StatusPending {
			return false
		}
	}
	return true
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
