package cmd

import (
	"fmt"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/hearth/internal/app"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/health"
	"github.com/firefly-engineering/hearth/internal/store"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Register and inspect game servers",
}

var (
	addGame      string
	addMemory    int64
	addCPU       int64
	addOrg       string
	addCreatedBy string
	addCreate    bool
)

var serverAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a new server",
	Long: `Records a server in CREATING state. No container exists until a CREATE
job runs; pass --create to queue one immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runServerAdd,
}

var serverListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List servers with their container health",
	Args:    cobra.NoArgs,
	RunE:    runServerList,
}

var serverShowCmd = &cobra.Command{
	Use:   "show <server-id>",
	Short: "Show a server, its ports and recent jobs",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerShow,
}

func init() {
	serverAddCmd.Flags().StringVarP(&addGame, "game", "g", "", "Game key from the catalog (required)")
	serverAddCmd.Flags().Int64Var(&addMemory, "memory", 0, "Memory limit in MiB (0 for none)")
	serverAddCmd.Flags().Int64Var(&addCPU, "cpu", 0, "Relative CPU shares (0 for runtime default)")
	serverAddCmd.Flags().StringVar(&addOrg, "org", "", "Owning organization ID")
	serverAddCmd.Flags().StringVar(&addCreatedBy, "created-by", "", "Requesting user (default current user)")
	serverAddCmd.Flags().BoolVar(&addCreate, "create", false, "Queue a CREATE job right away")
	_ = serverAddCmd.MarkFlagRequired("game")

	serverCmd.AddCommand(serverAddCmd, serverListCmd, serverShowCmd)
	rootCmd.AddCommand(serverCmd)
}

// serverRequest is a validated registration.
type serverRequest struct {
	Name      string
	Game      string
	MemoryMiB int64
	CPUShares int64
	Org       string
	CreatedBy string
}

// addServer validates req against the catalog and records the server.
func addServer(cmd *cobra.Command, a *app.App, req serverRequest, create bool) (*store.Server, *store.Job, error) {
	ctx := cmd.Context()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, errors.ValidationError("server name must not be empty")
	}
	if req.MemoryMiB < 0 || req.CPUShares < 0 {
		return nil, nil, errors.ValidationError("memory and cpu must not be negative")
	}
	if _, err := a.Catalog.Get(req.Game); err != nil {
		return nil, nil, err
	}
	if req.CreatedBy == "" {
		if u, err := user.Current(); err == nil {
			req.CreatedBy = u.Username
		}
	}

	srv := &store.Server{
		OrganizationID: req.Org,
		Name:           name,
		GameKey:        req.Game,
		MemoryMiB:      req.MemoryMiB,
		CPUShares:      req.CPUShares,
		CreatedBy:      req.CreatedBy,
	}
	if err := a.Store.CreateServer(ctx, srv); err != nil {
		return nil, nil, err
	}

	if !create {
		return srv, nil, nil
	}
	job, err := a.Jobs.EnqueueCreate(ctx, srv.ID)
	if err != nil {
		return srv, nil, err
	}
	return srv, job, nil
}

func runServerAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	srv, job, err := addServer(cmd, a, serverRequest{
		Name:      args[0],
		Game:      addGame,
		MemoryMiB: addMemory,
		CPUShares: addCPU,
		Org:       addOrg,
		CreatedBy: addCreatedBy,
	}, addCreate)
	if err != nil {
		return err
	}

	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), map[string]any{"server": srv, "job": job})
	}
	logSuccess("Registered server %s (%s)", srv.Name, srv.ID)
	if job != nil {
		logInfo("Queued CREATE job %s", job.ID)
	} else {
		logInfo("Provision it with: hearth-ctl create %s", srv.ID)
	}
	return nil
}

func runServerList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	servers, err := a.Store.ListServers(ctx)
	if err != nil {
		return err
	}
	status := serverHealth(cmd, a)

	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), servers)
	}
	if len(servers) == 0 {
		logInfo("No servers found. Register one with: hearth-ctl server add <name> --game <game>")
		return nil
	}

	w := newTable(cmd.OutOrStdout(), "ID", "NAME", "GAME", "STATUS", "PORTS", "HEALTH")
	for _, srv := range servers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(srv.ID), srv.Name, srv.GameKey, srv.Status, formatPorts(srv.Ports), formatHealth(status[srv.ID]))
	}
	return w.Flush()
}

// serverHealth maps server IDs to their health. Runtime failures degrade
// to an empty map with a warning.
func serverHealth(cmd *cobra.Command, a *app.App) map[string]health.Status {
	results, err := health.Check(cmd.Context(), a.Store, a.Runtime)
	if err != nil {
		logWarning("Container health unavailable: %v", err)
		return map[string]health.Status{}
	}
	status := make(map[string]health.Status, len(results))
	for _, r := range results {
		if r.Status != health.StatusOrphan {
			status[r.ServerID] = r.Status
		}
	}
	return status
}

func formatHealth(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return "✓ healthy"
	case health.StatusDrift:
		return "⚠ drift"
	case health.StatusMissing:
		return "✗ missing"
	case health.StatusPending:
		return "○ pending"
	case "":
		return "?"
	default:
		return string(s)
	}
}

func runServerShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := a.Store.GetServer(ctx, args[0])
	if err != nil {
		return err
	}
	return showServer(cmd, a, srv)
}

func showServer(cmd *cobra.Command, a *app.App, srv *store.Server) error {
	jobs, err := a.Store.ListJobs(cmd.Context(), srv.ID)
	if err != nil {
		return err
	}

	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), map[string]any{"server": srv, "jobs": jobs})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:         %s\n", srv.ID)
	fmt.Fprintf(out, "Name:       %s\n", srv.Name)
	fmt.Fprintf(out, "Game:       %s\n", srv.GameKey)
	fmt.Fprintf(out, "Status:     %s\n", srv.Status)
	fmt.Fprintf(out, "Container:  %s\n", orDash(srv.ContainerID))
	fmt.Fprintf(out, "Ports:      %s\n", formatPorts(srv.Ports))
	if srv.MemoryMiB > 0 {
		fmt.Fprintf(out, "Memory:     %d MiB\n", srv.MemoryMiB)
	}
	if srv.CPUShares > 0 {
		fmt.Fprintf(out, "CPU shares: %d\n", srv.CPUShares)
	}
	fmt.Fprintf(out, "Created:    %s by %s\n", srv.CreatedAt.Local().Format("2006-01-02 15:04:05"), orDash(srv.CreatedBy))

	if len(jobs) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	return writeJobTable(out, jobs, 5)
}
