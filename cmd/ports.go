package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/port"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Inspect host port usage",
}

var portsCheckCmd = &cobra.Command{
	Use:   "check <port>...",
	Short: "Ask every port authority whether host ports are taken",
	Long: `Reports, for each port, whether the ledger, the container runtime or the
host's own sockets hold it. Nothing is reserved. Exits non-zero when any
port is busy.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPortsCheck,
}

var portsUsedCmd = &cobra.Command{
	Use:   "used",
	Short: "List host ports recorded in the ledger",
	Args:  cobra.NoArgs,
	RunE:  runPortsUsed,
}

func init() {
	portsCmd.AddCommand(portsCheckCmd, portsUsedCmd)
	rootCmd.AddCommand(portsCmd)
}

func runPortsCheck(cmd *cobra.Command, args []string) error {
	ports := make([]int, len(args))
	for i, arg := range args {
		p, err := strconv.Atoi(arg)
		if err != nil || p < 1 || p > 65535 {
			return errors.ValidationError(fmt.Sprintf("invalid port %q", arg))
		}
		ports[i] = p
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reports := make([]port.Report, len(ports))
	busy := 0
	for i, p := range ports {
		reports[i] = a.Ports.Check(ctx, p)
		if reports[i].Busy() {
			busy++
		}
	}

	if wantJSON() {
		if err := printJSON(cmd.OutOrStdout(), reportsJSON(reports, a.Config.Ports.Contains)); err != nil {
			return err
		}
	} else {
		w := newTable(cmd.OutOrStdout(), "PORT", "WINDOW", "LEDGER", "DAEMON", "SYSTEM", "RESULT")
		for _, r := range reports {
			result := "free"
			if r.Busy() {
				result = "busy"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.Port,
				yesNo(a.Config.Ports.Contains(r.Port)),
				authority(r.Ledger, r.LedgerErr), authority(r.Daemon, r.DaemonErr), authority(r.System, r.SystemErr),
				result)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if busy > 0 {
		return errors.New(errors.ExitPortAllocation, fmt.Sprintf("%d of %d port(s) busy", busy, len(reports)))
	}
	return nil
}

type portReportJSON struct {
	Port     int    `json:"port"`
	InWindow bool   `json:"inWindow"`
	Ledger   bool   `json:"ledger"`
	Daemon   bool   `json:"daemon"`
	System   bool   `json:"system"`
	Busy     bool   `json:"busy"`
	Error    string `json:"error,omitempty"`
}

func reportsJSON(reports []port.Report, inWindow func(int) bool) []portReportJSON {
	out := make([]portReportJSON, len(reports))
	for i, r := range reports {
		out[i] = portReportJSON{
			Port:     r.Port,
			InWindow: inWindow(r.Port),
			Ledger:   r.Ledger,
			Daemon:   r.Daemon,
			System:   r.System,
			Busy:     r.Busy(),
		}
		for _, err := range []error{r.LedgerErr, r.DaemonErr, r.SystemErr} {
			if err != nil {
				out[i].Error = err.Error()
				break
			}
		}
	}
	return out
}

func authority(inUse bool, err error) string {
	if err != nil {
		return "error"
	}
	if inUse {
		return "in use"
	}
	return "-"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func runPortsUsed(cmd *cobra.Command, args []string) error {
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

	type row struct {
		HostPort      int    `json:"hostPort"`
		ContainerPort int    `json:"containerPort"`
		Protocol      string `json:"protocol"`
		ServerID      string `json:"serverId"`
		Server        string `json:"server"`
	}
	var rows []row
	for _, srv := range servers {
		for _, m := range srv.Ports {
			rows = append(rows, row{m.HostPort, m.ContainerPort, m.Protocol, srv.ID, srv.Name})
		}
	}

	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), rows)
	}
	if len(rows) == 0 {
		logInfo("No host ports recorded (window %d-%d)", a.Config.Ports.From, a.Config.Ports.To)
		return nil
	}
	w := newTable(cmd.OutOrStdout(), "HOST", "CONTAINER", "PROTO", "SERVER")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s (%s)\n", r.HostPort, r.ContainerPort, r.Protocol, r.Server, shortID(r.ServerID))
	}
	return w.Flush()
}
