package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/hearth/internal/logging"
	"github.com/firefly-engineering/hearth/internal/tui"
)

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Interactive server picker",
	Long: `Opens an interactive TUI listing servers grouped by game.

Use arrow keys or j/k to navigate, / to filter.

Actions:
  Enter  - Show server details
  s      - Queue START
  x      - Queue STOP
  r      - Queue RESTART
  d      - Queue DELETE
  n      - Register a new server and queue CREATE
  q/Esc  - Quit`,
	Args: cobra.NoArgs,
	RunE: runPick,
}

func init() {
	rootCmd.AddCommand(pickCmd)
}

func runPick(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	logging.Debug("picker mode started")

	servers, err := a.Store.ListServers(ctx)
	if err != nil {
		return err
	}
	status := serverHealth(cmd, a)

	result, err := tui.RunPicker(servers, status, tui.PickerOptions{
		AllowCreate: true,
		Games:       a.Catalog.All(),
	})
	if err != nil {
		return fmt.Errorf("picker error: %w", err)
	}

	logging.Debug("picker result", "action", result.Action)

	switch {
	case result.Action == tui.ActionShow && result.Server != nil:
		return showServer(cmd, a, result.Server)

	case result.Action == tui.ActionNew && result.AddOptions != nil:
		opts := result.AddOptions
		srv, job, err := addServer(cmd, a, serverRequest{
			Name:      opts.Name,
			Game:      opts.Game,
			MemoryMiB: opts.MemoryMiB,
			CPUShares: opts.CPUShares,
		}, true)
		if err != nil {
			return err
		}
		logSuccess("Registered server %s (%s)", srv.Name, srv.ID)
		logInfo("Queued CREATE job %s", job.ID)

	case result.Server != nil:
		typ, ok := result.Action.JobType()
		if !ok {
			return nil
		}
		job, err := a.Jobs.Enqueue(ctx, result.Server.ID, typ)
		if err != nil {
			return err
		}
		logSuccess("Queued %s job %s for %s", job.Type, job.ID, result.Server.Name)
	}
	return nil
}
