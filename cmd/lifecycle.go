package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/hearth/internal/store"
)

var lifecycleWatch bool

// lifecycleCommands are the job-enqueueing verbs, one per job type.
var lifecycleCommands = []struct {
	typ   store.JobType
	short string
	long  string
}{
	{store.JobCreate, "Provision a registered server's container",
		"Pulls the game image, allocates host ports and creates the container, leaving it stopped."},
	{store.JobStart, "Start a server's container", ""},
	{store.JobStop, "Stop a server's container", "The container is given the configured grace period before it is killed."},
	{store.JobRestart, "Restart a server's container", ""},
	{store.JobDelete, "Remove a server, its container and its data",
		"Removes the container, releases its ports, deletes the data directory and erases the server and its jobs."},
}

func init() {
	for _, lc := range lifecycleCommands {
		typ := lc.typ
		c := &cobra.Command{
			Use:   strings.ToLower(string(typ)) + " <server-id>",
			Short: lc.short,
			Long:  strings.TrimSpace(lc.short + ".\n\n" + lc.long + "\n\nThe job is queued; a running worker executes it."),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runLifecycle(cmd, args[0], typ)
			},
		}
		c.Flags().BoolVarP(&lifecycleWatch, "watch", "w", false, "Follow the job until it finishes")
		rootCmd.AddCommand(c)
	}
}

func runLifecycle(cmd *cobra.Command, serverID string, typ store.JobType) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := a.Store.GetServer(ctx, serverID)
	if err != nil {
		return err
	}
	if typ != store.JobCreate && typ != store.JobDelete && srv.ContainerID == "" {
		logWarning("Server %s has no container yet; the job will fail unless a CREATE runs first", srv.Name)
	}

	job, err := a.Jobs.Enqueue(ctx, srv.ID, typ)
	if err != nil {
		return err
	}

	if lifecycleWatch {
		return watchJob(cmd, a.Store, job.ID)
	}
	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), job)
	}
	logSuccess("Queued %s job %s for %s", job.Type, job.ID, srv.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "Follow it with: hearth-ctl watch %s\n", job.ID)
	return nil
}
