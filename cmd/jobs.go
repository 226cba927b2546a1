package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/store"
	"github.com/firefly-engineering/hearth/internal/tui"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs <server-id>",
	Short: "List a server's jobs, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobs,
}

var jobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "Show one job with its log",
	Args:  cobra.ExactArgs(1),
	RunE:  runJob,
}

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job until it finishes",
	Long: `Polls a job and shows its progress and log until it succeeds or fails.

Exits non-zero when the job fails. Detaching with q leaves the job running.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 0, "Show only the newest n jobs")
	rootCmd.AddCommand(jobsCmd, jobCmd, watchCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Store.GetServer(ctx, args[0]); err != nil {
		return err
	}
	jobs, err := a.Store.ListJobs(ctx, args[0])
	if err != nil {
		return err
	}

	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), jobs)
	}
	if len(jobs) == 0 {
		logInfo("No jobs recorded for server %s", args[0])
		return nil
	}
	return writeJobTable(cmd.OutOrStdout(), jobs, jobsLimit)
}

// writeJobTable prints the newest limit jobs, or all when limit is 0.
func writeJobTable(out io.Writer, jobs []*store.Job, limit int) error {
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[len(jobs)-limit:]
	}
	w := newTable(out, "JOB", "TYPE", "STATUS", "PROGRESS", "CREATED", "ERROR")
	for _, j := range jobs {
		errText := "-"
		if j.Error != nil {
			errText = truncate(*j.Error, 60)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			j.ID, j.Type, j.Status, j.Progress, j.CreatedAt.Local().Format("2006-01-02 15:04:05"), errText)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.Store.GetJob(ctx, args[0])
	if err != nil {
		return err
	}
	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), job)
	}
	writeJob(cmd.OutOrStdout(), job)
	return nil
}

func writeJob(out io.Writer, job *store.Job) {
	fmt.Fprintf(out, "Job:       %s\n", job.ID)
	fmt.Fprintf(out, "Server:    %s\n", job.ServerID)
	fmt.Fprintf(out, "Type:      %s\n", job.Type)
	fmt.Fprintf(out, "Status:    %s (%d%%)\n", job.Status, job.Progress)
	fmt.Fprintf(out, "Created:   %s\n", job.CreatedAt.Local().Format(time.DateTime))
	if job.StartedAt != nil {
		fmt.Fprintf(out, "Started:   %s\n", job.StartedAt.Local().Format(time.DateTime))
	}
	if job.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:  %s\n", job.FinishedAt.Local().Format(time.DateTime))
	}
	if job.Error != nil {
		fmt.Fprintf(out, "Error:     %s\n", *job.Error)
	}
	if job.Logs != "" {
		fmt.Fprintf(out, "\n%s", job.Logs)
		if !strings.HasSuffix(job.Logs, "\n") {
			fmt.Fprintln(out)
		}
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Store.GetJob(ctx, args[0]); err != nil {
		return err
	}
	return watchJob(cmd, a.Store, args[0])
}

// watchJob follows a job, interactively on a terminal and as plain log
// lines otherwise. A failed job is returned as an error.
func watchJob(cmd *cobra.Command, loader tui.JobLoader, jobID string) error {
	ctx := cmd.Context()

	var (
		job *store.Job
		err error
	)
	if f, ok := cmd.OutOrStdout().(*os.File); ok && term.IsTerminal(int(f.Fd())) && !wantJSON() {
		job, err = tui.RunWatch(ctx, loader, jobID, tui.DefaultWatchInterval)
	} else {
		job, err = followJob(ctx, cmd.OutOrStdout(), loader, jobID, tui.DefaultWatchInterval)
	}
	if err != nil {
		return err
	}

	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), job)
	}
	switch job.Status {
	case store.JobSuccess:
		logSuccess("%s job %s succeeded", job.Type, job.ID)
	case store.JobFailed:
		msg := "unknown error"
		if job.Error != nil {
			msg = *job.Error
		}
		return errors.New(errors.ExitGeneralError, fmt.Sprintf("%s job %s failed: %s", job.Type, job.ID, msg))
	default:
		logInfo("Detached; %s job %s is %s", job.Type, job.ID, job.Status)
	}
	return nil
}

// followJob polls until the job is terminal, copying new log output and
// progress changes to out.
func followJob(ctx context.Context, out io.Writer, loader tui.JobLoader, jobID string, interval time.Duration) (*store.Job, error) {
	printed := 0
	lastProgress := -1
	quiet := wantJSON()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := loader.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if !quiet {
			if job.Progress != lastProgress {
				fmt.Fprintf(out, "[%3d%%] %s\n", job.Progress, job.Status)
				lastProgress = job.Progress
			}
			if len(job.Logs) > printed {
				fmt.Fprint(out, job.Logs[printed:])
				printed = len(job.Logs)
			}
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, nil
		case <-ticker.C:
		}
	}
}
