package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/hearth/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain the job queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count queue messages by state",
	Args:  cobra.NoArgs,
	RunE:  runQueueStats,
}

var queuePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop finished messages beyond the configured retention",
	Args:  cobra.NoArgs,
	RunE:  runQueuePrune,
}

var recoverOlderThan time.Duration

var queueRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Make abandoned claims deliverable again",
	Long: `Returns messages claimed longer ago than --older-than to the ready state,
for example after a worker host died. Running workers do this on their own.`,
	Args: cobra.NoArgs,
	RunE: runQueueRecover,
}

func init() {
	queueRecoverCmd.Flags().DurationVar(&recoverOlderThan, "older-than", 0, "Claim age to treat as abandoned (default worker visibility timeout)")
	queueCmd.AddCommand(queueStatsCmd, queuePruneCmd, queueRecoverCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.Queue.Counts(ctx)
	if err != nil {
		return err
	}
	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), map[string]any{"queue": a.Queue.Name(), "counts": counts})
	}

	w := newTable(cmd.OutOrStdout(), "STATE", "MESSAGES")
	for _, state := range []string{queue.StateReady, queue.StateClaimed, queue.StateCompleted, queue.StateFailed} {
		fmt.Fprintf(w, "%s\t%d\n", state, counts[state])
	}
	return w.Flush()
}

func runQueuePrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Queue.Prune(ctx)
	if err != nil {
		return err
	}
	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), map[string]int64{"pruned": n})
	}
	logSuccess("Pruned %d message(s) (keeping %d completed, %d failed)",
		n, a.Config.Queue.KeepCompleted, a.Config.Queue.KeepFailed)
	return nil
}

func runQueueRecover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	age := recoverOlderThan
	if age <= 0 {
		age = a.Config.Worker.VisibilityTimeout.Duration
	}
	n, err := a.Queue.RecoverStale(ctx, age)
	if err != nil {
		return err
	}
	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), map[string]int64{"recovered": n})
	}
	logSuccess("Recovered %d abandoned message(s) older than %s", n, age)
	return nil
}
