package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Compare recorded server state with the container runtime",
	Long: `Reports servers whose container is missing or disagrees with the ledger,
and containers labelled for servers the ledger no longer knows.

Nothing is changed; queue start, stop or delete jobs to repair drift.
Exits non-zero when any server is unhealthy.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := health.Check(ctx, a.Store, a.Runtime)
	if err != nil {
		return err
	}

	if wantJSON() {
		if err := printJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else if len(results) == 0 {
		logInfo("No servers or managed containers found")
	} else {
		w := newTable(cmd.OutOrStdout(), "SERVER", "NAME", "RECORDED", "CONTAINER", "HEALTH", "SINCE", "DETAIL")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(r.ServerID), orDash(r.Name), orDash(string(r.Recorded)), r.Container,
				formatHealth(r.Status), orDash(r.Since), orDash(r.Detail))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if !health.Healthy(results) {
		summary := health.Summary(results)
		return errors.New(errors.ExitGeneralError, fmt.Sprintf("%d drifted, %d missing, %d orphaned",
			summary[health.StatusDrift], summary[health.StatusMissing], summary[health.StatusOrphan]))
	}
	return nil
}
