package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/hearth/internal/audit"
)

var auditLogCmd = &cobra.Command{
	Use:   "audit-log <server-id>",
	Short: "Display the job audit trail for a server",
	Long: `Prints every recorded job event for a server: enqueued, started,
succeeded, failed, skipped redeliveries and delete cleanup. The trail
outlives the server itself.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuditLog,
}

var auditLogJSONLines bool

func init() {
	auditLogCmd.Flags().BoolVar(&auditLogJSONLines, "jsonl", false, "Output events as JSON lines")
	rootCmd.AddCommand(auditLogCmd)
}

func runAuditLog(cmd *cobra.Command, args []string) error {
	serverID := args[0]

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	events, err := a.Audit.Events(serverID)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	switch {
	case wantJSON():
		if events == nil {
			events = []audit.Event{}
		}
		return printJSON(out, events)
	case len(events) == 0:
		logInfo("Server %s has no recorded events", serverID)
		return nil
	case auditLogJSONLines:
		enc := json.NewEncoder(out)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	for _, e := range events {
		fmt.Fprintln(out, formatEvent(e))
	}
	return nil
}

// formatEvent renders "[time] type jobtype job (details)".
func formatEvent(e audit.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %-9s %-7s %s", e.Timestamp.Local().Format(time.DateTime), e.Type, e.JobType, orDash(e.Job))
	if e.Details != "" {
		fmt.Fprintf(&b, " (%s)", e.Details)
	}
	return b.String()
}
