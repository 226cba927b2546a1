package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/hearth/internal/logging"
)

// Table and JSON are the values accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
)

var (
	configPath   string
	verbose      bool
	jsonOutput   bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "hearth-ctl",
	Short: "Game server lifecycle control",
	Long: `hearth-ctl manages game server containers on this host.

Every lifecycle change (create, start, stop, restart, delete) is recorded
as a job and queued. A worker pool, started with "hearth-ctl worker",
executes the jobs against the container runtime, one at a time per server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format := logging.FormatText
		if jsonOutput {
			format = logging.FormatJSON
		}
		if err := logging.Setup(verbose, format, os.Stderr); err != nil {
			return err
		}
		switch outputFormat {
		case outputTable, outputJSON:
			return nil
		default:
			return fmt.Errorf("invalid --output %q (want %s or %s)", outputFormat, outputTable, outputJSON)
		}
	},
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Host config file (default /etc/hearth/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", outputTable, "Result format: table or json")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)
