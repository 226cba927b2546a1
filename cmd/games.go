package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List the game catalog",
	Long: `Lists the built-in games merged with the [[games]] entries of the host
config. The key is what "server add --game" expects.`,
	Args: cobra.NoArgs,
	RunE: runGames,
}

func init() {
	rootCmd.AddCommand(gamesCmd)
}

func runGames(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	all := a.Catalog.All()
	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), all)
	}

	w := newTable(cmd.OutOrStdout(), "GAME", "NAME", "IMAGE", "PORTS", "ADAPTER")
	for _, g := range all {
		ports := make([]string, len(g.Ports))
		for i, p := range g.Ports {
			ports[i] = fmt.Sprintf("%d/%s", p.ContainerPort, p.Protocol)
		}
		portStr := strings.Join(ports, ",")
		if portStr == "" {
			portStr = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", g.Key, g.Name, g.Image, portStr, g.Adapter)
	}
	return w.Flush()
}
