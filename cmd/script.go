package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/games"
	"github.com/firefly-engineering/hearth/internal/script"
	"github.com/firefly-engineering/hearth/internal/store"
	"github.com/firefly-engineering/hearth/internal/system"
)

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Validate and install startup scripts for custom servers",
}

var scriptValidateCmd = &cobra.Command{
	Use:   "validate <file|->",
	Short: "Check a startup script without storing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runScriptValidate,
}

var (
	scriptPorts []string
	scriptEnv   []string
)

var scriptSetCmd = &cobra.Command{
	Use:   "set <server-id> <file|->",
	Short: "Store a validated startup script for a custom server",
	Long: `Sanitizes and validates the script, then stores it for the server.

Without --port the ports are guessed from the script (SERVER_PORT=27015,
--port 2302 and similar); the first one is published. A server whose
container already exists picks up the new script on its next restart;
port changes need the server to be deleted and created again.`,
	Args: cobra.ExactArgs(2),
	RunE: runScriptSet,
}

var scriptShowCmd = &cobra.Command{
	Use:   "show <server-id>",
	Short: "Print a server's stored startup script",
	Args:  cobra.ExactArgs(1),
	RunE:  runScriptShow,
}

func init() {
	scriptSetCmd.Flags().StringSliceVarP(&scriptPorts, "port", "p", nil, "Container port to publish, e.g. 27015 or 27015/udp")
	scriptSetCmd.Flags().StringArrayVarP(&scriptEnv, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	scriptCmd.AddCommand(scriptValidateCmd, scriptSetCmd, scriptShowCmd)
	rootCmd.AddCommand(scriptCmd)
}

func readScript(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), script.MaxSize+1))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", errors.Wrap(errors.ExitGeneralError, "failed to read script", err)
	}
	return script.Sanitize(string(data)), nil
}

func printValidation(out io.Writer, r script.Result) {
	fmt.Fprintf(out, "Size:   %d bytes\n", r.Size)
	fmt.Fprintf(out, "SHA256: %s\n", r.Hash)
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  ✗ %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  ⚠ %s\n", w)
	}
}

func runScriptValidate(cmd *cobra.Command, args []string) error {
	content, err := readScript(cmd, args[0])
	if err != nil {
		return err
	}
	r := script.Validate(content)

	if wantJSON() {
		if err := printJSON(cmd.OutOrStdout(), r); err != nil {
			return err
		}
	} else {
		printValidation(cmd.OutOrStdout(), r)
	}
	if !r.Valid {
		return errors.ScriptRejected(r.Errors)
	}
	if !wantJSON() {
		logSuccess("Script is valid")
	}
	return nil
}

func parseEnv(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, errors.ValidationError(fmt.Sprintf("invalid --env %q, want KEY=VALUE", p))
		}
		env[strings.TrimSpace(k)] = v
	}
	return env, nil
}

func runScriptSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	serverID := args[0]

	content, err := readScript(cmd, args[1])
	if err != nil {
		return err
	}
	r := script.Validate(content)
	if !r.Valid {
		printValidation(cmd.ErrOrStderr(), r)
		return errors.ScriptRejected(r.Errors)
	}
	for _, w := range r.Warnings {
		logWarning("%s", w)
	}

	ports, err := games.ParsePorts(scriptPorts)
	if err != nil {
		return errors.ValidationError(err.Error())
	}
	if len(ports) == 0 {
		ports = script.ExtractPorts(content)
	}
	env, err := parseEnv(scriptEnv)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := a.Store.GetServer(ctx, serverID)
	if err != nil {
		return err
	}
	game, err := a.Catalog.Get(srv.GameKey)
	if err != nil {
		return err
	}
	if !game.IsCustom() {
		return errors.New(errors.ExitConflict,
			fmt.Sprintf("server %s runs %s; startup scripts apply only to %s servers", srv.Name, srv.GameKey, games.CustomKey))
	}

	cs := &store.CustomScript{
		ServerID: srv.ID,
		Content:  content,
		Hash:     r.Hash,
		Ports:    ports,
		Env:      env,
	}
	if err := a.Store.SaveCustomScript(ctx, cs); err != nil {
		return err
	}

	if srv.ContainerID != "" {
		if err := refreshMountedScript(a.Config, a.FS, srv.ID, content); err != nil {
			logWarning("Stored, but the mounted copy was not updated: %v", err)
		} else {
			logInfo("Restart the server to run the new script")
		}
		if len(ports) > 0 && !publishes(srv.Ports, ports[0]) {
			logWarning("Port %d/%s is not published; delete and create the server to change ports",
				ports[0].ContainerPort, ports[0].Protocol)
		}
	}

	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), cs)
	}
	logSuccess("Stored script %s for %s (%d bytes)", shortID(r.Hash), srv.Name, r.Size)
	if len(ports) == 0 {
		logWarning("No port found in the script; the game's default port will be published")
	}
	return nil
}

// refreshMountedScript rewrites the host copy that an existing container
// bind-mounts, in place so the mount sees the new content.
func refreshMountedScript(cfg *config.HostConfig, fs system.FileSystem, serverID, content string) error {
	dir, err := cfg.ServerScriptDir(serverID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, filepath.Base(games.ScriptPath))
	if !fs.Exists(path) {
		return fmt.Errorf("%s does not exist", path)
	}
	return fs.WriteFile(path, []byte(content), 0755)
}

func publishes(mappings []store.PortMapping, spec store.PortSpec) bool {
	for _, m := range mappings {
		if m.ContainerPort == spec.ContainerPort && (spec.Protocol == "" || m.Protocol == spec.Protocol) {
			return true
		}
	}
	return false
}

func runScriptShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Store.GetServer(ctx, args[0]); err != nil {
		return err
	}
	cs, err := a.Store.GetCustomScript(ctx, args[0])
	if err != nil {
		return err
	}
	if cs == nil {
		return errors.New(errors.ExitNotFound, fmt.Sprintf("server %s has no startup script", args[0]))
	}
	if wantJSON() {
		return printJSON(cmd.OutOrStdout(), cs)
	}
	fmt.Fprint(cmd.OutOrStdout(), cs.Content)
	return nil
}
