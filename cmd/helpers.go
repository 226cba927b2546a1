package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/firefly-engineering/hearth/internal/app"
	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/store"
)

// appOptions are applied after the loaded config when opening the App.
var appOptions []app.Option

// openApp loads the host config and wires the App. Callers must Close it.
func openApp(ctx context.Context) (*app.App, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to load %s", path), err)
	}

	opts := append([]app.Option{app.WithConfig(cfg)}, appOptions...)
	return app.New(ctx, opts...)
}

func wantJSON() bool {
	return outputFormat == outputJSON
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(rule, "\t"))
	return tw
}

func formatPorts(ports []store.PortMapping) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprintf("%d->%d/%s", p.HostPort, p.ContainerPort, p.Protocol)
	}
	return strings.Join(parts, ",")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
