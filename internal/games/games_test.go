package games

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/store"
)

func TestNewCatalog_Builtins(t *testing.T) {
	c, err := NewCatalog(nil)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	want := []string{"custom", "minecraft-bedrock", "minecraft-java", "terraria", "valheim"}
	if diff := cmp.Diff(want, c.Keys()); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}

	custom, err := c.Get(CustomKey)
	if err != nil {
		t.Fatalf("Get(custom) failed: %v", err)
	}
	if !custom.IsCustom() {
		t.Error("custom descriptor should use the custom adapter")
	}
	if p, ok := custom.DefaultPort(); !ok || p.ContainerPort != 27015 {
		t.Errorf("DefaultPort = %+v, %v", p, ok)
	}

	valheim, _ := c.Get("valheim")
	if valheim.IsCustom() {
		t.Error("valheim should be a catalog game")
	}
	if len(valheim.Ports) != 2 {
		t.Errorf("valheim ports = %v", valheim.Ports)
	}
}

func TestCatalog_GetUnknown(t *testing.T) {
	c, _ := NewCatalog(nil)

	_, err := c.Get("quake")
	if err == nil {
		t.Fatal("expected error for unknown game")
	}
	if errors.KindOf(err) != errors.KindConflict {
		t.Errorf("KindOf = %q, want conflict", errors.KindOf(err))
	}
}

func TestCatalog_GetReturnsCopy(t *testing.T) {
	c, _ := NewCatalog(nil)

	d, _ := c.Get("minecraft-java")
	d.Env["EULA"] = "FALSE"
	d.Ports[0].ContainerPort = 1

	again, _ := c.Get("minecraft-java")
	if again.Env["EULA"] != "TRUE" || again.Ports[0].ContainerPort != 25565 {
		t.Errorf("catalog entry was mutated through a returned copy: %+v", again)
	}
}

func TestCatalog_All(t *testing.T) {
	c, _ := NewCatalog(nil)

	all := c.All()
	if len(all) != len(c.Keys()) {
		t.Fatalf("All() returned %d descriptors, want %d", len(all), len(c.Keys()))
	}
	for i, key := range c.Keys() {
		if all[i].Key != key {
			t.Errorf("All()[%d].Key = %q, want %q", i, all[i].Key, key)
		}
	}
}

func TestNewCatalog_Overrides(t *testing.T) {
	c, err := NewCatalog([]config.GameConfig{
		{Key: "minecraft-java", Image: "itzg/minecraft-server:java21", Env: map[string]string{"MEMORY": "4G"}},
		{Key: "factorio", Image: "factoriotools/factorio:stable", Ports: []string{"34197/udp", "27015"}},
	})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	mc, _ := c.Get("minecraft-java")
	if mc.Image != "itzg/minecraft-server:java21" {
		t.Errorf("Image = %q", mc.Image)
	}
	if mc.Env["EULA"] != "TRUE" || mc.Env["MEMORY"] != "4G" {
		t.Errorf("Env = %v, want merged", mc.Env)
	}
	if mc.DataPath != "/data" {
		t.Errorf("DataPath = %q, unset override should keep built-in", mc.DataPath)
	}

	f, err := c.Get("factorio")
	if err != nil {
		t.Fatalf("Get(factorio) failed: %v", err)
	}
	want := []store.PortSpec{{ContainerPort: 34197, Protocol: "udp"}, {ContainerPort: 27015, Protocol: "tcp"}}
	if diff := cmp.Diff(want, f.Ports); diff != "" {
		t.Errorf("Ports mismatch (-want +got):\n%s", diff)
	}
	if f.Adapter != AdapterCatalog {
		t.Errorf("Adapter = %q, want catalog", f.Adapter)
	}
}

func TestNewCatalog_InvalidOverrides(t *testing.T) {
	tests := []struct {
		name string
		game config.GameConfig
	}{
		{"new game without image", config.GameConfig{Key: "factorio"}},
		{"bad port", config.GameConfig{Key: "terraria", Ports: []string{"abc"}}},
		{"bad protocol", config.GameConfig{Key: "terraria", Ports: []string{"7777/sctp"}}},
		{"port zero", config.GameConfig{Key: "terraria", Ports: []string{"0"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog([]config.GameConfig{tt.game})
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.GetExitCode(err) != errors.ExitConfigError {
				t.Errorf("exit code = %d, want %d", errors.GetExitCode(err), errors.ExitConfigError)
			}
		})
	}
}

func TestParsePorts_Range(t *testing.T) {
	got, err := ParsePorts([]string{"2456-2458/udp"})
	if err != nil {
		t.Fatalf("ParsePorts failed: %v", err)
	}
	want := []store.PortSpec{
		{ContainerPort: 2456, Protocol: "udp"},
		{ContainerPort: 2457, Protocol: "udp"},
		{ContainerPort: 2458, Protocol: "udp"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParsePorts mismatch (-want +got):\n%s", diff)
	}
}
