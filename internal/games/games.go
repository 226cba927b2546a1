package games

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/docker/go-connections/nat"

	"github.com/firefly-engineering/hearth/internal/config"
	"github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/store"
)

// Adapter selects how a server's container is assembled.
type Adapter string

const (
	AdapterCatalog Adapter = "catalog"
	AdapterCustom  Adapter = "custom"
)

// CustomKey is the game key of the built-in custom adapter.
const CustomKey = "custom"

// ScriptPath is where the custom adapter mounts the startup script.
const ScriptPath = config.DefaultScriptMountDir + "/start.sh"

// Descriptor describes how to run one game.
type Descriptor struct {
	Key      string
	Name     string
	Image    string
	Adapter  Adapter
	Ports    []store.PortSpec
	Env      map[string]string
	DataPath string
	Cmd      []string
}

// IsCustom reports whether the descriptor uses the custom script adapter.
func (d *Descriptor) IsCustom() bool {
	return d.Adapter == AdapterCustom
}

// DefaultPort returns the first declared port, used by the custom adapter
// when the script declares none.
func (d *Descriptor) DefaultPort() (store.PortSpec, bool) {
	if len(d.Ports) == 0 {
		return store.PortSpec{}, false
	}
	return d.Ports[0], true
}

func (d *Descriptor) clone() *Descriptor {
	c := *d
	c.Ports = slices.Clone(d.Ports)
	c.Env = maps.Clone(d.Env)
	c.Cmd = slices.Clone(d.Cmd)
	return &c
}

func builtin() []*Descriptor {
	return []*Descriptor{
		{
			Key:      "minecraft-java",
			Name:     "Minecraft: Java Edition",
			Image:    "itzg/minecraft-server:latest",
			Adapter:  AdapterCatalog,
			Ports:    []store.PortSpec{{ContainerPort: 25565, Protocol: "tcp"}},
			Env:      map[string]string{"EULA": "TRUE", "TYPE": "PAPER"},
			DataPath: "/data",
		},
		{
			Key:      "minecraft-bedrock",
			Name:     "Minecraft: Bedrock Edition",
			Image:    "itzg/minecraft-bedrock-server:latest",
			Adapter:  AdapterCatalog,
			Ports:    []store.PortSpec{{ContainerPort: 19132, Protocol: "udp"}},
			Env:      map[string]string{"EULA": "TRUE"},
			DataPath: "/data",
		},
		{
			Key:     "valheim",
			Name:    "Valheim",
			Image:   "lloesche/valheim-server:latest",
			Adapter: AdapterCatalog,
			Ports: []store.PortSpec{
				{ContainerPort: 2456, Protocol: "udp"},
				{ContainerPort: 2457, Protocol: "udp"},
			},
			Env:      map[string]string{"SERVER_NAME": "hearth", "WORLD_NAME": "Dedicated"},
			DataPath: "/config",
		},
		{
			Key:      "terraria",
			Name:     "Terraria",
			Image:    "ryshe/terraria:latest",
			Adapter:  AdapterCatalog,
			Ports:    []store.PortSpec{{ContainerPort: 7777, Protocol: "tcp"}},
			Env:      map[string]string{"WORLD_FILENAME": "world.wld"},
			DataPath: "/root/.local/share/Terraria/Worlds",
		},
		{
			Key:      CustomKey,
			Name:     "Custom server",
			Image:    "debian:bookworm-slim",
			Adapter:  AdapterCustom,
			Ports:    []store.PortSpec{{ContainerPort: 27015, Protocol: "tcp"}},
			DataPath: "/data",
			Cmd:      []string{"/bin/bash", ScriptPath},
		},
	}
}

// Catalog resolves game keys to descriptors.
type Catalog struct {
	games map[string]*Descriptor
}

// NewCatalog returns the built-in catalog with overrides applied. An
// override with a known key replaces only the fields it sets.
func NewCatalog(overrides []config.GameConfig) (*Catalog, error) {
	c := &Catalog{games: make(map[string]*Descriptor)}
	for _, d := range builtin() {
		c.games[d.Key] = d
	}

	for _, o := range overrides {
		d, ok := c.games[o.Key]
		if !ok {
			d = &Descriptor{Key: o.Key, Name: o.Key, Adapter: AdapterCatalog}
		}
		if err := apply(d, o); err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("game %q", o.Key), err)
		}
		if d.Image == "" {
			return nil, errors.ConfigError(fmt.Sprintf("game %q has no image", o.Key), nil)
		}
		c.games[o.Key] = d
	}
	return c, nil
}

func apply(d *Descriptor, o config.GameConfig) error {
	if o.Name != "" {
		d.Name = o.Name
	}
	if o.Image != "" {
		d.Image = o.Image
	}
	if o.Adapter != "" {
		d.Adapter = Adapter(o.Adapter)
	}
	if o.DataPath != "" {
		d.DataPath = o.DataPath
	}
	if len(o.Cmd) > 0 {
		d.Cmd = slices.Clone(o.Cmd)
	}
	if len(o.Ports) > 0 {
		ports, err := ParsePorts(o.Ports)
		if err != nil {
			return err
		}
		d.Ports = ports
	}
	if len(o.Env) > 0 {
		if d.Env == nil {
			d.Env = make(map[string]string)
		}
		maps.Copy(d.Env, o.Env)
	}
	return nil
}

// ParsePorts parses specs such as "25565", "19132/udp" or "2456-2457/udp".
func ParsePorts(raw []string) ([]store.PortSpec, error) {
	var specs []store.PortSpec
	for _, r := range raw {
		proto, port := nat.SplitProtoPort(strings.TrimSpace(r))
		if port == "" {
			return nil, fmt.Errorf("invalid port spec %q", r)
		}
		proto = strings.ToLower(proto)
		if proto != "tcp" && proto != "udp" {
			return nil, fmt.Errorf("invalid protocol in %q", r)
		}
		start, end, err := nat.ParsePortRange(port)
		if err != nil {
			return nil, fmt.Errorf("invalid port spec %q: %w", r, err)
		}
		if start < 1 {
			return nil, fmt.Errorf("invalid port spec %q: port 0", r)
		}
		for p := start; p <= end; p++ {
			specs = append(specs, store.PortSpec{ContainerPort: int(p), Protocol: proto})
		}
	}
	return specs, nil
}

// Get returns a copy of the descriptor for key.
func (c *Catalog) Get(key string) (*Descriptor, error) {
	d, ok := c.games[key]
	if !ok {
		return nil, errors.UnknownGame(key)
	}
	return d.clone(), nil
}

// Keys returns the known game keys in sorted order.
func (c *Catalog) Keys() []string {
	return slices.Sorted(maps.Keys(c.games))
}

// All returns copies of every descriptor, ordered by key.
func (c *Catalog) All() []*Descriptor {
	keys := c.Keys()
	out := make([]*Descriptor, len(keys))
	for i, k := range keys {
		out[i] = c.games[k].clone()
	}
	return out
}
