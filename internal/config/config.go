package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	securejoin "github.com/cyphar/filepath-securejoin"
)

const (
	DefaultConfigDir  = "/etc/hearth"
	DefaultConfigFile = "config.toml"
	DefaultStateDir   = "/var/lib/hearth"
	ContainerPrefix   = "hearth-"
	QueueName         = "server-lifecycle"
)

// Defaults applied when the config file leaves a value unset.
const (
	DefaultPortFrom       = 30000
	DefaultPortTo         = 40000
	DefaultConcurrency    = 5
	DefaultKeepCompleted  = 100
	DefaultKeepFailed     = 100
	DefaultMaxAttempts    = 1
	DefaultStopGrace      = 15 * time.Second
	DefaultDeleteGrace    = 10 * time.Second
	DefaultPollInterval   = time.Second
	DefaultVisibility     = 30 * time.Minute
	DefaultRestartPolicy  = "unless-stopped"
	DefaultScriptMountDir = "/opt/hearth"
)

// Duration is a time.Duration that decodes from TOML strings like "15s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// PortRange is the inclusive host-port window scanned when a 1:1 mapping
// is unavailable.
type PortRange struct {
	From int `toml:"from"`
	To   int `toml:"to"`
}

// Contains reports whether p lies within the window.
func (r PortRange) Contains(p int) bool {
	return p >= r.From && p <= r.To
}

// WorkerConfig controls the worker pool.
type WorkerConfig struct {
	Concurrency       int      `toml:"concurrency"`
	PollInterval      Duration `toml:"poll_interval"`
	VisibilityTimeout Duration `toml:"visibility_timeout"`
}

// QueueConfig controls retention and redelivery of queue messages.
type QueueConfig struct {
	KeepCompleted int `toml:"keep_completed"`
	KeepFailed    int `toml:"keep_failed"`
	MaxAttempts   int `toml:"max_attempts"`
}

// RuntimeConfig holds container runtime settings.
type RuntimeConfig struct {
	DockerHost    string   `toml:"docker_host"`
	StopGrace     Duration `toml:"stop_grace"`
	DeleteGrace   Duration `toml:"delete_grace"`
	RestartPolicy string   `toml:"restart_policy"`
}

// GameConfig adds a game descriptor or overrides a built-in one.
type GameConfig struct {
	Key      string            `toml:"key"`
	Name     string            `toml:"name"`
	Image    string            `toml:"image"`
	Adapter  string            `toml:"adapter"`
	Ports    []string          `toml:"ports"`
	Env      map[string]string `toml:"env"`
	DataPath string            `toml:"data_path"`
	Cmd      []string          `toml:"cmd"`
}

// HostConfig represents the host configuration from config.toml
type HostConfig struct {
	StateDir               string        `toml:"state_dir"`
	DataDir                string        `toml:"data_dir"`
	Database               string        `toml:"database"`
	ContainerPrefix        string        `toml:"container_prefix"`
	CompensateFailedCreate bool          `toml:"compensate_failed_create"`
	Ports                  PortRange     `toml:"ports"`
	Worker                 WorkerConfig  `toml:"worker"`
	Queue                  QueueConfig   `toml:"queue"`
	Runtime                RuntimeConfig `toml:"runtime"`
	Games                  []GameConfig  `toml:"games"`
}

// Default returns a HostConfig populated with defaults rooted at stateDir.
func Default(stateDir string) *HostConfig {
	if stateDir == "" {
		stateDir = DefaultStateDir
	}
	return &HostConfig{
		StateDir:               stateDir,
		DataDir:                filepath.Join(stateDir, "servers"),
		Database:               filepath.Join(stateDir, "hearth.db"),
		ContainerPrefix:        ContainerPrefix,
		CompensateFailedCreate: true,
		Ports:                  PortRange{From: DefaultPortFrom, To: DefaultPortTo},
		Worker: WorkerConfig{
			Concurrency:       DefaultConcurrency,
			PollInterval:      Duration{DefaultPollInterval},
			VisibilityTimeout: Duration{DefaultVisibility},
		},
		Queue: QueueConfig{
			KeepCompleted: DefaultKeepCompleted,
			KeepFailed:    DefaultKeepFailed,
			MaxAttempts:   DefaultMaxAttempts,
		},
		Runtime: RuntimeConfig{
			StopGrace:     Duration{DefaultStopGrace},
			DeleteGrace:   Duration{DefaultDeleteGrace},
			RestartPolicy: DefaultRestartPolicy,
		},
	}
}

// Validate checks that the HostConfig is valid.
func (c *HostConfig) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if !filepath.IsAbs(c.DataDir) {
		return fmt.Errorf("data_dir must be an absolute path (got %q)", c.DataDir)
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Ports.From < 1 || c.Ports.To > 65535 || c.Ports.From > c.Ports.To {
		return fmt.Errorf("invalid port range %d-%d", c.Ports.From, c.Ports.To)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1 (got %d)", c.Worker.Concurrency)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1 (got %d)", c.Queue.MaxAttempts)
	}
	if c.Queue.KeepCompleted < 0 || c.Queue.KeepFailed < 0 {
		return fmt.Errorf("queue retention cannot be negative")
	}

	validPolicies := map[string]bool{"no": true, "always": true, "unless-stopped": true, "on-failure": true}
	if !validPolicies[c.Runtime.RestartPolicy] {
		return fmt.Errorf("invalid restart_policy: %s", c.Runtime.RestartPolicy)
	}

	for i, g := range c.Games {
		if g.Key == "" {
			return fmt.Errorf("games[%d]: key is required", i)
		}
		if g.Adapter != "" && g.Adapter != "catalog" && g.Adapter != "custom" {
			return fmt.Errorf("games[%d]: invalid adapter %q (must be catalog or custom)", i, g.Adapter)
		}
	}

	return nil
}

// ServerDataDir returns the private data directory for a server. The id
// is resolved inside DataDir so it can never escape it.
func (c *HostConfig) ServerDataDir(serverID string) (string, error) {
	return safeJoin(c.DataDir, serverID)
}

// ServerScriptDir returns the directory holding a server's mounted
// startup script. It lives outside the data directory so the script can
// be mounted read-only while the data directory stays writable.
func (c *HostConfig) ServerScriptDir(serverID string) (string, error) {
	return safeJoin(filepath.Join(c.StateDir, "scripts"), serverID)
}

// AuditDir returns the directory for JSONL lifecycle event logs.
func (c *HostConfig) AuditDir() string {
	return filepath.Join(c.StateDir, "audit")
}

// ContainerName returns the runtime container name for a server
func (c *HostConfig) ContainerName(serverID string) string {
	return c.ContainerPrefix + serverID
}

func safeJoin(base, name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid path component %q", name)
	}
	if filepath.Base(name) != name {
		return "", fmt.Errorf("name cannot contain path separators")
	}
	path, err := securejoin.SecureJoin(base, name)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	return path, nil
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(DefaultConfigDir, DefaultConfigFile)
}

// Load reads the TOML config at path. A missing file yields defaults.
func Load(path string) (*HostConfig, error) {
	cfg := Default("")

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read host config: %w", err)
	}

	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML into cfg, re-deriving state-dir based defaults when
// the file moves state_dir without naming the derived paths.
func Parse(data []byte, cfg *HostConfig) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("failed to parse host config: %w", err)
	}

	if md.IsDefined("state_dir") {
		if !md.IsDefined("data_dir") {
			cfg.DataDir = filepath.Join(cfg.StateDir, "servers")
		}
		if !md.IsDefined("database") {
			cfg.Database = filepath.Join(cfg.StateDir, "hearth.db")
		}
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown config keys: %v", undecoded)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid host config: %w", err)
	}
	return nil
}
