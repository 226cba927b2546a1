package testutil

import (
	"embed"
	"path"

	"github.com/firefly-engineering/hearth/internal/config"
)

//go:embed fixtures/*.toml fixtures/*.sh
var fixtures embed.FS

// Fixture returns the raw bytes of fixtures/<name>.
func Fixture(name string) ([]byte, error) {
	return fixtures.ReadFile(path.Join("fixtures", name))
}

func mustFixture(name string) string {
	data, err := Fixture(name)
	if err != nil {
		panic("testutil: " + err.Error())
	}
	return string(data)
}

// HostConfigFixture decodes a TOML fixture over config.Default("") and
// validates it, as config.Load would.
func HostConfigFixture(name string) (*config.HostConfig, error) {
	data, err := Fixture(name)
	if err != nil {
		return nil, err
	}
	cfg := config.Default("")
	if err := config.Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StartScript is a custom-server startup script that passes validation.
func StartScript() string { return mustFixture("start_script.sh") }

// DangerousScript is a startup script with several rejected lines.
func DangerousScript() string { return mustFixture("dangerous_script.sh") }
