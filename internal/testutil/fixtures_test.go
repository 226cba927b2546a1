package testutil

import (
	"testing"
	"time"

	"github.com/firefly-engineering/hearth/internal/games"
	"github.com/firefly-engineering/hearth/internal/script"
)

func TestHostConfigFixture_Valid(t *testing.T) {
	cfg, err := HostConfigFixture("valid_host_config.toml")
	if err != nil {
		t.Fatalf("HostConfigFixture error: %v", err)
	}

	if cfg.DataDir != "/var/lib/hearth/servers" {
		t.Errorf("DataDir = %q, want derived from state_dir", cfg.DataDir)
	}
	if cfg.Worker.Concurrency != 8 {
		t.Errorf("Worker.Concurrency = %d, want 8", cfg.Worker.Concurrency)
	}
	if cfg.Worker.VisibilityTimeout.Duration != 20*time.Minute {
		t.Errorf("VisibilityTimeout = %v, want 20m", cfg.Worker.VisibilityTimeout)
	}
	if len(cfg.Games) != 2 {
		t.Fatalf("Games = %d entries, want 2", len(cfg.Games))
	}

	catalog, err := games.NewCatalog(cfg.Games)
	if err != nil {
		t.Fatalf("NewCatalog() error: %v", err)
	}
	mc, err := catalog.Get("minecraft-java")
	if err != nil {
		t.Fatalf("Get(minecraft-java) error: %v", err)
	}
	if mc.Env["MEMORY"] != "4G" || mc.Env["EULA"] != "TRUE" {
		t.Errorf("minecraft-java env = %v, want override merged over built-in", mc.Env)
	}
	if _, err := catalog.Get("factorio"); err != nil {
		t.Errorf("Get(factorio) error: %v", err)
	}
}

func TestHostConfigFixture_Invalid(t *testing.T) {
	if _, err := HostConfigFixture("invalid_host_config.toml"); err == nil {
		t.Error("Invalid config should fail validation")
	}
}

func TestScriptFixtures(t *testing.T) {
	if r := script.Validate(StartScript()); !r.Valid {
		t.Errorf("StartScript() should validate, errors: %v", r.Errors)
	}

	r := script.Validate(DangerousScript())
	if r.Valid {
		t.Fatal("DangerousScript() should be rejected")
	}
	if len(r.Errors) < 2 {
		t.Errorf("Errors = %v, want one per dangerous line", r.Errors)
	}
}

func TestFixture_Missing(t *testing.T) {
	if _, err := Fixture("nope.toml"); err == nil {
		t.Error("expected error for missing fixture")
	}
}
