// Package testutil provides an integration test environment and fixtures.
//
// # Test Environment
//
// NewTestEnv builds a complete App over a temporary state directory: a
// real SQLite ledger and queue, a mock container runtime, and a mock
// listener probe. Helpers seed servers, enqueue jobs, and drain the
// queue through a worker pool:
//
//	env := testutil.NewTestEnv(t)
//	srv := env.AddServer("valheim")
//	job := env.Enqueue(srv.ID, store.JobCreate)
//	env.Drain()
//	if env.Job(job.ID).Status != store.JobSuccess { ... }
//
// # Fixtures
//
// Fixtures are embedded using go:embed:
//
//	fixtures/valid_host_config.toml
//	fixtures/invalid_host_config.toml
//	fixtures/start_script.sh
//	fixtures/dangerous_script.sh
package testutil
