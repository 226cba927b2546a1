// Package app wires hearth-ctl's long-lived services together.
//
// New opens the ledger and builds the store, queue, port allocator,
// orchestrator and job service from a HostConfig. Options replace any
// piece, which is how tests swap in mocks:
//
//	a, err := app.New(ctx,
//	    app.WithConfig(config.Default(t.TempDir())),
//	    app.WithRuntime(runtime.NewMockRuntime()),
//	    app.WithProbe(system.NewMockProbe()),
//	)
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
// NewPool returns a worker pool configured from the [worker] section.
package app
