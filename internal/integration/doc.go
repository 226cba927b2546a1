// Package integration runs the lifecycle pipeline against a real Docker
// daemon.
//
// Tests are skipped unless HEARTH_INTEGRATION_TESTS=1 is set and the
// daemon answers. They pull a small alpine image and publish host ports
// 1:1 when the container port is free on the host, otherwise from
// 40000-40049.
//
//	func TestSomething(t *testing.T) {
//	    h := integration.NewHarness(t) // skips when disabled
//	    srv := h.AddServer(integration.GameKey)
//	    h.Run(srv.ID, store.JobCreate)
//	}
//
// Every container created under the harness prefix is force-removed by
// t.Cleanup, even when a test fails halfway.
//
//	HEARTH_INTEGRATION_TESTS=1 go test -v ./internal/integration/...
package integration
