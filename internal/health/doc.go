// Package health compares the ledger against the container runtime.
//
// Server status is only ever written by jobs, so a container that crashed,
// was removed by hand, or was started outside hearth leaves the ledger
// stale. Check reports each server as one of:
//
//	StatusHealthy - RUNNING/STOPPED matches the container
//	StatusDrift   - the container disagrees with the recorded status
//	StatusMissing - the recorded container is gone
//	StatusPending - no container yet (CREATING, or a failed CREATE)
//	StatusOrphan  - a labelled container with no server row
//
// Check is read-only. Repairs go through the normal job pipeline, e.g. a
// START or DELETE job.
package health
