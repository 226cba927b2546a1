// Package port assigns conflict-free host ports to container ports.
//
// # Allocation Strategy
//
// The container port itself is tried first, so a game listening on 25565
// is reachable on 25565 when possible. Otherwise the configured window
// (30000-40000 by default) is scanned first-fit:
//
//	hostPort, err := alloc.Allocate(ctx, serverID, 25565, chosenSoFar)
//
// # Authorities
//
// A candidate is skipped when any of these says it is taken:
//
//   - the caller's set of ports already chosen in the same CREATE job
//   - the union of host ports across all servers in the ledger
//   - the port_reservations table (the row is inserted before the live
//     checks below, so concurrent allocators cannot both win)
//   - the container runtime, for any container running or stopped
//   - a listener probe on the host
//
// A failed check is never read as "free". When the runtime cannot be
// listed the allocation fails outright; a failed probe skips the port.
package port
