// Package orchestrator performs server lifecycle operations against the
// container runtime.
//
// There is one handler per job type. Handlers receive a Task carrying the
// job, its server row, and the resolved game descriptor, and they own the
// server status transitions that follow a successful operation:
//
//	Create   CREATING -> STOPPED
//	Start    -> RUNNING
//	Stop     -> STOPPED
//	Restart  -> RUNNING
//	Delete   row removed, jobs included
//
// Create reports progress at fixed checkpoints (10 data directory, 30
// image, 60 ports, 90 container, 100 persisted) and records each side
// effect on an undo stack. When compensation is enabled in the host
// config the stack runs if a later step fails. Pulled images are a shared
// cache and are never removed.
//
// Stop, Start and Delete tolerate a container that is already where it
// was asked to go. Delete is best effort throughout and only fails if the
// server row cannot be removed.
package orchestrator
