// Package errors defines HearthError, an error carrying the process exit
// code hearth-ctl terminates with.
//
// Codes group failures by kind:
//
//	1 ExitGeneralError       anything unclassified
//	2 ExitNotFound           server, job or container does not exist
//	3 ExitConflict           unknown game, missing container
//	4 ExitPortAllocation     no free host port in the window
//	5 ExitContainerFailed    runtime call or image pull failed
//	6 ExitConfigError        host configuration could not be loaded
//	7 ExitValidationFailure  rejected input such as a startup script
//	8 ExitLedgerUnavailable  the database could not be reached
//
// Prefer the named constructors (ServerNotFound, PortsExhausted,
// ContainerFailed and friends) over New. Their messages end up in the
// job ledger verbatim and must not contain secrets.
//
// GetExitCode unwraps any error chain, so main only needs
//
//	os.Exit(errors.GetExitCode(err))
package errors
