// Package logging holds the process logger and the operator message
// helpers used by hearth-ctl.
//
// Worker and orchestrator code logs through slog, in text or JSON:
//
//	logging.Setup(verbose, logging.FormatJSON, os.Stderr)
//	log := logging.With("component", "worker", "job", jobID)
//	log.Info("job running")
//
// CLI commands print short prefixed lines for the operator instead:
//
//	logging.UserSuccess("Queued %s job %s", typ, job.ID)
//	logging.UserWarning("Port %d is already in use", port)
//
// SetUserOutput redirects those lines, mostly for tests.
package logging
