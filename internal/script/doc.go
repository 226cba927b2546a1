// Package script gates operator-supplied startup scripts for custom game
// servers before they are stored and mounted read-only into a container.
//
// Validate enforces:
//
//   - a 64 KiB size limit
//   - strict mode (`set -e` or stronger) and a foreground `exec` launch
//   - a table of dangerous signatures, each an error
//   - a table of suspicious but legal patterns, each a warning
//
// The SHA-256 of the content is always reported. Sanitize should be
// applied before validating and storing, and ExtractPorts offers port
// specs for the operator to confirm.
package script
