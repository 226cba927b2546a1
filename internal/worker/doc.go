// Package worker runs the pool that executes lifecycle jobs.
//
// The pool claims messages from the work queue and runs up to a fixed
// number of jobs at once. For each message it loads the job and server
// rows, resolves the game, marks the job RUNNING, dispatches to the
// handler for the job type, and records SUCCESS or FAILED. A failed
// CREATE also moves the server to ERROR. Failures are handed back to the
// queue, which decides whether to redeliver.
//
// Jobs for the same server run one at a time in the order they were
// claimed. Jobs for different servers run concurrently.
//
// A message whose job is already SUCCESS or FAILED is acknowledged
// without running again, so a redelivery after a crash cannot repeat a
// finished operation. On shutdown the pool stops claiming and waits for
// jobs already in flight.
package worker
