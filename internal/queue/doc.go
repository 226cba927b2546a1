// Package queue is the durable work queue between the Enqueue API and the
// worker pool. Messages live in the queue_messages table of the shared
// SQLite database and move through
//
//	ready → claimed → completed
//	              ↘ ready (Fail with attempts left, after backoff)
//	              ↘ failed
//
// Claim is a single UPDATE … RETURNING, so two consumers never receive the
// same message. Delivery is at-least-once: a claim that is never completed
// or failed is made ready again by RecoverStale once it exceeds the
// visibility timeout. Consumers must tolerate seeing a message twice.
//
// Completed and failed messages are pruned to the newest N of each after
// every Complete and Fail.
package queue
