// Package audit records security-relevant events: permission changes,
// channel membership changes, venue and user administration, and denied
// authorization decisions.
//
// The sink is fire-and-forget. DBLogger buffers events in memory and writes
// them from a background goroutine, so recording an event never extends or
// fails the transaction that produced it. When the buffer is full events are
// dropped and counted rather than blocking request handling.
//
// Retention is enforced by a cron job that prunes records past the
// configured age.
package audit
