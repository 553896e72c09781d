// Package queuectl is a durable, single-host, embedded background job
// queue. It accepts shell-command jobs, dispatches them across a
// configurable pool of concurrent workers backed by a local SQLite file,
// and guarantees at-most-one execution per attempt with bounded automatic
// retry and a dead letter queue terminal state.
//
// The queue requires no external broker: Client owns a single on-disk
// database file and a directory of per-job log files. Concurrency safety
// comes from the atomic claim protocol in internal/jobrepo, not from any
// in-memory coordination between workers.
package queuectl
