// Package jobrepo implements CRUD, listing, and the atomic claim protocol
// over the jobs table. It enforces the invariants from the data model
// (unique id, valid transitions) and is the only package that issues SQL
// against the jobs table.
package jobrepo

import "time"

// State is one of the four persisted job states. The spec's transient
// "failed" state is never written: a retriable failure is written
// directly as Pending with an advanced next_run_at, per spec.md §9's
// open-question resolution.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateDead       State = "dead"
)

// Job is a row of the jobs table.
type Job struct {
	ID          string
	Command     string
	State       State
	Priority    int
	Attempts    int
	MaxRetries  int
	TimeoutSecs *int

	NextRunAt time.Time

	LockedBy *string
	LockedAt *time.Time

	ProcessingStartedAt  *time.Time
	ProcessingFinishedAt *time.Time
	ExitCode             *int

	LastError *string

	StdoutPath string
	StderrPath string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Spec is the caller-supplied description of a new job, matching the
// ingest schema in spec.md §6.3.
type Spec struct {
	ID             string
	Command        string
	Priority       int
	MaxRetries     *int
	TimeoutSeconds *int
	RunAt          *time.Time
}

// Filter narrows List to jobs in a particular state. A nil State matches
// every state.
type Filter struct {
	State *State
	Limit int
}

// Counts is a snapshot of job counts by state, used by Status().
type Counts struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Dead       int
}
