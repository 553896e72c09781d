package queuectl

import (
	"time"

	"github.com/queuectl/queuectl/internal/jobrepo"
)

// State is one of the four persisted job states, per the data model.
type State string

const (
	StatePending    State = State(jobrepo.StatePending)
	StateProcessing State = State(jobrepo.StateProcessing)
	StateCompleted  State = State(jobrepo.StateCompleted)
	StateDead       State = State(jobrepo.StateDead)
)

// Job is a snapshot of a job row, returned by List, DLQList, and Enqueue.
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

// JobSpec is the caller-supplied description of a new job, per spec.md
// §6.3's ingest schema.
type JobSpec struct {
	ID      string
	Command string

	// Priority defaults to 0; lower dispatches earlier.
	Priority int

	// MaxRetries, if nil, falls back to the store's max_retries config.
	MaxRetries *int

	// TimeoutSeconds, if nil, means the attempt runs with no deadline.
	TimeoutSeconds *int

	// RunAt, if nil, defaults to now (immediately eligible).
	RunAt *time.Time
}

func jobFromRepo(j *jobrepo.Job) *Job {
	if j == nil {
		return nil
	}
	return &Job{
		ID:                   j.ID,
		Command:              j.Command,
		State:                State(j.State),
		Priority:             j.Priority,
		Attempts:             j.Attempts,
		MaxRetries:           j.MaxRetries,
		TimeoutSecs:          j.TimeoutSecs,
		NextRunAt:            j.NextRunAt,
		LockedBy:             j.LockedBy,
		LockedAt:             j.LockedAt,
		ProcessingStartedAt:  j.ProcessingStartedAt,
		ProcessingFinishedAt: j.ProcessingFinishedAt,
		ExitCode:             j.ExitCode,
		LastError:            j.LastError,
		StdoutPath:           j.StdoutPath,
		StderrPath:           j.StderrPath,
		CreatedAt:            j.CreatedAt,
		UpdatedAt:            j.UpdatedAt,
	}
}

func jobsFromRepo(js []*jobrepo.Job) []*Job {
	out := make([]*Job, len(js))
	for i, j := range js {
		out[i] = jobFromRepo(j)
	}
	return out
}

func specToRepo(s JobSpec) jobrepo.Spec {
	return jobrepo.Spec{
		ID:             s.ID,
		Command:        s.Command,
		Priority:       s.Priority,
		MaxRetries:     s.MaxRetries,
		TimeoutSeconds: s.TimeoutSeconds,
		RunAt:          s.RunAt,
	}
}
