// Package clock isolates the wall-clock source and worker-identity
// generation behind small interfaces so tests can inject determinism,
// following the same seam the teacher draws around its baseservice
// Archetype's time source.
package clock

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock is a monotonic, second-precision, UTC wall-clock source.
type Clock interface {
	Now() time.Time
}

// Real returns the system clock, truncated to second precision per the
// data model's next_run_at/locked_at semantics.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// Fake is a settable clock for deterministic tests. Zero value starts at
// the zero time.Time (January 1, year 1, UTC); call Set or Advance to move
// it forward.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake clock initialized to t (truncated to seconds).
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC().Truncate(time.Second)}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC().Truncate(time.Second)
}

func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// GenerateWorkerID produces a worker identity of the form
// host-pid-index-random, as recommended by the supervisor's start-up
// sequence.
func GenerateWorkerID(index int) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%d-%s", host, os.Getpid(), index, uuid.NewString()[:8])
}
