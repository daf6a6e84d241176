// Package absent tracks frames that failed to load so they are not retried
// on every request.
package absent

import (
	"sync"
	"time"

	"github.com/arkilian/rpftiles/pkg/types"
)

// State is the lifecycle position of one key.
type State int

const (
	// Unknown keys have no recorded failures.
	Unknown State = iota
	// Striking keys have failed fewer than MaxStrikes times.
	Striking
	// Absent keys are skipped until the cooldown expires, or forever.
	Absent
)

func (s State) String() string {
	switch s {
	case Striking:
		return "striking"
	case Absent:
		return "absent"
	default:
		return "unknown"
	}
}

// Policy configures when a key becomes absent and for how long.
type Policy struct {
	// MaxStrikes is the number of failures that mark a key absent.
	MaxStrikes int

	// Cooldown is how long a key stays absent. Zero means forever.
	Cooldown time.Duration
}

// DefaultPolicy marks a key absent after its first failure, permanently.
func DefaultPolicy() Policy {
	return Policy{MaxStrikes: 1}
}

type entry struct {
	state     State
	strikes   int
	expiresAt time.Time
}

// Tracker is a concurrency-safe negative cache keyed by frame key.
type Tracker struct {
	mu      sync.Mutex
	policy  Policy
	entries map[types.Key]*entry
	now     func() time.Time
}

// NewTracker creates a tracker with the given policy.
func NewTracker(policy Policy) *Tracker {
	if policy.MaxStrikes < 1 {
		policy.MaxStrikes = 1
	}
	return &Tracker{
		policy:  policy,
		entries: make(map[types.Key]*entry),
		now:     time.Now,
	}
}

// WithClock replaces the time source; for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// MarkAbsent records one failure for key and returns the resulting state.
func (t *Tracker) MarkAbsent(key types.Key) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.lookupLocked(key)
	if e == nil {
		e = &entry{}
		t.entries[key] = e
	}
	if e.state == Absent {
		return Absent
	}

	e.strikes++
	if e.strikes < t.policy.MaxStrikes {
		e.state = Striking
		return Striking
	}

	e.state = Absent
	if t.policy.Cooldown > 0 {
		e.expiresAt = t.now().Add(t.policy.Cooldown)
	}
	return Absent
}

// IsAbsent reports whether key is currently absent.
func (t *Tracker) IsAbsent(key types.Key) bool {
	return t.State(key) == Absent
}

// State returns the current state of key.
func (t *Tracker) State(key types.Key) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.lookupLocked(key)
	if e == nil {
		return Unknown
	}
	return e.state
}

// Reset forgets every failure recorded for key.
func (t *Tracker) Reset(key types.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Len returns the number of keys currently absent.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for k := range t.entries {
		if e := t.lookupLocked(k); e != nil && e.state == Absent {
			n++
		}
	}
	return n
}

// lookupLocked returns the entry for key, dropping it if its cooldown expired.
func (t *Tracker) lookupLocked(key types.Key) *entry {
	e, ok := t.entries[key]
	if !ok {
		return nil
	}
	if e.state == Absent && !e.expiresAt.IsZero() && !t.now().Before(e.expiresAt) {
		delete(t.entries, key)
		return nil
	}
	return e
}
