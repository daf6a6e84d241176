package builder

import (
	"sync"
	"time"
)

// Phase names a builder phase.
type Phase string

const (
	PhaseScan    Phase = "scan"
	PhaseWavelet Phase = "wavelet"
	PhaseSave    Phase = "save"
	PhaseMosaic  Phase = "mosaic"
)

// EventKind is the type of a progress event.
type EventKind int

const (
	// PhaseBegin opens a phase.
	PhaseBegin EventKind = iota
	// StepCount announces how many steps the phase will run.
	StepCount
	// StepComplete reports one successful step.
	StepComplete
	// StepFailed reports one failed step; the phase continues.
	StepFailed
	// PhaseEnd closes a phase.
	PhaseEnd
)

func (k EventKind) String() string {
	switch k {
	case PhaseBegin:
		return "phase_begin"
	case StepCount:
		return "step_count"
	case StepComplete:
		return "step_complete"
	case StepFailed:
		return "step_failed"
	case PhaseEnd:
		return "phase_end"
	default:
		return "unknown"
	}
}

// Event is one progress notification.
type Event struct {
	RunID string
	Kind  EventKind
	Phase Phase

	// Step describes the unit of work for step events.
	Step string

	// Total is the step count for StepCount events.
	Total int

	// Err is set for StepFailed events.
	Err error

	Time time.Time
}

// Listener receives progress events. Events are delivered one at a time,
// on the goroutine that produced them.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// OnEvent calls f(e).
func (f ListenerFunc) OnEvent(e Event) { f(e) }

// emitter serializes delivery to a listener across workers.
type emitter struct {
	mu       sync.Mutex
	runID    string
	listener Listener
}

func (e *emitter) emit(ev Event) {
	if e.listener == nil {
		return
	}
	ev.RunID = e.runID
	ev.Time = time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener.OnEvent(ev)
}

func (e *emitter) begin(phase Phase) { e.emit(Event{Kind: PhaseBegin, Phase: phase}) }

func (e *emitter) count(phase Phase, n int) { e.emit(Event{Kind: StepCount, Phase: phase, Total: n}) }

func (e *emitter) complete(phase Phase, step string) {
	e.emit(Event{Kind: StepComplete, Phase: phase, Step: step})
}

func (e *emitter) failed(phase Phase, step string, err error) {
	e.emit(Event{Kind: StepFailed, Phase: phase, Step: step, Err: err})
}

func (e *emitter) end(phase Phase) { e.emit(Event{Kind: PhaseEnd, Phase: phase}) }

// Recorder is a Listener that keeps every event; for tests and summaries.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// OnEvent records e.
func (r *Recorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many recorded events match phase and kind.
func (r *Recorder) Count(phase Phase, kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Phase == phase && e.Kind == kind {
			n++
		}
	}
	return n
}
