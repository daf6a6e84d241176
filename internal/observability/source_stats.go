package observability

import (
	"sort"
	"sync"
	"time"
)

// SourceStats tracks how often each detail source is chosen, e.g. "full" or
// "wavelet@64", to tune the full-resolution threshold and preload resolution.
type SourceStats struct {
	mu      sync.RWMutex
	sources map[string]*SourceCount
	window  time.Duration
}

// SourceCount holds the statistics for one detail source.
type SourceCount struct {
	Source    string
	Frequency int64
	LastSeen  time.Time
}

// NewSourceStats creates a tracker. window bounds how long an unused source
// is kept by Prune.
func NewSourceStats(window time.Duration) *SourceStats {
	return &SourceStats{
		sources: make(map[string]*SourceCount),
		window:  window,
	}
}

// Record counts one use of source.
func (s *SourceStats) Record(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sources[source]
	if !ok {
		c = &SourceCount{Source: source}
		s.sources[source] = c
	}
	c.Frequency++
	c.LastSeen = time.Now()
}

// Top returns copies of the n most frequent sources, most frequent first.
func (s *SourceStats) Top(n int) []SourceCount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.sources) == 0 {
		return []SourceCount{}
	}

	out := make([]SourceCount, 0, len(s.sources))
	for _, c := range s.sources {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Source < out[j].Source
	})

	if n > len(out) {
		n = len(out)
	}
	return out[:n]
}

// Prune removes sources not seen within the window.
func (s *SourceStats) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-s.window)
	for k, c := range s.sources {
		if c.LastSeen.Before(threshold) {
			delete(s.sources, k)
		}
	}
}
