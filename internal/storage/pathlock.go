package storage

import "sync"

// PathLocks hands out one advisory RWMutex per file path so readers of a
// derived file never observe a concurrent writer's partial output.
type PathLocks struct {
	mu    sync.RWMutex
	locks map[string]*sync.RWMutex
}

// NewPathLocks creates an empty lock set.
func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*sync.RWMutex)}
}

// RLock takes the read lock for path and returns its release function.
func (p *PathLocks) RLock(path string) func() {
	l := p.get(path)
	l.RLock()
	return l.RUnlock
}

// Lock takes the write lock for path and returns its release function.
func (p *PathLocks) Lock(path string) func() {
	l := p.get(path)
	l.Lock()
	return l.Unlock
}

func (p *PathLocks) get(path string) *sync.RWMutex {
	p.mu.RLock()
	if l, ok := p.locks[path]; ok {
		p.mu.RUnlock()
		return l
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := p.locks[path]; ok {
		return l
	}
	l := &sync.RWMutex{}
	p.locks[path] = l
	return l
}

// Len returns the number of paths that have been locked.
func (p *PathLocks) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.locks)
}
