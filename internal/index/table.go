package index

import (
	"sort"
	"sync"

	"github.com/arkilian/rpftiles/pkg/types"
)

// Table is an ordered collection of records addressed by monotonically
// assigned keys. All operations are serialized by a single mutex; keys are
// never reused.
type Table[R any] struct {
	mu      sync.Mutex
	order   []types.Key
	records map[types.Key]*R
	next    types.Key
	newRec  func() R
}

// NewTable creates an empty table. newRecord builds the zero record for Create.
func NewTable[R any](newRecord func() R) *Table[R] {
	return &Table[R]{
		records: make(map[types.Key]*R),
		newRec:  newRecord,
	}
}

// Create allocates the next key and an empty record, visible immediately.
func (t *Table[R]) Create() types.Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createLocked()
}

func (t *Table[R]) createLocked() types.Key {
	key := t.next
	t.next++
	rec := t.newRec()
	t.records[key] = &rec
	t.order = append(t.order, key)
	return key
}

// insert places a record under an explicit key; used by Load.
func (t *Table[R]) insert(key types.Key, rec R) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !key.Valid() {
		return false
	}
	if _, exists := t.records[key]; exists {
		return false
	}
	t.records[key] = &rec
	t.order = append(t.order, key)
	if key >= t.next {
		t.next = key + 1
	}
	return true
}

// Lookup returns a copy of the record for key. Invalid or unknown keys
// report false.
func (t *Table[R]) Lookup(key types.Key) (R, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok {
		var zero R
		return zero, false
	}
	return *rec, true
}

// Contains reports whether key resolves to a record.
func (t *Table[R]) Contains(key types.Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.records[key]
	return ok
}

// Update applies fn to the record for key under the table lock.
func (t *Table[R]) Update(key types.Key, fn func(*R)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok {
		return false
	}
	fn(rec)
	return true
}

// FindOrCreate returns the key of the first record matching match, or creates
// one initialized by init. The scan and the creation happen under one lock.
func (t *Table[R]) FindOrCreate(match func(*R) bool, init func(*R)) types.Key {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, k := range t.order {
		if match(t.records[k]) {
			return k
		}
	}
	key := t.createLocked()
	init(t.records[key])
	return key
}

// Each calls fn with a copy of every record in creation order. Returning
// false stops the iteration. fn must not call back into the table.
func (t *Table[R]) Each(fn func(types.Key, R) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, k := range t.order {
		if !fn(k, *t.records[k]) {
			return
		}
	}
}

// Keys returns all keys in ascending order.
func (t *Table[R]) Keys() []types.Key {
	t.mu.Lock()
	keys := make([]types.Key, len(t.order))
	copy(keys, t.order)
	t.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of records.
func (t *Table[R]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// NextKey returns the key the next Create will assign.
func (t *Table[R]) NextKey() types.Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}
