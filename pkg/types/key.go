// Package types provides core data types shared by the frame index, the
// builder and the tile synthesizer.
package types

import "strconv"

// Key identifies a record within one index table. Keys are assigned
// monotonically per table starting at 0.
type Key int64

// InvalidKey marks a secondary key that references nothing.
const InvalidKey Key = -1

// Valid reports whether k can reference a record.
func (k Key) Valid() bool {
	return k >= 0
}

// String returns the decimal key, or "invalid".
func (k Key) String() string {
	if !k.Valid() {
		return "invalid"
	}
	return strconv.FormatInt(int64(k), 10)
}
