package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spaolacci/murmur3"
)

// maxKeyLength is the longest logical key stored verbatim.
const maxKeyLength = 200

var safeSegment = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// FileStore maps logical keys such as "wavelets/CADRG/a/00001011.JA1.WVT"
// to paths under a root directory. Segments that are unsafe on disk are
// replaced by their murmur3 hash; over-long keys are hashed whole, keeping
// only the final segment readable.
type FileStore struct {
	root string
}

// NewFileStore creates a file store rooted at root.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("storage: failed to create file store root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to resolve file store root: %w", err)
	}
	return &FileStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FileStore) Root() string {
	return f.root
}

// Resolve returns the path for a logical key without touching the disk.
func (f *FileStore) Resolve(key string) string {
	key = strings.Trim(key, "/")
	segments := strings.Split(key, "/")

	if len(key) > maxKeyLength {
		last := segments[len(segments)-1]
		if !safeSegment.MatchString(last) {
			last = HashKey(last)
		}
		return filepath.Join(f.root, "h", HashKey(key), last)
	}

	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, f.root)
	for _, s := range segments {
		if s == "." || s == ".." || !safeSegment.MatchString(s) {
			s = HashKey(s)
		}
		parts = append(parts, s)
	}
	return filepath.Join(parts...)
}

// Allocate resolves key and creates its parent directory.
func (f *FileStore) Allocate(key string) (string, error) {
	p := f.Resolve(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("storage: failed to allocate %s: %w", key, err)
	}
	return p, nil
}

// HashKey returns the hex murmur3-128 hash of s.
func HashKey(s string) string {
	h1, h2 := murmur3.Sum128([]byte(s))
	return fmt.Sprintf("%016x%016x", h1, h2)
}
