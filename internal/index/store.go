// Package index implements the frame index: three record tables that
// cross-reference source frames, their progressive encodings and the
// directories containing them, plus the binary file format they persist to.
package index

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/arkilian/rpftiles/pkg/types"
)

// Properties holds index-wide metadata.
type Properties struct {
	RootPath       string
	DataSeriesID   string
	Description    string
	BoundingSector types.Sector
}

// Store is an in-memory frame index. Record creation and lookup are safe for
// concurrent use.
type Store struct {
	propsMu sync.RWMutex
	props   Properties

	// linkMu serializes cross-table updates so file and wavelet records
	// always point at each other.
	linkMu sync.Mutex

	files       *Table[FileRecord]
	wavelets    *Table[WaveletRecord]
	directories *Table[DirectoryRecord]
}

// NewStore creates an empty store with the given properties.
func NewStore(props Properties) *Store {
	return &Store{
		props:       props,
		files:       NewTable(newFileRecord),
		wavelets:    NewTable(newWaveletRecord),
		directories: NewTable(newDirectoryRecord),
	}
}

// Files returns the frame file table.
func (s *Store) Files() *Table[FileRecord] { return s.files }

// Wavelets returns the wavelet table.
func (s *Store) Wavelets() *Table[WaveletRecord] { return s.wavelets }

// Directories returns the directory table.
func (s *Store) Directories() *Table[DirectoryRecord] { return s.directories }

// Properties returns a copy of the index properties.
func (s *Store) Properties() Properties {
	s.propsMu.RLock()
	defer s.propsMu.RUnlock()
	return s.props
}

// CreateFileRecord adds a frame record with an upper-cased filename.
func (s *Store) CreateFileRecord(filename string, dirKey types.Key) types.Key {
	var key types.Key
	s.files.mu.Lock()
	key = s.files.createLocked()
	rec := s.files.records[key]
	rec.Filename = strings.ToUpper(filename)
	rec.DirectoryKey = dirKey
	s.files.mu.Unlock()
	return key
}

// DedupeDirectory returns the key of the directory record whose path equals
// path exactly, creating it if none exists.
func (s *Store) DedupeDirectory(path string) types.Key {
	return s.directories.FindOrCreate(
		func(d *DirectoryRecord) bool { return d.Path == path },
		func(d *DirectoryRecord) { d.Path = path },
	)
}

// SetSector stores the footprint of a frame record.
func (s *Store) SetSector(fileKey types.Key, sector types.Sector) bool {
	return s.files.Update(fileKey, func(r *FileRecord) { r.Sector = sector })
}

// AttachWavelet links a wavelet encoding to a frame record. A frame that
// already has a wavelet record has it updated in place. It reports false when
// fileKey does not resolve.
func (s *Store) AttachWavelet(fileKey types.Key, filename string, dirKey types.Key) (types.Key, bool) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	file, ok := s.files.Lookup(fileKey)
	if !ok {
		return types.InvalidKey, false
	}

	set := func(w *WaveletRecord) {
		w.Filename = filename
		w.DirectoryKey = dirKey
		w.FileKey = fileKey
	}
	if file.WaveletKey.Valid() && s.wavelets.Update(file.WaveletKey, set) {
		return file.WaveletKey, true
	}

	s.wavelets.mu.Lock()
	wKey := s.wavelets.createLocked()
	set(s.wavelets.records[wKey])
	s.wavelets.mu.Unlock()

	s.files.Update(fileKey, func(r *FileRecord) { r.WaveletKey = wKey })
	return wKey, true
}

// UnionBoundingSector recomputes the index bounding sector as the union of
// every complete frame sector, clamped to the valid latitude and longitude
// range. When no frame has a sector the bounding sector becomes null.
func (s *Store) UnionBoundingSector() types.Sector {
	var (
		union types.BBox
		found bool
	)
	s.files.Each(func(_ types.Key, r FileRecord) bool {
		b, ok := r.Sector.Bounds()
		if !ok {
			return true
		}
		if !found {
			union, found = b, true
		} else {
			union = union.Union(b)
		}
		return true
	})

	var sector types.Sector
	if found {
		sector = union.Clamp().Sector()
	}

	s.propsMu.Lock()
	s.props.BoundingSector = sector
	s.propsMu.Unlock()
	return sector
}

// DirectoryPath returns the path of a directory record.
func (s *Store) DirectoryPath(dirKey types.Key) (string, bool) {
	d, ok := s.directories.Lookup(dirKey)
	if !ok {
		return "", false
	}
	return d.Path, true
}

// FilePath returns the path of a frame file as recorded in the index.
func (s *Store) FilePath(fileKey types.Key) (string, bool) {
	r, ok := s.files.Lookup(fileKey)
	if !ok {
		return "", false
	}
	dir, ok := s.DirectoryPath(r.DirectoryKey)
	if !ok {
		return "", false
	}
	return filepath.Join(dir, r.Filename), true
}

// WaveletPath returns the path of the wavelet file attached to a frame.
func (s *Store) WaveletPath(fileKey types.Key) (string, bool) {
	r, ok := s.files.Lookup(fileKey)
	if !ok {
		return "", false
	}
	w, ok := s.wavelets.Lookup(r.WaveletKey)
	if !ok {
		return "", false
	}
	dir, ok := s.DirectoryPath(w.DirectoryKey)
	if !ok {
		return "", false
	}
	return filepath.Join(dir, w.Filename), true
}

// Validate checks that every valid secondary key resolves and that file and
// wavelet records reference each other.
func (s *Store) Validate() error {
	var err error
	s.files.Each(func(k types.Key, r FileRecord) bool {
		if r.DirectoryKey.Valid() && !s.directories.Contains(r.DirectoryKey) {
			err = fmt.Errorf("index: file %d references missing directory %d", k, r.DirectoryKey)
			return false
		}
		if r.WaveletKey.Valid() {
			w, ok := s.wavelets.Lookup(r.WaveletKey)
			if !ok {
				err = fmt.Errorf("index: file %d references missing wavelet %d", k, r.WaveletKey)
				return false
			}
			if w.FileKey != k {
				err = fmt.Errorf("index: wavelet %d points back to file %d, not %d", r.WaveletKey, w.FileKey, k)
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}

	s.wavelets.Each(func(k types.Key, w WaveletRecord) bool {
		if w.DirectoryKey.Valid() && !s.directories.Contains(w.DirectoryKey) {
			err = fmt.Errorf("index: wavelet %d references missing directory %d", k, w.DirectoryKey)
			return false
		}
		if w.FileKey.Valid() && !s.files.Contains(w.FileKey) {
			err = fmt.Errorf("index: wavelet %d references missing file %d", k, w.FileKey)
			return false
		}
		return true
	})
	return err
}
