package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/arkilian/rpftiles/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DedupeDirectory(t *testing.T) {
	s := NewStore(Properties{})

	a := s.DedupeDirectory("/maps/cadrg")
	b := s.DedupeDirectory("/maps/cadrg")
	c := s.DedupeDirectory("/maps/CADRG")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "dedup is case-sensitive")
	assert.Equal(t, 2, s.Directories().Len())
}

func TestStore_DedupeDirectoryConcurrent(t *testing.T) {
	s := NewStore(Properties{})

	var wg sync.WaitGroup
	keys := make([]types.Key, 64)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i] = s.DedupeDirectory(fmt.Sprintf("/maps/%d", i%4))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, s.Directories().Len())
	for i := range keys {
		assert.Equal(t, keys[i%4], keys[i])
	}
}

func TestStore_SharedDirectoryReferencedByBothFiles(t *testing.T) {
	s := NewStore(Properties{})
	dir := s.DedupeDirectory("/maps/a")
	f1 := s.CreateFileRecord("00001011.ja1", dir)
	f2 := s.CreateFileRecord("00002011.JA1", s.DedupeDirectory("/maps/a"))

	r1, _ := s.Files().Lookup(f1)
	r2, _ := s.Files().Lookup(f2)
	assert.Equal(t, r1.DirectoryKey, r2.DirectoryKey)
	assert.Equal(t, "00001011.JA1", r1.Filename)
	assert.Equal(t, 1, s.Directories().Len())

	path, ok := s.FilePath(f1)
	require.True(t, ok)
	assert.Equal(t, "/maps/a/00001011.JA1", path)
}

func TestStore_AttachWaveletIsBidirectional(t *testing.T) {
	s := NewStore(Properties{})
	dir := s.DedupeDirectory("/maps")
	wdir := s.DedupeDirectory("/cache")
	f := s.CreateFileRecord("00001011.JA1", dir)

	w, ok := s.AttachWavelet(f, "00001011.JA1.WVT", wdir)
	require.True(t, ok)

	file, _ := s.Files().Lookup(f)
	wav, _ := s.Wavelets().Lookup(w)
	assert.Equal(t, w, file.WaveletKey)
	assert.Equal(t, f, wav.FileKey)
	require.NoError(t, s.Validate())

	// reattaching updates the existing wavelet record
	w2, ok := s.AttachWavelet(f, "00001011.JA1.WVT", wdir)
	require.True(t, ok)
	assert.Equal(t, w, w2)
	assert.Equal(t, 1, s.Wavelets().Len())

	path, ok := s.WaveletPath(f)
	require.True(t, ok)
	assert.Equal(t, "/cache/00001011.JA1.WVT", path)

	_, ok = s.AttachWavelet(99, "X", wdir)
	assert.False(t, ok)
}

func TestStore_UnionBoundingSector(t *testing.T) {
	s := NewStore(Properties{})
	dir := s.DedupeDirectory("/maps")
	a := s.CreateFileRecord("A", dir)
	b := s.CreateFileRecord("B", dir)
	c := s.CreateFileRecord("C", dir)
	s.SetSector(a, types.NewSector(10, 11, 20, 21))
	s.SetSector(b, types.NewSector(11, 12, 20, 21))
	s.SetSector(c, types.Sector{MinLatitude: types.Degrees(-5)})

	got := s.UnionBoundingSector()
	assert.Equal(t, types.NewSector(10, 12, 20, 21), got)
	assert.Equal(t, got, s.Properties().BoundingSector)
}

func TestStore_UnionBoundingSectorClampsAndStaysNull(t *testing.T) {
	s := NewStore(Properties{})
	dir := s.DedupeDirectory("/maps")
	s.CreateFileRecord("A", dir)
	assert.True(t, s.UnionBoundingSector().IsNull())

	f := s.CreateFileRecord("B", dir)
	s.SetSector(f, types.NewSector(80, 95, 170, 190))
	assert.Equal(t, types.NewSector(80, 90, 170, 180), s.UnionBoundingSector())
}

func TestStore_ValidateDetectsDanglingKeys(t *testing.T) {
	s := NewStore(Properties{})
	s.CreateFileRecord("A", 5)
	assert.Error(t, s.Validate())

	s = NewStore(Properties{})
	f := s.CreateFileRecord("A", types.InvalidKey)
	s.Files().Update(f, func(r *FileRecord) { r.WaveletKey = 3 })
	assert.Error(t, s.Validate())
}
