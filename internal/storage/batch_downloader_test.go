package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchDownloader_MirrorsPaths(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	src := t.TempDir()
	objects := []string{"rpf.idx", "wavelets/ON/00001011.JA1.WVT", "wavelets/ON/00002011.JA1.WVT"}
	for _, o := range objects {
		require.NoError(t, store.Upload(ctx, writeFile(t, filepath.Join(src, o), o), o))
	}

	dest := t.TempDir()
	d := NewBatchDownloader(store, 2, dest)
	res, err := d.Download(ctx, &BatchRequest{
		ObjectPaths: append(objects, "missing.WVT"),
		Priority:    []int{0, 1, 1, 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Downloads)
	assert.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors["missing.WVT"], ErrObjectNotFound)

	data, err := os.ReadFile(filepath.Join(dest, "wavelets", "ON", "00001011.JA1.WVT"))
	require.NoError(t, err)
	assert.Equal(t, "wavelets/ON/00001011.JA1.WVT", string(data))

	// a second pass skips what is already there
	res, err = d.Download(ctx, &BatchRequest{ObjectPaths: objects})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 0, res.Downloads)
}

func TestBatchDownloader_RejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	d := NewBatchDownloader(store, 1, t.TempDir())
	res, err := d.Download(context.Background(), &BatchRequest{ObjectPaths: []string{"../../etc/passwd"}})
	require.NoError(t, err)
	assert.Len(t, res.Errors, 1)
}

func TestBatchDownloader_PriorityLengthMismatch(t *testing.T) {
	d := NewBatchDownloader(nil, 1, t.TempDir())
	_, err := d.Download(context.Background(), &BatchRequest{
		ObjectPaths: []string{"a", "b"},
		Priority:    []int{0},
	})
	assert.Error(t, err)
}
