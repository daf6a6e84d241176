package builder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/rpftiles/internal/index"
	"github.com/arkilian/rpftiles/internal/storage"
	"github.com/arkilian/rpftiles/pkg/types"
)

func TestMosaicGrid(t *testing.T) {
	bounds := types.BBox{MinLat: 10, MaxLat: 12, MinLon: 20, MaxLon: 21}
	tiles := MosaicGrid(bounds, 36, 2)
	require.Len(t, tiles, 2)

	assert.Equal(t, TileSpec{
		Level: 0, Row: 2, Col: 5,
		Bounds: types.BBox{MinLat: -18, MaxLat: 18, MinLon: 0, MaxLon: 36},
	}, tiles[0])
	assert.Equal(t, 1, tiles[1].Level)
	assert.Equal(t, 5, tiles[1].Row)
	assert.Equal(t, 11, tiles[1].Col)
	assert.Equal(t, "1/5/11", tiles[1].String())
}

func TestMosaicGrid_World(t *testing.T) {
	world := types.BBox{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
	assert.Len(t, MosaicGrid(world, 36, 1), 50)
	assert.Len(t, MosaicGrid(world, 36, 2), 50+200)
}

func TestMosaicGrid_Degenerate(t *testing.T) {
	assert.Empty(t, MosaicGrid(types.BBox{}, 36, 1))
	assert.Empty(t, MosaicGrid(types.BBox{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}, 0, 1))
}

func TestMosaicTiles_WrapsAntimeridian(t *testing.T) {
	store := index.NewStore(index.Properties{})
	dir := store.DedupeDirectory("/frames")

	crossing := store.CreateFileRecord("00000010.ON1", dir)
	store.SetSector(crossing, types.NewSector(10, 12, 178, 182))
	inland := store.CreateFileRecord("00000020.ON1", dir)
	store.SetSector(inland, types.NewSector(10, 12, 170, 171))

	bounds, ok := store.UnionBoundingSector().Bounds()
	require.True(t, ok)
	assert.Equal(t, 180.0, bounds.MaxLon)

	tiles := mosaicTiles(store, bounds, 36, 1)
	require.Len(t, tiles, 2)
	assert.Equal(t, "0/2/0", tiles[0].String())
	assert.Equal(t, types.BBox{MinLat: -18, MaxLat: 18, MinLon: -180, MaxLon: -144}, tiles[0].Bounds)
	assert.Equal(t, "0/2/9", tiles[1].String())
}

func TestMosaicTiles_NoCrossing(t *testing.T) {
	store := index.NewStore(index.Properties{})
	key := store.CreateFileRecord("00000010.ON1", store.DedupeDirectory("/frames"))
	store.SetSector(key, types.NewSector(10, 12, 20, 21))

	bounds := types.BBox{MinLat: 10, MaxLat: 12, MinLon: 20, MaxLon: 21}
	assert.Equal(t, MosaicGrid(bounds, 36, 2), mosaicTiles(store, bounds, 36, 2))
}

func TestPublish_Local(t *testing.T) {
	h := newHarness(t)
	files := writeFrames(t, filepath.Join(h.dir, "frames"), 3)
	req := h.request(files)

	store, err := h.builder(t, h.config(1), nil).Build(context.Background(), req)
	require.NoError(t, err)

	target, err := storage.NewLocalStorage(filepath.Join(h.dir, "published"))
	require.NoError(t, err)

	p := NewPublisher(target, h.files.Root(), 2, nil)
	mosaic := filepath.Join(filepath.Dir(req.IndexFile), "mosaic.db")
	res, err := p.Publish(context.Background(), store, req.IndexFile, mosaic)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Objects)
	assert.Greater(t, res.Bytes, int64(0))
	assert.NotEmpty(t, res.MosaicETag)

	for _, obj := range []string{IndexObject, MosaicObject} {
		ok, err := target.Exists(context.Background(), obj)
		require.NoError(t, err)
		assert.True(t, ok, obj)
	}

	wavelets, err := target.ListObjects(context.Background(), WaveletPrefix)
	require.NoError(t, err)
	assert.Len(t, wavelets, 3)
}

func TestPublisher_WaveletObject(t *testing.T) {
	p := NewPublisher(nil, "/data/cache", 1, nil)
	assert.Equal(t, "wavelets/ON/abc/000010A1.ON1.WVT",
		p.WaveletObject(filepath.FromSlash("/data/cache/wavelets/ON/abc/000010A1.ON1.WVT")))

	outside := p.WaveletObject(filepath.FromSlash("/elsewhere/000010A1.ON1.WVT"))
	assert.Contains(t, outside, "wavelets/h/")
	assert.Equal(t, "000010A1.ON1.WVT", filepath.Base(outside))
}
