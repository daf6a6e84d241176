package builder

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/arkilian/rpftiles/internal/index"
	"github.com/arkilian/rpftiles/internal/observability"
	"github.com/arkilian/rpftiles/internal/synth"
	"github.com/arkilian/rpftiles/internal/tilestore"
	"github.com/arkilian/rpftiles/pkg/types"
)

// MosaicConfig configures the initial coarse mosaic.
type MosaicConfig struct {
	Enabled bool

	// TileSize is the tile edge in pixels.
	TileSize int

	// LevelZeroDelta is the level-0 tile extent in degrees.
	LevelZeroDelta float64

	// Levels is the number of levels; each halves the tile extent.
	Levels int

	// Path overrides the mosaic database location, by default mosaic.db
	// next to the index file.
	Path string
}

// DefaultMosaicConfig returns the default mosaic configuration.
func DefaultMosaicConfig() MosaicConfig {
	return MosaicConfig{
		Enabled:        true,
		TileSize:       512,
		LevelZeroDelta: 36,
		Levels:         1,
	}
}

// TileSpec addresses one mosaic tile. Rows count north from -90 degrees and
// columns east from -180 degrees.
type TileSpec struct {
	Level  int
	Row    int
	Col    int
	Bounds types.BBox
}

func (t TileSpec) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Level, t.Row, t.Col)
}

// MosaicGrid lists the tiles of levels [0, levels) that intersect bounds.
func MosaicGrid(bounds types.BBox, levelZeroDelta float64, levels int) []TileSpec {
	if !bounds.Valid() || levelZeroDelta <= 0 {
		return nil
	}

	var tiles []TileSpec
	for level := 0; level < levels; level++ {
		delta := levelZeroDelta / math.Exp2(float64(level))
		r0, r1 := span(bounds.MinLat+90, bounds.MaxLat+90, delta)
		c0, c1 := span(bounds.MinLon+180, bounds.MaxLon+180, delta)

		for row := r0; row < r1; row++ {
			for col := c0; col < c1; col++ {
				tiles = append(tiles, TileSpec{
					Level: level,
					Row:   row,
					Col:   col,
					Bounds: types.BBox{
						MinLat: -90 + float64(row)*delta,
						MaxLat: -90 + float64(row+1)*delta,
						MinLon: -180 + float64(col)*delta,
						MaxLon: -180 + float64(col+1)*delta,
					},
				})
			}
		}
	}
	return tiles
}

// span returns the half-open cell range covering [lo, hi] at cell size delta.
func span(lo, hi, delta float64) (int, int) {
	first := int(math.Floor(lo / delta))
	last := int(math.Ceil(hi / delta))
	if last <= first {
		last = first + 1
	}
	return first, last
}

// mosaicTiles lists the grid over bounds plus the wrapped east part of every
// frame that crosses the antimeridian, each tile once, ordered by level,
// row and column.
func mosaicTiles(store *index.Store, bounds types.BBox, levelZeroDelta float64, levels int) []TileSpec {
	areas := []types.BBox{bounds}
	store.Files().Each(func(_ types.Key, r index.FileRecord) bool {
		b, ok := r.Sector.Bounds()
		if !ok {
			return true
		}
		if b = b.NormalizeSeam(); b.MaxLon > 180 {
			wrapped := types.BBox{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLon: -180, MaxLon: b.MaxLon - 360}
			areas = append(areas, wrapped.Clamp())
		}
		return true
	})

	seen := make(map[string]struct{})
	var tiles []TileSpec
	for _, a := range areas {
		for _, t := range MosaicGrid(a, levelZeroDelta, levels) {
			if _, dup := seen[t.String()]; dup {
				continue
			}
			seen[t.String()] = struct{}{}
			tiles = append(tiles, t)
		}
	}

	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i], tiles[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
	return tiles
}

// mosaic renders every grid tile over bounds into the tile store at path.
// Tiles no frame contributes to are not stored.
func (b *Builder) mosaic(ctx context.Context, ev *emitter, logger *zap.Logger, store *index.Store, sector types.Sector, path string) error {
	start := time.Now()
	ev.begin(PhaseMosaic)
	defer func() {
		ev.end(PhaseMosaic)
		observability.BuildPhaseDuration.WithLabelValues(string(PhaseMosaic)).Observe(time.Since(start).Seconds())
	}()

	bounds, ok := sector.Bounds()
	if !ok {
		ev.count(PhaseMosaic, 0)
		logger.Info("builder: index has no bounding sector, skipping mosaic")
		return nil
	}

	synthesizer, err := b.newSynthesizer(store, logger)
	if err != nil {
		return err
	}
	tiles, err := tilestore.Open(path)
	if err != nil {
		return fmt.Errorf("builder: %w", err)
	}
	defer tiles.Close()

	grid := mosaicTiles(store, bounds, b.cfg.Mosaic.LevelZeroDelta, b.cfg.Mosaic.Levels)
	ev.count(PhaseMosaic, len(grid))

	runUnits(ctx, b, ev, logger, PhaseMosaic, grid,
		TileSpec.String,
		func(ctx context.Context, t TileSpec) error {
			return renderTile(ctx, synthesizer, tiles, t, b.cfg.Mosaic.TileSize)
		})

	if err := tiles.Checkpoint(context.Background()); err != nil {
		logger.Warn("builder: mosaic checkpoint failed", zap.Error(err))
	}
	return nil
}

func renderTile(ctx context.Context, s *synth.Synthesizer, tiles *tilestore.Store, t TileSpec, size int) error {
	img, err := s.Synthesize(ctx, t.Bounds, size, size)
	if err != nil {
		return err
	}
	if img == nil {
		return nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("builder: encode tile %s: %w", t, err)
	}
	return tiles.Put(ctx, &tilestore.Tile{
		Level:  t.Level,
		Row:    t.Row,
		Col:    t.Col,
		Bounds: t.Bounds,
		Image:  buf.Bytes(),
	})
}
