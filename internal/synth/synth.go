// Package synth answers raster tile queries against a built frame index by
// compositing full-resolution frames and progressive reconstructions.
package synth

import (
	"context"
	"fmt"
	"image"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/arkilian/rpftiles/internal/absent"
	"github.com/arkilian/rpftiles/internal/errors"
	"github.com/arkilian/rpftiles/internal/frame"
	"github.com/arkilian/rpftiles/internal/index"
	"github.com/arkilian/rpftiles/internal/observability"
	"github.com/arkilian/rpftiles/internal/rpf"
	"github.com/arkilian/rpftiles/internal/storage"
	"github.com/arkilian/rpftiles/internal/wavelet"
	"github.com/arkilian/rpftiles/pkg/types"
)

type indexFile = index.FileRecord

// Config holds synthesizer tuning.
type Config struct {
	// FullResolutionThreshold is the footprint in pixels above which the source frame is decoded.
	FullResolutionThreshold int

	// PreloadResolution is the largest resolution served from the partial-decode cache.
	PreloadResolution int

	// PreloadCacheEntries bounds the partial-decode cache.
	PreloadCacheEntries int
}

// DefaultConfig returns the default synthesizer configuration.
func DefaultConfig() Config {
	return Config{
		FullResolutionThreshold: 256,
		PreloadResolution:       32,
		PreloadCacheEntries:     4096,
	}
}

// Deps are the collaborators of a Synthesizer. Store, Tracker, Decoder and
// Codec are required.
type Deps struct {
	Store   *index.Store
	Tracker *absent.Tracker
	Decoder frame.Decoder
	Codec   wavelet.Decoder

	// Locks guards reads of frame and wavelet files against concurrent writers.
	Locks *storage.PathLocks

	// ReadWavelet reads an encoded wavelet file; defaults to wavelet.ReadFile.
	ReadWavelet func(path string) ([]byte, error)

	Stats  *observability.SourceStats
	Logger *zap.Logger
}

// Synthesizer composites tiles from a frame index. It is safe for concurrent
// use and never modifies the index.
type Synthesizer struct {
	cfg         Config
	store       *index.Store
	tracker     *absent.Tracker
	decoder     frame.Decoder
	codec       wavelet.Decoder
	locks       *storage.PathLocks
	readWavelet func(string) ([]byte, error)
	stats       *observability.SourceStats
	logger      *zap.Logger

	preload *lru.Cache[types.Key, wavelet.Codec]
	loading singleflight.Group
}

// New creates a synthesizer.
func New(cfg Config, deps Deps) (*Synthesizer, error) {
	if deps.Store == nil || deps.Tracker == nil || deps.Decoder == nil || deps.Codec == nil {
		return nil, fmt.Errorf("synth: store, tracker, decoder and codec are required")
	}
	if cfg.FullResolutionThreshold < 1 {
		cfg.FullResolutionThreshold = DefaultConfig().FullResolutionThreshold
	}
	if cfg.PreloadResolution < 1 {
		cfg.PreloadResolution = DefaultConfig().PreloadResolution
	}
	if cfg.PreloadCacheEntries < 1 {
		cfg.PreloadCacheEntries = DefaultConfig().PreloadCacheEntries
	}

	cache, err := lru.New[types.Key, wavelet.Codec](cfg.PreloadCacheEntries)
	if err != nil {
		return nil, fmt.Errorf("synth: failed to create preload cache: %w", err)
	}

	s := &Synthesizer{
		cfg:         cfg,
		store:       deps.Store,
		tracker:     deps.Tracker,
		decoder:     deps.Decoder,
		codec:       deps.Codec,
		locks:       deps.Locks,
		readWavelet: deps.ReadWavelet,
		stats:       deps.Stats,
		logger:      deps.Logger,
		preload:     cache,
	}
	if s.locks == nil {
		s.locks = storage.NewPathLocks()
	}
	if s.readWavelet == nil {
		s.readWavelet = wavelet.ReadFile
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// Synthesize renders bbox at width x height. It returns nil and no error
// when no frame contributes any pixels. A frame that fails to load is marked
// absent and skipped.
func (s *Synthesizer) Synthesize(ctx context.Context, bbox types.BBox, width, height int) (*image.RGBA, error) {
	start := time.Now()
	defer func() { observability.SynthDuration.Observe(time.Since(start).Seconds()) }()

	candidates, err := s.Plan(bbox, width, height)
	if err != nil {
		observability.SynthRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	contributed := false

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pieces, err := s.load(c)
		if err != nil {
			state := s.tracker.MarkAbsent(c.FileKey)
			observability.SynthFrameFailuresTotal.Inc()
			s.logger.Warn("synth: frame failed to load",
				zap.Stringer("file_key", c.FileKey),
				zap.Stringer("source", c.Source),
				zap.Stringer("state", state),
				zap.Error(err))
			continue
		}

		observability.SynthSourcesTotal.WithLabelValues(sourceLabel(c.Source)).Inc()
		if s.stats != nil {
			s.stats.Record(c.Source.String())
		}

		for _, p := range pieces {
			if composite(dst, bbox, p) {
				contributed = true
			}
		}
	}

	if !contributed {
		observability.SynthRequestsTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}
	observability.SynthRequestsTotal.WithLabelValues("image").Inc()
	return dst, nil
}

// load returns the source rasters for a candidate, split at the antimeridian.
func (s *Synthesizer) load(c Candidate) ([]rpf.Piece, error) {
	var img image.Image
	var err error

	if c.Source.Kind == SourceFull {
		img, err = s.loadFull(c.FileKey)
	} else {
		img, err = s.loadWavelet(c.FileKey, c.Source)
	}
	if err != nil {
		return nil, err
	}
	return rpf.Deproject(img, c.Bounds), nil
}

func (s *Synthesizer) loadFull(key types.Key) (image.Image, error) {
	path, ok := s.store.FilePath(key)
	if !ok {
		return nil, errors.NewInternalError(fmt.Sprintf("synth: no path for file %s", key), nil)
	}
	unlock := s.locks.RLock(path)
	defer unlock()
	return s.decoder.Decode(path)
}

func (s *Synthesizer) loadWavelet(key types.Key, src Source) (image.Image, error) {
	var codec wavelet.Codec
	var err error
	if src.Preloaded {
		codec, err = s.preloaded(key)
	} else {
		codec, err = s.readCodec(key, src.Resolution)
	}
	if err != nil {
		return nil, err
	}
	return codec.Reconstruct(min(src.Resolution, codec.Resolution()))
}

// preloaded returns the cached partial decode for key, populating it at
// most once per key even under concurrent queries.
func (s *Synthesizer) preloaded(key types.Key) (wavelet.Codec, error) {
	if c, ok := s.preload.Get(key); ok {
		return c, nil
	}

	v, err, _ := s.loading.Do(key.String(), func() (interface{}, error) {
		if c, ok := s.preload.Get(key); ok {
			return c, nil
		}
		c, err := s.readCodec(key, s.cfg.PreloadResolution)
		if err != nil {
			return nil, err
		}
		s.preload.Add(key, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(wavelet.Codec), nil
}

func (s *Synthesizer) readCodec(key types.Key, resolution int) (wavelet.Codec, error) {
	path, ok := s.store.WaveletPath(key)
	if !ok {
		return nil, errors.NewInternalError(fmt.Sprintf("synth: no wavelet for file %s", key), nil)
	}

	unlock := s.locks.RLock(path)
	data, err := s.readWavelet(path)
	unlock()
	if err != nil {
		return nil, errors.NewDecodeError("synth: read wavelet", err)
	}
	return s.codec.PartialDecode(data, resolution)
}

// PreloadLen returns the number of cached partial decodes.
func (s *Synthesizer) PreloadLen() int {
	return s.preload.Len()
}

func validate(bbox types.BBox, width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.NewInvalidQuery(fmt.Sprintf("synth: size %dx%d must be positive", width, height)).
			WithDetails(map[string]interface{}{"width": width, "height": height})
	}
	if !bbox.Valid() {
		return errors.NewInvalidQuery(fmt.Sprintf("synth: degenerate bounding box %s", bbox))
	}
	return nil
}

func sourceLabel(s Source) string {
	switch {
	case s.Kind == SourceFull:
		return "full"
	case s.Preloaded:
		return "preload"
	default:
		return "wavelet"
	}
}
