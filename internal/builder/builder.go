// Package builder populates a frame index from a set of frame files: it
// geocodes every frame, derives progressive encodings, persists the index
// and renders an initial coarse mosaic.
package builder

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/arkilian/rpftiles/internal/absent"
	"github.com/arkilian/rpftiles/internal/errors"
	"github.com/arkilian/rpftiles/internal/frame"
	"github.com/arkilian/rpftiles/internal/geocode"
	"github.com/arkilian/rpftiles/internal/index"
	"github.com/arkilian/rpftiles/internal/observability"
	"github.com/arkilian/rpftiles/internal/storage"
	"github.com/arkilian/rpftiles/internal/synth"
	"github.com/arkilian/rpftiles/internal/wavelet"
	"github.com/arkilian/rpftiles/pkg/types"
)

// ErrNoSector is reported for frames whose footprint could not be computed.
var ErrNoSector = stderrors.New("builder: frame has no sector")

// Config holds builder configuration.
type Config struct {
	// Workers is the pool size; values <= 1 run serially.
	Workers int

	// WaveletSize is the square edge frames are downsampled to before encoding.
	WaveletSize int

	// PollInterval is how often the pool is checked for completion.
	PollInterval time.Duration

	Mosaic MosaicConfig

	// Synth configures the synthesizer used for the mosaic.
	Synth synth.Config
}

// DefaultConfig returns the default builder configuration.
func DefaultConfig() Config {
	return Config{
		Workers:      1,
		WaveletSize:  256,
		PollInterval: 25 * time.Millisecond,
		Mosaic:       DefaultMosaicConfig(),
		Synth:        synth.DefaultConfig(),
	}
}

// Deps are the collaborators of a Builder.
type Deps struct {
	Geocoder *geocode.Geocoder
	Decoder  frame.Decoder
	Encoder  wavelet.Encoder
	Codec    wavelet.Decoder

	// Files allocates wavelet file paths.
	Files *storage.FileStore

	// Locks guards frame and wavelet files; shared with synthesizers.
	Locks *storage.PathLocks

	Listener Listener
	Logger   *zap.Logger
}

// Request names the inputs of one build.
type Request struct {
	// IndexFile is where the index is written; its directory is the index root.
	IndexFile    string
	DataSeriesID string
	Description  string
	Files        []string
}

// Builder runs builds. A Builder stays stopped once Stop is called.
type Builder struct {
	cfg      Config
	geocoder *geocode.Geocoder
	decoder  frame.Decoder
	encoder  wavelet.Encoder
	codec    wavelet.Decoder
	files    *storage.FileStore
	locks    *storage.PathLocks
	listener Listener
	logger   *zap.Logger

	stop atomic.Bool
}

// New creates a builder.
func New(cfg Config, deps Deps) (*Builder, error) {
	if deps.Decoder == nil || deps.Encoder == nil || deps.Files == nil {
		return nil, fmt.Errorf("builder: decoder, encoder and file store are required")
	}
	if cfg.WaveletSize < 1 || !wavelet.IsPowerOfTwo(cfg.WaveletSize) {
		return nil, fmt.Errorf("builder: wavelet size %d is not a power of two", cfg.WaveletSize)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}

	b := &Builder{
		cfg:      cfg,
		geocoder: deps.Geocoder,
		decoder:  deps.Decoder,
		encoder:  deps.Encoder,
		codec:    deps.Codec,
		files:    deps.Files,
		locks:    deps.Locks,
		listener: deps.Listener,
		logger:   deps.Logger,
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.geocoder == nil {
		var headers frame.HeaderReader
		if hr, ok := deps.Decoder.(frame.HeaderReader); ok {
			headers = hr
		}
		b.geocoder = geocode.New(headers, b.logger)
	}
	if b.codec == nil {
		if d, ok := deps.Encoder.(wavelet.Decoder); ok {
			b.codec = d
		}
	}
	if b.locks == nil {
		b.locks = storage.NewPathLocks()
	}
	return b, nil
}

// Stop asks the running build to finish early. Units already started run to
// completion; no new unit or phase starts.
func (b *Builder) Stop() {
	b.stop.Store(true)
}

// Stopped reports whether Stop has been called.
func (b *Builder) Stopped() bool {
	return b.stop.Load()
}

func (b *Builder) canceled(ctx context.Context) bool {
	if ctx.Err() != nil {
		b.stop.Store(true)
	}
	return b.stop.Load()
}

// Build populates a new index from req.Files. A canceled build returns
// errors.ErrCanceled and no store; the index file is only replaced by a
// build that reaches the save phase.
func (b *Builder) Build(ctx context.Context, req Request) (*index.Store, error) {
	if req.IndexFile == "" {
		return nil, fmt.Errorf("builder: index file is required")
	}
	indexFile, err := filepath.Abs(req.IndexFile)
	if err != nil {
		return nil, fmt.Errorf("builder: failed to resolve index file: %w", err)
	}

	runID := uuid.NewString()
	ev := &emitter{runID: runID, listener: b.listener}
	logger := b.logger.With(zap.String("run_id", runID))
	logger.Info("builder: starting build",
		zap.String("index", indexFile), zap.Int("files", len(req.Files)), zap.Int("workers", b.cfg.Workers))

	store := index.NewStore(index.Properties{
		RootPath:     filepath.Dir(indexFile),
		DataSeriesID: req.DataSeriesID,
		Description:  req.Description,
	})

	if b.canceled(ctx) {
		return nil, errors.ErrCanceled
	}
	paths := b.scan(ctx, ev, logger, store, req.Files)

	if b.canceled(ctx) {
		return nil, errors.ErrCanceled
	}
	b.encodeAll(ctx, ev, logger, store, paths)

	if b.canceled(ctx) {
		return nil, errors.ErrCanceled
	}
	bounds := store.UnionBoundingSector()

	if b.canceled(ctx) {
		return nil, errors.ErrCanceled
	}
	if err := b.save(ev, store, indexFile); err != nil {
		return nil, err
	}

	if b.cfg.Mosaic.Enabled {
		if b.canceled(ctx) {
			return nil, errors.ErrCanceled
		}
		if err := b.mosaic(ctx, ev, logger, store, bounds, b.mosaicPath(indexFile)); err != nil {
			return nil, err
		}
		if b.canceled(ctx) {
			return nil, errors.ErrCanceled
		}
	}

	logger.Info("builder: build finished",
		zap.Int("files", store.Files().Len()),
		zap.Int("wavelets", store.Wavelets().Len()),
		zap.Stringer("bounds", bounds))
	return store, nil
}

func (b *Builder) mosaicPath(indexFile string) string {
	if b.cfg.Mosaic.Path != "" {
		return b.cfg.Mosaic.Path
	}
	return filepath.Join(filepath.Dir(indexFile), "mosaic.db")
}

// scan creates a record per frame and geocodes it. It returns the frame path
// as given for every created record.
func (b *Builder) scan(ctx context.Context, ev *emitter, logger *zap.Logger, store *index.Store, files []string) map[types.Key]string {
	start := time.Now()
	ev.begin(PhaseScan)
	ev.count(PhaseScan, len(files))
	defer func() {
		ev.end(PhaseScan)
		observability.BuildPhaseDuration.WithLabelValues(string(PhaseScan)).Observe(time.Since(start).Seconds())
	}()

	paths := make(map[types.Key]string, len(files))
	for _, f := range files {
		if b.canceled(ctx) {
			return paths
		}

		abs, err := filepath.Abs(f)
		if err != nil {
			abs = filepath.Clean(f)
		}
		dirKey := store.DedupeDirectory(filepath.Dir(abs))
		key := store.CreateFileRecord(filepath.Base(abs), dirKey)
		paths[key] = abs

		sector := b.geocoder.SectorFor(abs)
		store.SetSector(key, sector)

		if !sector.Complete() {
			observability.BuildStepsTotal.WithLabelValues(string(PhaseScan), "failed").Inc()
			ev.failed(PhaseScan, abs, ErrNoSector)
			continue
		}
		observability.BuildStepsTotal.WithLabelValues(string(PhaseScan), "complete").Inc()
		ev.complete(PhaseScan, abs)
	}
	logger.Debug("builder: scan finished", zap.Int("files", len(paths)))
	return paths
}

// encodeAll derives the progressive encoding of every scanned frame.
func (b *Builder) encodeAll(ctx context.Context, ev *emitter, logger *zap.Logger, store *index.Store, paths map[types.Key]string) {
	start := time.Now()
	ev.begin(PhaseWavelet)
	defer func() {
		ev.end(PhaseWavelet)
		observability.BuildPhaseDuration.WithLabelValues(string(PhaseWavelet)).Observe(time.Since(start).Seconds())
	}()

	keys := store.Files().Keys()
	ev.count(PhaseWavelet, len(keys))

	runUnits(ctx, b, ev, logger, PhaseWavelet, keys,
		func(k types.Key) string { return paths[k] },
		func(ctx context.Context, k types.Key) error {
			return b.encodeFrame(store, k, paths[k])
		})
}

// encodeFrame writes and attaches the wavelet file for one frame, reusing an
// existing file that is at least as new as the frame.
func (b *Builder) encodeFrame(store *index.Store, key types.Key, framePath string) error {
	rec, ok := store.Files().Lookup(key)
	if !ok {
		return errors.NewInternalError(fmt.Sprintf("builder: file %s vanished", key), nil)
	}
	if framePath == "" {
		p, ok := store.FilePath(key)
		if !ok {
			return errors.NewInternalError(fmt.Sprintf("builder: no path for file %s", key), nil)
		}
		framePath = p
	}

	name := wavelet.FileName(rec.Filename)
	logicalKey := b.waveletKey(store, framePath, name)
	wavePath := b.files.Resolve(logicalKey)

	fresh, err := upToDate(wavePath, framePath)
	if err != nil {
		return err
	}
	if fresh {
		b.attach(store, key, wavePath, name)
		return nil
	}

	unlock := b.locks.RLock(framePath)
	img, err := b.decoder.Decode(framePath)
	unlock()
	if err != nil {
		return err
	}

	small := wavelet.Resample(img, b.cfg.WaveletSize)

	data, err := b.encoder.Encode(small, b.cfg.WaveletSize, b.cfg.WaveletSize)
	if err != nil {
		return err
	}

	if _, err := b.files.Allocate(logicalKey); err != nil {
		return err
	}
	unlock = b.locks.Lock(wavePath)
	err = wavelet.WriteFile(wavePath, data)
	unlock()
	if err != nil {
		return err
	}

	b.attach(store, key, wavePath, name)
	return nil
}

func (b *Builder) attach(store *index.Store, key types.Key, wavePath, name string) {
	dirKey := store.DedupeDirectory(filepath.Dir(wavePath))
	store.AttachWavelet(key, name, dirKey)
}

// waveletKey is the logical storage key of a frame's wavelet file. Frames
// with the same name in different directories get different keys.
func (b *Builder) waveletKey(store *index.Store, framePath, name string) string {
	series := store.Properties().DataSeriesID
	if series == "" {
		series = "_"
	}
	dirHash := storage.HashKey(filepath.Dir(framePath))[:16]
	return fmt.Sprintf("wavelets/%s/%s/%s", series, dirHash, name)
}

// upToDate reports whether wavePath exists and is not older than framePath.
func upToDate(wavePath, framePath string) (bool, error) {
	wi, err := os.Stat(wavePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("builder: stat %s: %w", wavePath, err)
	}

	resolved, err := frame.ResolvePath(framePath)
	if err != nil {
		// a frame that cannot be found cannot be re-encoded either
		return true, nil
	}
	fi, err := os.Stat(resolved)
	if err != nil {
		return true, nil
	}
	return !wi.ModTime().Before(fi.ModTime()), nil
}

func (b *Builder) save(ev *emitter, store *index.Store, indexFile string) error {
	start := time.Now()
	ev.begin(PhaseSave)
	ev.count(PhaseSave, 1)
	defer func() {
		ev.end(PhaseSave)
		observability.BuildPhaseDuration.WithLabelValues(string(PhaseSave)).Observe(time.Since(start).Seconds())
	}()

	if err := store.SaveFile(indexFile); err != nil {
		observability.BuildStepsTotal.WithLabelValues(string(PhaseSave), "failed").Inc()
		ev.failed(PhaseSave, indexFile, err)
		return fmt.Errorf("builder: %w", err)
	}
	observability.BuildStepsTotal.WithLabelValues(string(PhaseSave), "complete").Inc()
	ev.complete(PhaseSave, indexFile)
	return nil
}

// newSynthesizer returns a synthesizer over store for the mosaic phase.
func (b *Builder) newSynthesizer(store *index.Store, logger *zap.Logger) (*synth.Synthesizer, error) {
	if b.codec == nil {
		return nil, fmt.Errorf("builder: mosaic requires a wavelet decoder")
	}
	return synth.New(b.cfg.Synth, synth.Deps{
		Store:   store,
		Tracker: absent.NewTracker(absent.DefaultPolicy()),
		Decoder: b.decoder,
		Codec:   b.codec,
		Locks:   b.locks,
		Logger:  logger,
	})
}

// runUnits runs fn over units on the worker pool. A failing unit is logged,
// counted and reported; the rest still run. Units not yet started when the
// build is stopped are skipped.
func runUnits[T any](ctx context.Context, b *Builder, ev *emitter, logger *zap.Logger, phase Phase,
	units []T, name func(T) string, fn func(context.Context, T) error) {

	run := func(u T) {
		if b.canceled(ctx) {
			observability.BuildStepsTotal.WithLabelValues(string(phase), "skipped").Inc()
			return
		}
		step := name(u)
		if err := fn(ctx, u); err != nil {
			observability.BuildStepsTotal.WithLabelValues(string(phase), "failed").Inc()
			logger.Warn("builder: step failed",
				zap.String("phase", string(phase)), zap.String("step", step), zap.Error(err))
			ev.failed(phase, step, err)
			return
		}
		observability.BuildStepsTotal.WithLabelValues(string(phase), "complete").Inc()
		ev.complete(phase, step)
	}

	if b.cfg.Workers <= 1 {
		for _, u := range units {
			run(u)
		}
		return
	}

	sem := semaphore.NewWeighted(int64(b.cfg.Workers))
	var inFlight atomic.Int64

	for _, u := range units {
		if b.canceled(ctx) {
			observability.BuildStepsTotal.WithLabelValues(string(phase), "skipped").Inc()
			continue
		}
		// a canceled context still waits for running units below
		if err := sem.Acquire(context.Background(), 1); err != nil {
			continue
		}
		inFlight.Add(1)
		go func(u T) {
			defer inFlight.Add(-1)
			defer sem.Release(1)
			run(u)
		}(u)
	}

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()
	for inFlight.Load() > 0 {
		<-ticker.C
	}
}
