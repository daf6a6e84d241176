// Package app wires configuration, logging and the shared collaborators of
// the builder and the tile synthesizer.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arkilian/rpftiles/internal/absent"
	"github.com/arkilian/rpftiles/internal/builder"
	"github.com/arkilian/rpftiles/internal/config"
	"github.com/arkilian/rpftiles/internal/frame"
	"github.com/arkilian/rpftiles/internal/geocode"
	"github.com/arkilian/rpftiles/internal/index"
	"github.com/arkilian/rpftiles/internal/observability"
	"github.com/arkilian/rpftiles/internal/storage"
	"github.com/arkilian/rpftiles/internal/synth"
	"github.com/arkilian/rpftiles/internal/wavelet"
)

// App holds the collaborators shared by every command.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	decoder *frame.ImageDecoder
	codec   *wavelet.Haar
	files   *storage.FileStore
	locks   *storage.PathLocks
	tracker *absent.Tracker
	stats   *observability.SourceStats

	mu      sync.Mutex
	storage storage.ObjectStorage
}

// New resolves and validates cfg, creates the data directories and builds
// the shared collaborators.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	files, err := storage.NewFileStore(cfg.Storage.CacheDir)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		decoder: frame.NewImageDecoder(),
		codec:   wavelet.NewHaar(),
		files:   files,
		locks:   storage.NewPathLocks(),
		tracker: absent.NewTracker(absent.Policy{
			MaxStrikes: cfg.Absent.MaxStrikes,
			Cooldown:   cfg.Absent.Cooldown,
		}),
		stats: observability.NewSourceStats(0),
	}, nil
}

// NewLogger builds a zap logger from cfg.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "time"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Files returns the wavelet file store.
func (a *App) Files() *storage.FileStore { return a.files }

// Tracker returns the process-wide absent-resource tracker.
func (a *App) Tracker() *absent.Tracker { return a.tracker }

// SourceStats returns the detail-source statistics of synthesizers made by this app.
func (a *App) SourceStats() *observability.SourceStats { return a.stats }

// NewBuilder returns a builder reporting to listener.
func (a *App) NewBuilder(listener builder.Listener) (*builder.Builder, error) {
	bc := a.cfg.Builder
	return builder.New(builder.Config{
		Workers:      bc.Workers,
		WaveletSize:  bc.WaveletSize,
		PollInterval: bc.PollInterval,
		Mosaic: builder.MosaicConfig{
			Enabled:        bc.Mosaic.Enabled,
			TileSize:       bc.Mosaic.TileSize,
			LevelZeroDelta: bc.Mosaic.LevelZeroDelta,
			Levels:         bc.Mosaic.Levels,
			Path:           bc.Mosaic.Path,
		},
		Synth: a.synthConfig(),
	}, builder.Deps{
		Geocoder: geocode.New(a.decoder, a.logger.Named("geocode")),
		Decoder:  a.decoder,
		Encoder:  a.codec,
		Codec:    a.codec,
		Files:    a.files,
		Locks:    a.locks,
		Listener: listener,
		Logger:   a.logger.Named("builder"),
	})
}

// LoadIndex reads the configured index file.
func (a *App) LoadIndex() (*index.Store, error) {
	return index.LoadFile(a.cfg.Index.Path)
}

// NewSynthesizer returns a synthesizer over store sharing the app's tracker
// and path locks.
func (a *App) NewSynthesizer(store *index.Store) (*synth.Synthesizer, error) {
	return synth.New(a.synthConfig(), synth.Deps{
		Store:   store,
		Tracker: a.tracker,
		Decoder: a.decoder,
		Codec:   a.codec,
		Locks:   a.locks,
		Stats:   a.stats,
		Logger:  a.logger.Named("synth"),
	})
}

func (a *App) synthConfig() synth.Config {
	return synth.Config{
		FullResolutionThreshold: a.cfg.Synth.FullResolutionThreshold,
		PreloadResolution:       a.cfg.Synth.PreloadResolution,
		PreloadCacheEntries:     a.cfg.Synth.PreloadCacheEntries,
	}
}

// ObjectStorage returns the configured publish target, creating it once.
func (a *App) ObjectStorage(ctx context.Context) (storage.ObjectStorage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.storage != nil {
		return a.storage, nil
	}

	var (
		st  storage.ObjectStorage
		err error
	)
	switch a.cfg.Storage.Type {
	case "local":
		st, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		if a.cfg.Storage.S3.Endpoint != "" {
			s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
			s3Cfg.UsePathStyle = true
		}
		s3Cfg.Prefix = a.cfg.Storage.S3.Prefix
		st, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.storage = st
	return st, nil
}

// NewPublisher returns a publisher for the configured target.
func (a *App) NewPublisher(ctx context.Context) (*builder.Publisher, error) {
	st, err := a.ObjectStorage(ctx)
	if err != nil {
		return nil, err
	}
	return builder.NewPublisher(st, a.files.Root(), a.cfg.Builder.Workers, a.logger.Named("publish")), nil
}

// NewDownloader returns a downloader from the configured target into destDir.
func (a *App) NewDownloader(ctx context.Context, destDir string) (*storage.BatchDownloader, error) {
	st, err := a.ObjectStorage(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewBatchDownloader(st, max(a.cfg.Builder.Workers, 4), destDir), nil
}

// Close flushes the logger.
func (a *App) Close() error {
	// stderr sync fails on some platforms; nothing useful to report
	_ = a.logger.Sync()
	return nil
}
