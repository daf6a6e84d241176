package builder

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arkilian/rpftiles/internal/index"
	"github.com/arkilian/rpftiles/internal/storage"
	"github.com/arkilian/rpftiles/internal/tilestore"
)

// Object paths used by Publish.
const (
	IndexObject   = "rpf.idx"
	MosaicObject  = "mosaic.db"
	WaveletPrefix = "wavelets/"
)

// PublishResult summarizes one publish.
type PublishResult struct {
	Objects    int
	Bytes      int64
	MosaicETag string
}

// Publisher copies a built index, its wavelet files and its mosaic to object
// storage.
type Publisher struct {
	storage     storage.ObjectStorage
	waveletRoot string
	concurrency int
	logger      *zap.Logger
}

// NewPublisher creates a publisher. waveletRoot is the file store root that
// wavelet object paths are made relative to.
func NewPublisher(st storage.ObjectStorage, waveletRoot string, concurrency int, logger *zap.Logger) *Publisher {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{storage: st, waveletRoot: waveletRoot, concurrency: concurrency, logger: logger}
}

// WaveletObject returns the object path for a wavelet file: its logical key
// when it lives under the file store root, otherwise a hashed path.
func (p *Publisher) WaveletObject(localPath string) string {
	if p.waveletRoot != "" {
		rel, err := filepath.Rel(p.waveletRoot, localPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return path.Join(WaveletPrefix, "h", storage.HashKey(filepath.Dir(localPath))[:16], filepath.Base(localPath))
}

// Publish uploads indexFile, every wavelet file referenced by store and, when
// mosaicPath names an existing database, the mosaic. The index is uploaded
// last so readers never see an index whose wavelets are missing.
func (p *Publisher) Publish(ctx context.Context, store *index.Store, indexFile, mosaicPath string) (*PublishResult, error) {
	var (
		objects atomic.Int64
		bytes   atomic.Int64
	)
	count := func(local string) {
		objects.Add(1)
		if info, err := os.Stat(local); err == nil {
			bytes.Add(info.Size())
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, key := range store.Files().Keys() {
		local, ok := store.WaveletPath(key)
		if !ok {
			continue
		}
		object := p.WaveletObject(local)
		g.Go(func() error {
			if err := p.storage.Upload(gctx, local, object); err != nil {
				return fmt.Errorf("builder: publish %s: %w", object, err)
			}
			count(local)
			return nil
		})
	}

	var etag string
	if mosaicPath != "" {
		if _, err := os.Stat(mosaicPath); err == nil {
			g.Go(func() error {
				tiles, err := tilestore.Open(mosaicPath)
				if err != nil {
					return err
				}
				err = tiles.Checkpoint(gctx)
				tiles.Close()
				if err != nil {
					return err
				}

				etag, err = p.storage.UploadMultipart(gctx, mosaicPath, MosaicObject)
				if err != nil {
					return fmt.Errorf("builder: publish mosaic: %w", err)
				}
				count(mosaicPath)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := p.storage.Upload(ctx, indexFile, IndexObject); err != nil {
		return nil, fmt.Errorf("builder: publish index: %w", err)
	}
	count(indexFile)

	res := &PublishResult{Objects: int(objects.Load()), Bytes: bytes.Load(), MosaicETag: etag}
	p.logger.Info("builder: published index",
		zap.Int("objects", res.Objects), zap.Int64("bytes", res.Bytes))
	return res, nil
}
