package builder

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/rpftiles/internal/errors"
	"github.com/arkilian/rpftiles/internal/frame"
	"github.com/arkilian/rpftiles/internal/index"
	"github.com/arkilian/rpftiles/internal/storage"
	"github.com/arkilian/rpftiles/internal/tilestore"
	"github.com/arkilian/rpftiles/internal/wavelet"
)

type countingDecoder struct {
	frame.Decoder
	calls atomic.Int32
}

func (d *countingDecoder) Decode(path string) (image.Image, error) {
	d.calls.Add(1)
	return d.Decoder.Decode(path)
}

func writeFrame(t *testing.T, dir, name string, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return p
}

// writeFrames creates n ONC zone 1 frames numbered 1..n.
func writeFrames(t *testing.T, dir string, n int) []string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	var out []string
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("0000%d0a1.on1", i)
		out = append(out, writeFrame(t, dir, name, color.RGBA{R: uint8(20 * i), G: 100, A: 255}))
	}
	return out
}

type harness struct {
	dir      string
	decoder  *countingDecoder
	recorder *Recorder
	files    *storage.FileStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFileStore(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	return &harness{
		dir:      dir,
		decoder:  &countingDecoder{Decoder: frame.NewImageDecoder()},
		recorder: &Recorder{},
		files:    files,
	}
}

func (h *harness) config(workers int) Config {
	cfg := DefaultConfig()
	cfg.Workers = workers
	cfg.WaveletSize = 32
	cfg.PollInterval = time.Millisecond
	cfg.Mosaic.TileSize = 64
	return cfg
}

func (h *harness) builder(t *testing.T, cfg Config, listener Listener) *Builder {
	t.Helper()
	if listener == nil {
		listener = h.recorder
	}
	b, err := New(cfg, Deps{
		Decoder:  h.decoder,
		Encoder:  wavelet.NewHaar(),
		Files:    h.files,
		Listener: listener,
	})
	require.NoError(t, err)
	return b
}

func (h *harness) request(files []string) Request {
	return Request{
		IndexFile:    filepath.Join(h.dir, "out", "rpf.idx"),
		DataSeriesID: "ON",
		Description:  "test build",
		Files:        files,
	}
}

func TestBuild_Serial(t *testing.T) {
	h := newHarness(t)
	files := writeFrames(t, filepath.Join(h.dir, "frames"), 3)
	req := h.request(files)

	store, err := h.builder(t, h.config(1), nil).Build(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, store)

	assert.Equal(t, 3, store.Files().Len())
	assert.Equal(t, 3, store.Wavelets().Len())
	assert.Equal(t, 2, store.Directories().Len(), "frame directory and wavelet directory")
	require.NoError(t, store.Validate())

	bounds := store.Properties().BoundingSector
	assert.True(t, bounds.Complete())

	for _, key := range store.Files().Keys() {
		rec, _ := store.Files().Lookup(key)
		assert.True(t, rec.Sector.Complete(), rec.Filename)
		p, ok := store.WaveletPath(key)
		require.True(t, ok)
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}

	loaded, err := index.LoadFile(req.IndexFile)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Files().Len())
	assert.Equal(t, store.Properties(), loaded.Properties())

	tiles, err := tilestore.Open(filepath.Join(filepath.Dir(req.IndexFile), "mosaic.db"))
	require.NoError(t, err)
	defer tiles.Close()
	n, err := tiles.Count(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuild_Parallel(t *testing.T) {
	h := newHarness(t)
	files := writeFrames(t, filepath.Join(h.dir, "frames"), 8)

	store, err := h.builder(t, h.config(4), nil).Build(context.Background(), h.request(files))
	require.NoError(t, err)

	assert.Equal(t, 8, store.Wavelets().Len())
	require.NoError(t, store.Validate())
	assert.Equal(t, int32(8), h.decoder.calls.Load())
	assert.Equal(t, 8, h.recorder.Count(PhaseWavelet, StepComplete))
	assert.Equal(t, 0, h.recorder.Count(PhaseWavelet, StepFailed))
}

func TestBuild_Events(t *testing.T) {
	h := newHarness(t)
	files := writeFrames(t, filepath.Join(h.dir, "frames"), 2)

	_, err := h.builder(t, h.config(1), nil).Build(context.Background(), h.request(files))
	require.NoError(t, err)

	events := h.recorder.Events()
	require.NotEmpty(t, events)
	runID := events[0].RunID
	assert.NotEmpty(t, runID)

	var phases []Phase
	for _, e := range events {
		assert.Equal(t, runID, e.RunID)
		if e.Kind == PhaseBegin {
			phases = append(phases, e.Phase)
		}
	}
	assert.Equal(t, []Phase{PhaseScan, PhaseWavelet, PhaseSave, PhaseMosaic}, phases)

	for _, p := range phases {
		assert.Equal(t, 1, h.recorder.Count(p, PhaseEnd), p)
	}
	assert.Equal(t, 2, h.recorder.Count(PhaseScan, StepComplete))
}

func TestBuild_ReusesFreshWavelets(t *testing.T) {
	h := newHarness(t)
	files := writeFrames(t, filepath.Join(h.dir, "frames"), 3)
	cfg := h.config(1)
	cfg.Mosaic.Enabled = false

	_, err := h.builder(t, cfg, nil).Build(context.Background(), h.request(files))
	require.NoError(t, err)
	require.Equal(t, int32(3), h.decoder.calls.Load())

	store, err := h.builder(t, cfg, nil).Build(context.Background(), h.request(files))
	require.NoError(t, err)
	assert.Equal(t, int32(3), h.decoder.calls.Load(), "no frame decoded again")
	assert.Equal(t, 3, store.Wavelets().Len())
}

func TestBuild_ReencodesStaleWavelet(t *testing.T) {
	h := newHarness(t)
	files := writeFrames(t, filepath.Join(h.dir, "frames"), 1)
	cfg := h.config(1)
	cfg.Mosaic.Enabled = false

	_, err := h.builder(t, cfg, nil).Build(context.Background(), h.request(files))
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(files[0], future, future))

	_, err = h.builder(t, cfg, nil).Build(context.Background(), h.request(files))
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.decoder.calls.Load())
}

func TestBuild_StepFailureIsolated(t *testing.T) {
	h := newHarness(t)
	dir := filepath.Join(h.dir, "frames")
	files := writeFrames(t, dir, 2)
	broken := filepath.Join(dir, "000030A1.ON1")
	require.NoError(t, os.WriteFile(broken, []byte("not an image"), 0644))
	files = append(files, broken)

	store, err := h.builder(t, h.config(2), nil).Build(context.Background(), h.request(files))
	require.NoError(t, err)

	assert.Equal(t, 3, store.Files().Len())
	assert.Equal(t, 2, store.Wavelets().Len())
	assert.Equal(t, 1, h.recorder.Count(PhaseWavelet, StepFailed))
	require.NoError(t, store.Validate())
}

func TestBuild_UnlocatableFrame(t *testing.T) {
	h := newHarness(t)
	dir := filepath.Join(h.dir, "frames")
	require.NoError(t, os.MkdirAll(dir, 0755))
	p := writeFrame(t, dir, "scan.png", color.RGBA{B: 255, A: 255})

	store, err := h.builder(t, h.config(1), nil).Build(context.Background(), h.request([]string{p}))
	require.NoError(t, err)

	assert.Equal(t, 1, h.recorder.Count(PhaseScan, StepFailed))
	rec, ok := store.Files().Lookup(0)
	require.True(t, ok)
	assert.True(t, rec.Sector.IsNull())
	assert.True(t, store.Properties().BoundingSector.IsNull())
}

func TestBuild_StopBeforeStart(t *testing.T) {
	h := newHarness(t)
	files := writeFrames(t, filepath.Join(h.dir, "frames"), 2)
	req := h.request(files)

	b := h.builder(t, h.config(1), nil)
	b.Stop()
	store, err := b.Build(context.Background(), req)

	assert.ErrorIs(t, err, errors.ErrCanceled)
	assert.Nil(t, store)
	assert.Empty(t, h.recorder.Events())
	_, statErr := os.Stat(req.IndexFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuild_StopDuringWaveletPhase(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			h := newHarness(t)
			files := writeFrames(t, filepath.Join(h.dir, "frames"), 6)
			req := h.request(files)

			var b *Builder
			listener := ListenerFunc(func(e Event) {
				h.recorder.OnEvent(e)
				if e.Phase == PhaseWavelet && e.Kind == StepComplete {
					b.Stop()
				}
			})
			b = h.builder(t, h.config(workers), listener)

			store, err := b.Build(context.Background(), req)
			assert.ErrorIs(t, err, errors.ErrCanceled)
			assert.Nil(t, store)
			assert.True(t, b.Stopped())

			// units already running finish; nothing new starts
			assert.Less(t, int(h.decoder.calls.Load()), 6)
			assert.Equal(t, 0, h.recorder.Count(PhaseSave, PhaseBegin))
			_, statErr := os.Stat(req.IndexFile)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestBuild_StopAfterSaveKeepsIndex(t *testing.T) {
	h := newHarness(t)
	files := writeFrames(t, filepath.Join(h.dir, "frames"), 4)
	req := h.request(files)

	var b *Builder
	b = h.builder(t, h.config(2), ListenerFunc(func(e Event) {
		h.recorder.OnEvent(e)
		if e.Phase == PhaseMosaic && e.Kind == PhaseBegin {
			b.Stop()
		}
	}))

	store, err := b.Build(context.Background(), req)
	assert.ErrorIs(t, err, errors.ErrCanceled)
	assert.Nil(t, store)
	assert.Equal(t, 1, h.recorder.Count(PhaseSave, StepComplete))
	assert.Equal(t, 0, h.recorder.Count(PhaseMosaic, StepComplete))

	loaded, err := index.LoadFile(req.IndexFile)
	require.NoError(t, err)
	require.NoError(t, loaded.Validate())
	assert.Equal(t, 4, loaded.Files().Len())
	assert.Equal(t, 4, loaded.Wavelets().Len())

	// a later build over the same index file, stopped before saving
	var second *Builder
	second = h.builder(t, h.config(1), ListenerFunc(func(e Event) {
		if e.Phase == PhaseWavelet && e.Kind == StepComplete {
			second.Stop()
		}
	}))
	_, err = second.Build(context.Background(), req)
	assert.ErrorIs(t, err, errors.ErrCanceled)

	reloaded, err := index.LoadFile(req.IndexFile)
	require.NoError(t, err)
	require.NoError(t, reloaded.Validate())
	assert.Equal(t, 4, reloaded.Files().Len())
	assert.Equal(t, 4, reloaded.Wavelets().Len())
	assert.Equal(t, loaded.Properties(), reloaded.Properties())
}

func TestBuild_ContextCanceled(t *testing.T) {
	h := newHarness(t)
	files := writeFrames(t, filepath.Join(h.dir, "frames"), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store, err := h.builder(t, h.config(1), nil).Build(ctx, h.request(files))
	assert.ErrorIs(t, err, errors.ErrCanceled)
	assert.Nil(t, store)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	h := newHarness(t)
	cfg := h.config(1)
	cfg.WaveletSize = 100
	_, err := New(cfg, Deps{Decoder: h.decoder, Encoder: wavelet.NewHaar(), Files: h.files})
	assert.Error(t, err)

	_, err = New(h.config(1), Deps{Decoder: h.decoder})
	assert.Error(t, err)
}
