package frame

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/arkilian/rpftiles/internal/errors"
	"github.com/arkilian/rpftiles/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestImageDecoder_DecodeCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "00001011.ja1"), 8, 4, color.RGBA{G: 200, A: 255})

	d := NewImageDecoder()
	img, err := d.Decode(filepath.Join(dir, "00001011.JA1"))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
}

func TestImageDecoder_DecodeMissing(t *testing.T) {
	d := NewImageDecoder()
	_, err := d.Decode(filepath.Join(t.TempDir(), "00001011.JA1"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCategoryDecode, errors.GetCategory(err))
}

func TestImageDecoder_DecodeGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00001011.JA1")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0644))

	_, err := NewImageDecoder().Decode(path)
	assert.Equal(t, errors.CodeDecodeFailed, errors.GetCode(err))
}

func TestImageDecoder_DecodeJoinsPieces(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "00001011.ja1")
	west := color.RGBA{R: 255, A: 255}
	east := color.RGBA{B: 255, A: 255}
	writePNG(t, frame, 6, 4, west)
	writePNG(t, filepath.Join(dir, "00001011.east.png"), 10, 4, east)

	sc := NewSidecar(types.NewSector(10, 11, 179, -179), "JA")
	sc.Pieces = []string{"00001011.east.png"}
	require.NoError(t, sc.WriteToFile(SidecarPath(frame)))

	d := NewImageDecoder()
	pieces, err := d.DecodePieces(frame)
	require.NoError(t, err)
	require.Len(t, pieces, 2)

	img, err := d.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 4), img.Bounds())
	assert.Equal(t, west, color.RGBAModel.Convert(img.At(2, 1)))
	assert.Equal(t, east, color.RGBAModel.Convert(img.At(12, 1)))
}

func TestImageDecoder_DecodeMissingPiece(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "00001011.ja1")
	writePNG(t, frame, 4, 4, color.White)

	sc := NewSidecar(types.NewSector(10, 11, 179, -179), "JA")
	sc.Pieces = []string{"gone.png"}
	require.NoError(t, sc.WriteToFile(SidecarPath(frame)))

	_, err := NewImageDecoder().Decode(frame)
	assert.Equal(t, errors.CodeDecodeFailed, errors.GetCode(err))
}

func TestImageDecoder_ReadBounds(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame.png")
	writePNG(t, frame, 2, 2, color.White)

	sector := types.NewSector(10, 11, 179, -179)
	require.NoError(t, NewSidecar(sector, "ON").WriteToFile(SidecarPath(frame)))

	got, err := NewImageDecoder().ReadBounds(frame)
	require.NoError(t, err)
	assert.Equal(t, sector, got)
}

func TestImageDecoder_ReadBoundsPartial(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame.png")
	writePNG(t, frame, 2, 2, color.White)
	require.NoError(t, os.WriteFile(SidecarPath(frame), []byte(`{"min_lat": 5}`), 0644))

	got, err := NewImageDecoder().ReadBounds(frame)
	require.NoError(t, err)
	assert.Equal(t, types.Degrees(5), got.MinLatitude)
	assert.False(t, got.MaxLatitude.Valid)
}

func TestImageDecoder_ReadBoundsNoSidecar(t *testing.T) {
	frame := filepath.Join(t.TempDir(), "frame.png")
	writePNG(t, frame, 2, 2, color.White)

	_, err := NewImageDecoder().ReadBounds(frame)
	assert.Equal(t, errors.CodeBadHeader, errors.GetCode(err))
}
