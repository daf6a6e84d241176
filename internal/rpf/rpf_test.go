package rpf

import (
	stderrors "errors"
	"image"
	"image/color"
	"testing"

	"github.com/arkilian/rpftiles/internal/errors"
	"github.com/arkilian/rpftiles/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilename(t *testing.T) {
	fn, err := ParseFilename("0000a011.ja1")
	require.NoError(t, err)
	assert.Equal(t, 10, fn.FrameNumber)
	assert.Equal(t, 1, fn.Version)
	assert.Equal(t, byte('1'), fn.Producer)
	assert.Equal(t, "JA", fn.DataSeries)
	assert.Equal(t, byte('1'), fn.Zone)
	assert.Equal(t, "0000A011.JA1", fn.String())

	fn, err = ParseFilename("00010011.ONC")
	require.NoError(t, err)
	assert.Equal(t, 34, fn.FrameNumber)
	assert.False(t, IsNorthern(fn.Zone))
}

func TestParseFilename_Rejects(t *testing.T) {
	for _, name := range []string{
		"",
		"00001011.JA",
		"00001011JJA1",
		"0000I011.JA1", // I is not a base-34 digit
		"00001011.JAK", // K is not a zone
		"readme.txt",
	} {
		_, err := ParseFilename(name)
		assert.Error(t, err, name)
		assert.Equal(t, errors.CodeUnparsableName, errors.GetCode(err), name)
	}
}

func TestZoneIndex(t *testing.T) {
	tests := []struct {
		zone  byte
		index int
		north bool
	}{
		{'1', 1, true},
		{'8', 8, true},
		{'9', 9, true},
		{'A', 1, false},
		{'H', 8, false},
		{'J', 9, false},
	}
	for _, tt := range tests {
		idx, ok := ZoneIndex(tt.zone)
		require.True(t, ok)
		assert.Equal(t, tt.index, idx)
		assert.Equal(t, tt.north, IsNorthern(tt.zone))
	}
	_, ok := ZoneIndex('I')
	assert.False(t, ok)
}

func TestLookupDataSeries(t *testing.T) {
	ds, err := LookupDataSeries("on")
	require.NoError(t, err)
	assert.Equal(t, KindCADRG, ds.Kind)
	assert.Equal(t, 1e6, ds.Scale)

	ds, err = LookupDataSeries("I1")
	require.NoError(t, err)
	assert.Equal(t, KindCIB, ds.Kind)

	_, err = LookupDataSeries("ZZ")
	assert.Equal(t, errors.CodeUnknownSeries, errors.GetCode(err))
}

func TestFrameTransform_ONCZone1(t *testing.T) {
	ds, _ := LookupDataSeries("ON")
	tr, err := NewFrameTransform(ds, '1')
	require.NoError(t, err)

	dLat, dLon := tr.FrameSize()
	assert.InDelta(t, 1536.0*360/400384, dLat, 1e-12)
	assert.InDelta(t, 1536.0*360/369664, dLon, 1e-12)
	assert.Equal(t, 241, tr.Columns())
	assert.Equal(t, 24, tr.Rows())

	s, err := tr.Sector(0)
	require.NoError(t, err)
	b, ok := s.Bounds()
	require.True(t, ok)
	assert.InDelta(t, 0, b.MinLat, 1e-9)
	assert.InDelta(t, -180, b.MinLon, 1e-9)

	// second row starts directly north of the first
	s, err = tr.Sector(tr.Columns())
	require.NoError(t, err)
	b2, _ := s.Bounds()
	assert.InDelta(t, b.MaxLat, b2.MinLat, 1e-9)
	assert.InDelta(t, b.MinLon, b2.MinLon, 1e-9)

	// the last column crosses the antimeridian and stays monotonic
	s, err = tr.Sector(tr.Columns() - 1)
	require.NoError(t, err)
	last, _ := s.Bounds()
	assert.Greater(t, last.MaxLon, 180.0)
	assert.Less(t, last.MinLon, last.MaxLon)

	_, err = tr.Sector(tr.Rows() * tr.Columns())
	assert.Error(t, err)
}

func TestFrameTransform_SouthernZoneMirrors(t *testing.T) {
	ds, _ := LookupDataSeries("ON")
	north, err := NewFrameTransform(ds, '2')
	require.NoError(t, err)
	south, err := NewFrameTransform(ds, 'B')
	require.NoError(t, err)

	assert.Equal(t, north.Rows(), south.Rows())
	s, _ := south.Sector(0)
	n, _ := north.Sector((north.Rows() - 1) * north.Columns())
	sb, _ := s.Bounds()
	nb, _ := n.Bounds()
	assert.InDelta(t, -nb.MaxLat, sb.MinLat, 1e-9)
}

func TestFrameTransform_Polar(t *testing.T) {
	ds, _ := LookupDataSeries("JG")
	_, err := NewFrameTransform(ds, '9')
	assert.True(t, stderrors.Is(err, ErrPolarZone))
	_, err = NewFrameTransform(ds, 'J')
	assert.True(t, stderrors.Is(err, ErrPolarZone))
}

func TestSectorForName(t *testing.T) {
	s, err := SectorForName("00001011.JA1")
	require.NoError(t, err)
	assert.True(t, s.Complete())

	_, err = SectorForName("00001011.QQ1")
	assert.Equal(t, errors.CodeUnknownSeries, errors.GetCode(err))
}

func TestProperty_FramesTileTheZone(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("adjacent frames in a row share an edge", prop.ForAll(
		func(zone int, n int) bool {
			ds, _ := LookupDataSeries("TP")
			tr, err := NewFrameTransform(ds, byte('0'+zone))
			if err != nil {
				return false
			}
			n %= tr.Rows() * tr.Columns()
			if (n+1)%tr.Columns() == 0 {
				n--
			}
			a, err1 := tr.Sector(n)
			b, err2 := tr.Sector(n + 1)
			if err1 != nil || err2 != nil {
				return false
			}
			ab, _ := a.Bounds()
			bb, _ := b.Bounds()
			return ab.MaxLon-bb.MinLon < 1e-9 && bb.MinLon-ab.MaxLon < 1e-9 && ab.MinLat == bb.MinLat
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}

func TestDeproject(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 10))
	for x := 0; x < 100; x++ {
		c := color.RGBA{R: 255, A: 255}
		if x >= 50 {
			c = color.RGBA{B: 255, A: 255}
		}
		for y := 0; y < 10; y++ {
			img.Set(x, y, c)
		}
	}

	// a single piece when the frame stays west of the seam
	pieces := Deproject(img, types.BBox{MinLat: 0, MaxLat: 1, MinLon: 170, MaxLon: 179})
	require.Len(t, pieces, 1)

	// a frame spanning 178..182 splits in the middle
	pieces = Deproject(img, types.BBox{MinLat: 0, MaxLat: 1, MinLon: 178, MaxLon: -178})
	require.Len(t, pieces, 2)
	assert.Equal(t, types.BBox{MinLat: 0, MaxLat: 1, MinLon: 178, MaxLon: 180}, pieces[0].Bounds)
	assert.Equal(t, types.BBox{MinLat: 0, MaxLat: 1, MinLon: -180, MaxLon: -178}, pieces[1].Bounds)
	assert.Equal(t, 50, pieces[0].Image.Bounds().Dx())
	assert.Equal(t, 50, pieces[1].Image.Bounds().Dx())

	joined := Join([]image.Image{pieces[0].Image, pieces[1].Image})
	assert.Equal(t, image.Rect(0, 0, 100, 10), joined.Bounds())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, joined.At(10, 5))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, joined.At(90, 5))
}
