package rpf

import (
	stderrors "errors"
	"fmt"
	"math"

	"github.com/arkilian/rpftiles/internal/errors"
	"github.com/arkilian/rpftiles/pkg/types"
)

// FramePixels is the edge length of one frame in pixels.
const FramePixels = 1536

// ErrPolarZone is returned for the polar zones 9 and J, whose frames use an
// azimuthal projection that cannot be located from the frame number alone.
var ErrPolarZone = stderrors.New("rpf: polar zone frames require header bounds")

// East-west pixel constants per non-polar zone at 1:1,000,000, and the
// north-south constant shared by all zones.
var ewPixelConstant = [8]float64{369664, 302592, 245760, 199168, 163328, 137216, 110080, 82432}

const nsPixelConstant = 400384

// Nominal equatorward/poleward zone boundaries in degrees of latitude.
var zoneBoundaries = [9]float64{0, 32, 48, 56, 64, 68, 72, 76, 80}

// FrameTransform computes frame footprints for one data series in one zone.
type FrameTransform struct {
	series    DataSeries
	zone      byte
	minLat    float64
	frameLat  float64
	frameLon  float64
	latFrames int
	lonFrames int
}

// NewFrameTransform builds the transform for a data series and zone code.
func NewFrameTransform(series DataSeries, zone byte) (*FrameTransform, error) {
	idx, ok := ZoneIndex(zone)
	if !ok {
		return nil, errors.NewGeocodeError(errors.CodeUnparsableName,
			fmt.Sprintf("rpf: invalid zone %q", zone), nil)
	}
	if idx == 9 {
		return nil, ErrPolarZone
	}

	factor := series.scaleFactor()
	nsPixels := 512 * math.Ceil(factor*nsPixelConstant/512)
	ewPixels := 512 * math.Ceil(factor*ewPixelConstant[idx-1]/512)

	frameLat := FramePixels * 360 / nsPixels
	frameLon := FramePixels * 360 / ewPixels

	equator := math.Floor(zoneBoundaries[idx-1]/frameLat) * frameLat
	pole := math.Ceil(zoneBoundaries[idx]/frameLat) * frameLat

	minLat, maxLat := equator, pole
	if !IsNorthern(zone) {
		minLat, maxLat = -pole, -equator
	}

	return &FrameTransform{
		series:    series,
		zone:      zone,
		minLat:    minLat,
		frameLat:  frameLat,
		frameLon:  frameLon,
		latFrames: int(math.Round((maxLat - minLat) / frameLat)),
		lonFrames: int(math.Ceil(ewPixels / FramePixels)),
	}, nil
}

// Rows returns the number of frame rows in the zone.
func (t *FrameTransform) Rows() int { return t.latFrames }

// Columns returns the number of frame columns around the globe.
func (t *FrameTransform) Columns() int { return t.lonFrames }

// FrameSize returns the extent of one frame in degrees.
func (t *FrameTransform) FrameSize() (dLat, dLon float64) { return t.frameLat, t.frameLon }

// Sector returns the footprint of a frame. Row 0 is the southern edge of the
// zone; the last column may extend past +180 degrees.
func (t *FrameTransform) Sector(frameNumber int) (types.Sector, error) {
	if frameNumber < 0 || frameNumber >= t.latFrames*t.lonFrames {
		return types.Sector{}, errors.NewGeocodeError(errors.CodeUnparsableName,
			fmt.Sprintf("rpf: frame %d outside zone %c (%d frames)", frameNumber, t.zone, t.latFrames*t.lonFrames), nil)
	}

	row := frameNumber / t.lonFrames
	col := frameNumber % t.lonFrames

	minLat := t.minLat + float64(row)*t.frameLat
	minLon := -180 + float64(col)*t.frameLon

	b := types.BBox{
		MinLat: minLat,
		MaxLat: minLat + t.frameLat,
		MinLon: minLon,
		MaxLon: minLon + t.frameLon,
	}
	return b.NormalizeSeam().Sector(), nil
}

// SectorForName parses name and computes its footprint.
func SectorForName(name string) (types.Sector, error) {
	fn, err := ParseFilename(name)
	if err != nil {
		return types.Sector{}, err
	}
	series, err := LookupDataSeries(fn.DataSeries)
	if err != nil {
		return types.Sector{}, err
	}
	t, err := NewFrameTransform(series, fn.Zone)
	if err != nil {
		return types.Sector{}, err
	}
	return t.Sector(fn.FrameNumber)
}
