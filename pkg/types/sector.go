package types

import (
	"fmt"
	"math"
)

// Angle is a nullable angle in degrees. The zero value is null.
type Angle struct {
	Degrees float64
	Valid   bool
}

// Degrees returns a present angle.
func Degrees(v float64) Angle {
	return Angle{Degrees: v, Valid: true}
}

// AngleFromWire decodes the on-disk representation where NaN means null.
func AngleFromWire(v float64) Angle {
	if math.IsNaN(v) {
		return Angle{}
	}
	return Degrees(v)
}

// Wire returns the on-disk representation of a, NaN when null.
func (a Angle) Wire() float64 {
	if !a.Valid {
		return math.NaN()
	}
	return a.Degrees
}

func (a Angle) String() string {
	if !a.Valid {
		return "null"
	}
	return fmt.Sprintf("%g°", a.Degrees)
}

// Sector is a geographic rectangle whose four bounds are independently
// nullable. The zero value is the null sector.
type Sector struct {
	MinLatitude  Angle
	MaxLatitude  Angle
	MinLongitude Angle
	MaxLongitude Angle
}

// NewSector returns a sector with all four bounds present.
func NewSector(minLat, maxLat, minLon, maxLon float64) Sector {
	return Sector{
		MinLatitude:  Degrees(minLat),
		MaxLatitude:  Degrees(maxLat),
		MinLongitude: Degrees(minLon),
		MaxLongitude: Degrees(maxLon),
	}
}

// Complete reports whether all four bounds are present.
func (s Sector) Complete() bool {
	return s.MinLatitude.Valid && s.MaxLatitude.Valid && s.MinLongitude.Valid && s.MaxLongitude.Valid
}

// IsNull reports whether no bound is present.
func (s Sector) IsNull() bool {
	return !s.MinLatitude.Valid && !s.MaxLatitude.Valid && !s.MinLongitude.Valid && !s.MaxLongitude.Valid
}

// Bounds returns the sector as a BBox when it is complete.
func (s Sector) Bounds() (BBox, bool) {
	if !s.Complete() {
		return BBox{}, false
	}
	return BBox{
		MinLat: s.MinLatitude.Degrees,
		MaxLat: s.MaxLatitude.Degrees,
		MinLon: s.MinLongitude.Degrees,
		MaxLon: s.MaxLongitude.Degrees,
	}, true
}

func (s Sector) String() string {
	return fmt.Sprintf("[%v, %v]x[%v, %v]", s.MinLatitude, s.MaxLatitude, s.MinLongitude, s.MaxLongitude)
}

// BBox is a non-nullable rectangle in degrees, latitude by longitude.
type BBox struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

// DeltaLat returns the latitude span.
func (b BBox) DeltaLat() float64 { return b.MaxLat - b.MinLat }

// DeltaLon returns the longitude span.
func (b BBox) DeltaLon() float64 { return b.MaxLon - b.MinLon }

// Valid reports whether b is finite and has positive extent on both axes.
func (b BBox) Valid() bool {
	for _, v := range []float64{b.MinLat, b.MaxLat, b.MinLon, b.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MaxLat > b.MinLat && b.MaxLon > b.MinLon
}

// Intersects reports whether b and o share interior area.
func (b BBox) Intersects(o BBox) bool {
	return b.MinLat < o.MaxLat && o.MinLat < b.MaxLat &&
		b.MinLon < o.MaxLon && o.MinLon < b.MaxLon
}

// Union returns the smallest box containing b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		MinLat: math.Min(b.MinLat, o.MinLat),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
		MinLon: math.Min(b.MinLon, o.MinLon),
		MaxLon: math.Max(b.MaxLon, o.MaxLon),
	}
}

// Clamp limits b to latitude [-90,90] and longitude [-180,180].
func (b BBox) Clamp() BBox {
	return BBox{
		MinLat: clamp(b.MinLat, -90, 90),
		MaxLat: clamp(b.MaxLat, -90, 90),
		MinLon: clamp(b.MinLon, -180, 180),
		MaxLon: clamp(b.MaxLon, -180, 180),
	}
}

// NormalizeSeam makes a box that crosses the antimeridian monotonic by
// adding 360 degrees to MaxLon when MaxLon < MinLon.
func (b BBox) NormalizeSeam() BBox {
	if b.MaxLon < b.MinLon {
		b.MaxLon += 360
	}
	return b
}

// Shift returns b translated by dLon degrees of longitude.
func (b BBox) Shift(dLon float64) BBox {
	b.MinLon += dLon
	b.MaxLon += dLon
	return b
}

// Sector returns b as a complete Sector.
func (b BBox) Sector() Sector {
	return NewSector(b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
}

func (b BBox) String() string {
	return fmt.Sprintf("[%g, %g]x[%g, %g]", b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
}

// WrapLongitude maps lon into [-180, 180).
func WrapLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
