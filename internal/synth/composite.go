package synth

import (
	"image"

	"github.com/arkilian/rpftiles/internal/rpf"
	"github.com/arkilian/rpftiles/pkg/types"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// composite draws a piece into dst, which renders bbox, and reports whether
// any part of it landed inside dst. Pieces past +180 degrees are also drawn
// one turn west.
func composite(dst *image.RGBA, bbox types.BBox, p rpf.Piece) bool {
	drew := place(dst, bbox, p.Image, p.Bounds)
	if p.Bounds.MaxLon > 180 {
		if place(dst, bbox, p.Image, p.Bounds.Shift(-360)) {
			drew = true
		}
	}
	return drew
}

// place maps src, covering bounds, into dst with a translate and
// non-uniform scale transform. North is up.
func place(dst *image.RGBA, bbox types.BBox, src image.Image, bounds types.BBox) bool {
	if !bounds.Intersects(bbox) {
		return false
	}
	sr := src.Bounds()
	if sr.Empty() {
		return false
	}

	w := float64(dst.Bounds().Dx())
	h := float64(dst.Bounds().Dy())

	x0 := (bounds.MinLon - bbox.MinLon) / bbox.DeltaLon() * w
	x1 := (bounds.MaxLon - bbox.MinLon) / bbox.DeltaLon() * w
	y0 := (bbox.MaxLat - bounds.MaxLat) / bbox.DeltaLat() * h
	y1 := (bbox.MaxLat - bounds.MinLat) / bbox.DeltaLat() * h

	sx := (x1 - x0) / float64(sr.Dx())
	sy := (y1 - y0) / float64(sr.Dy())

	aff := f64.Aff3{
		sx, 0, x0 - sx*float64(sr.Min.X),
		0, sy, y0 - sy*float64(sr.Min.Y),
	}
	draw.ApproxBiLinear.Transform(dst, aff, src, sr, draw.Over, nil)
	return true
}
