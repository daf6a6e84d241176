package rpf

import (
	"image"
	"math"

	"github.com/arkilian/rpftiles/pkg/types"
	"golang.org/x/image/draw"
)

// Piece is a raster with the rectangle it covers.
type Piece struct {
	Image  image.Image
	Bounds types.BBox
}

// Deproject splits a frame raster whose seam-normalized bounds extend past
// +180 degrees into a west piece ending at 180 and an east piece starting at
// -180. Frames that do not cross the seam yield a single piece.
func Deproject(img image.Image, b types.BBox) []Piece {
	b = b.NormalizeSeam()
	if b.MaxLon <= 180 || b.MinLon >= 180 {
		return []Piece{{Image: img, Bounds: b}}
	}

	r := img.Bounds()
	split := r.Min.X + int(math.Round(float64(r.Dx())*(180-b.MinLon)/b.DeltaLon()))
	if split <= r.Min.X || split >= r.Max.X {
		return []Piece{{Image: img, Bounds: b}}
	}

	west := types.BBox{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLon: b.MinLon, MaxLon: 180}
	east := types.BBox{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLon: -180, MaxLon: b.MaxLon - 360}

	return []Piece{
		{Image: subImage(img, image.Rect(r.Min.X, r.Min.Y, split, r.Max.Y)), Bounds: west},
		{Image: subImage(img, image.Rect(split, r.Min.Y, r.Max.X, r.Max.Y)), Bounds: east},
	}
}

// Join places rasters side by side, left to right, into one image whose
// height is the tallest raster.
func Join(pieces []image.Image) image.Image {
	if len(pieces) == 1 {
		return pieces[0]
	}

	width, height := 0, 0
	for _, p := range pieces {
		width += p.Bounds().Dx()
		if h := p.Bounds().Dy(); h > height {
			height = h
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	x := 0
	for _, p := range pieces {
		r := p.Bounds()
		draw.Draw(dst, image.Rect(x, 0, x+r.Dx(), r.Dy()), p, r.Min, draw.Src)
		x += r.Dx()
	}
	return dst
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func subImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
