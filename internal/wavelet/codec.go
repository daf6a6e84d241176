// Package wavelet implements the progressive multi-resolution encoding of
// frame rasters. A prefix of an encoding reconstructs every lower
// power-of-two resolution, so small tiles never read the full image.
package wavelet

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"math/bits"

	"github.com/arkilian/rpftiles/internal/errors"
	"golang.org/x/image/draw"
)

// Encoder produces a progressive encoding of an image.
type Encoder interface {
	Encode(img image.Image, width, height int) ([]byte, error)
}

// Decoder reads an encoding up to a maximum resolution.
type Decoder interface {
	PartialDecode(data []byte, maxResolution int) (Codec, error)
}

// Codec reconstructs images from a (partially) decoded encoding.
type Codec interface {
	// Reconstruct returns the image at resolution x resolution pixels.
	Reconstruct(resolution int) (*image.RGBA, error)

	// Resolution is the largest resolution this codec can reconstruct.
	Resolution() int

	// Size is the full resolution of the encoding.
	Size() int
}

const (
	codecMagic  = "HAAR"
	channels    = 4
	codecHeader = 4 + 4 + 4
)

// Haar is an averaging Haar wavelet codec over square power-of-two images.
// Coefficients are stored coarse to fine with all channels of one level
// together, so reconstruction at resolution 2^l reads only the first l+1
// levels.
type Haar struct{}

// NewHaar returns the Haar codec.
func NewHaar() *Haar {
	return &Haar{}
}

// Encode resamples img to width x height and encodes it. width and height
// must be equal powers of two.
func (h *Haar) Encode(img image.Image, width, height int) ([]byte, error) {
	if width != height || !IsPowerOfTwo(width) {
		return nil, errors.NewEncodeError(fmt.Sprintf("wavelet: %dx%d is not a square power of two", width, height), nil)
	}
	size := width
	levels := bits.TrailingZeros(uint(size))

	src := Resample(img, size)

	// planes[c] holds the current level's averages for channel c
	planes := make([][]float32, channels)
	for c := range planes {
		planes[c] = make([]float32, size*size)
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := src.PixOffset(x, y)
			for c := 0; c < channels; c++ {
				planes[c][y*size+x] = float32(src.Pix[i+c])
			}
		}
	}

	// details[l] holds the coefficients that lift level l-1 to level l
	details := make([][]float32, levels+1)
	for l, n := levels, size; l >= 1; l, n = l-1, n/2 {
		half := n / 2
		d := make([]float32, 0, channels*3*half*half)
		for c := 0; c < channels; c++ {
			p := planes[c]
			avg := make([]float32, half*half)
			for y := 0; y < half; y++ {
				for x := 0; x < half; x++ {
					a := p[(2*y)*n+2*x]
					b := p[(2*y)*n+2*x+1]
					cc := p[(2*y+1)*n+2*x]
					dd := p[(2*y+1)*n+2*x+1]
					avg[y*half+x] = (a + b + cc + dd) / 4
					d = append(d,
						(a-b+cc-dd)/4,
						(a+b-cc-dd)/4,
						(a-b-cc+dd)/4,
					)
				}
			}
			planes[c] = avg
		}
		details[l] = d
	}

	total := codecHeader + channels*size*size*4
	buf := make([]byte, codecHeader, total)
	copy(buf[0:4], codecMagic)
	binary.BigEndian.PutUint32(buf[4:8], uint32(size))
	binary.BigEndian.PutUint32(buf[8:12], channels)

	for c := 0; c < channels; c++ {
		buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(planes[c][0]))
	}
	for l := 1; l <= levels; l++ {
		for _, v := range details[l] {
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return buf, nil
}

// PartialDecode reads coefficients up to the smallest power of two that is
// at least maxResolution, capped at the encoded size.
func (h *Haar) PartialDecode(data []byte, maxResolution int) (Codec, error) {
	if len(data) < codecHeader || string(data[0:4]) != codecMagic {
		return nil, errors.NewDecodeError("wavelet: not a Haar encoding", nil)
	}
	size := int(binary.BigEndian.Uint32(data[4:8]))
	if !IsPowerOfTwo(size) || binary.BigEndian.Uint32(data[8:12]) != channels {
		return nil, errors.NewDecodeError(fmt.Sprintf("wavelet: bad header size=%d", size), nil)
	}

	res := NextPowerOfTwo(maxResolution)
	if res > size {
		res = size
	}
	levels := bits.TrailingZeros(uint(res))

	// coefficients through level l occupy channels * 4^l floats
	need := channels * res * res
	if len(data) < codecHeader+need*4 {
		return nil, errors.NewDecodeError(
			fmt.Sprintf("wavelet: encoding truncated: need %d coefficients", need), nil)
	}

	coeffs := make([]float32, need)
	for i := range coeffs {
		o := codecHeader + i*4
		coeffs[i] = math.Float32frombits(binary.BigEndian.Uint32(data[o : o+4]))
	}

	return &haarCodec{size: size, levels: levels, coeffs: coeffs}, nil
}

type haarCodec struct {
	size   int
	levels int
	coeffs []float32
}

func (c *haarCodec) Resolution() int { return 1 << c.levels }

func (c *haarCodec) Size() int { return c.size }

func (c *haarCodec) Reconstruct(resolution int) (*image.RGBA, error) {
	if !IsPowerOfTwo(resolution) || resolution > c.Resolution() {
		return nil, errors.NewDecodeError(
			fmt.Sprintf("wavelet: cannot reconstruct %d from %d", resolution, c.Resolution()), nil)
	}
	target := bits.TrailingZeros(uint(resolution))

	planes := make([][]float32, channels)
	for ch := range planes {
		planes[ch] = []float32{c.coeffs[ch]}
	}
	offset := channels

	for l, n := 1, 1; l <= target; l, n = l+1, n*2 {
		next := 2 * n
		for ch := 0; ch < channels; ch++ {
			p := planes[ch]
			out := make([]float32, next*next)
			for y := 0; y < n; y++ {
				for x := 0; x < n; x++ {
					avg := p[y*n+x]
					hd, vd, dd := c.coeffs[offset], c.coeffs[offset+1], c.coeffs[offset+2]
					offset += 3
					out[(2*y)*next+2*x] = avg + hd + vd + dd
					out[(2*y)*next+2*x+1] = avg - hd + vd - dd
					out[(2*y+1)*next+2*x] = avg + hd - vd - dd
					out[(2*y+1)*next+2*x+1] = avg - hd - vd + dd
				}
			}
			planes[ch] = out
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, resolution, resolution))
	for y := 0; y < resolution; y++ {
		for x := 0; x < resolution; x++ {
			i := img.PixOffset(x, y)
			for ch := 0; ch < channels; ch++ {
				img.Pix[i+ch] = toByte(planes[ch][y*resolution+x])
			}
		}
	}
	return img, nil
}

// Resample scales img to a size x size RGBA image.
func Resample(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds() == dst.Bounds() {
		copy(dst.Pix, rgba.Pix)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n, and 1 for n <= 1.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func toByte(v float32) uint8 {
	v = float32(math.Round(float64(v)))
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
