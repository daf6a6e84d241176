// Package frame reads source frame rasters and their header bounds.
package frame

import (
	stderrors "errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/arkilian/rpftiles/internal/errors"
	"github.com/arkilian/rpftiles/internal/rpf"
	"github.com/arkilian/rpftiles/pkg/types"
	_ "golang.org/x/image/tiff"
)

// Decoder decodes a frame file into a raster.
type Decoder interface {
	Decode(path string) (image.Image, error)
}

// HeaderReader reads the bounds embedded in a frame's metadata.
type HeaderReader interface {
	ReadBounds(path string) (types.Sector, error)
}

// ImageDecoder decodes frames stored as PNG, JPEG or TIFF under their RPF
// names, with bounds in a JSON sidecar next to each frame.
type ImageDecoder struct{}

// NewImageDecoder creates a decoder for image-backed frames.
func NewImageDecoder() *ImageDecoder {
	return &ImageDecoder{}
}

// Decode opens path, matching the file name case-insensitively, and decodes
// it. A frame split into pieces is joined into one raster.
func (d *ImageDecoder) Decode(path string) (image.Image, error) {
	pieces, err := d.DecodePieces(path)
	if err != nil {
		return nil, err
	}
	return rpf.Join(pieces), nil
}

// DecodePieces decodes the frame at path followed by the pieces its sidecar
// lists, west to east. A frame without a sidecar is a single piece.
func (d *ImageDecoder) DecodePieces(path string) ([]image.Image, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return nil, errors.NewDecodeError(fmt.Sprintf("frame: %s", path), err)
	}
	first, err := decodeImage(resolved)
	if err != nil {
		return nil, errors.NewDecodeError(fmt.Sprintf("frame: %s", path), err)
	}

	sc, err := ReadSidecar(SidecarPath(resolved))
	if stderrors.Is(err, os.ErrNotExist) {
		return []image.Image{first}, nil
	}
	if err != nil {
		return nil, errors.NewDecodeError(fmt.Sprintf("frame: %s", path), err)
	}

	pieces := []image.Image{first}
	for _, name := range sc.Pieces {
		p, err := ResolvePath(filepath.Join(filepath.Dir(resolved), name))
		if err != nil {
			return nil, errors.NewDecodeError(fmt.Sprintf("frame: %s: piece %s", path, name), err)
		}
		img, err := decodeImage(p)
		if err != nil {
			return nil, errors.NewDecodeError(fmt.Sprintf("frame: %s: piece %s", path, name), err)
		}
		pieces = append(pieces, img)
	}
	return pieces, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// ReadBounds reads the frame's sidecar bounds.
func (d *ImageDecoder) ReadBounds(path string) (types.Sector, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return types.Sector{}, errors.NewGeocodeError(errors.CodeBadHeader,
			fmt.Sprintf("frame: %s", path), err)
	}

	sc, err := ReadSidecar(SidecarPath(resolved))
	if err != nil {
		return types.Sector{}, errors.NewGeocodeError(errors.CodeBadHeader,
			fmt.Sprintf("frame: no readable header for %s", path), err)
	}
	return sc.Sector(), nil
}

// ResolvePath returns path if it exists, otherwise the single entry in its
// directory whose name matches case-insensitively. Index records store
// upper-cased names while frames on disk often are not.
func ResolvePath(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), base) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("frame: %s: %w", path, os.ErrNotExist)
}
