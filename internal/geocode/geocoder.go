// Package geocode derives the geographic footprint of a frame file.
package geocode

import (
	"fmt"
	"path/filepath"

	"github.com/arkilian/rpftiles/internal/frame"
	"github.com/arkilian/rpftiles/internal/rpf"
	"github.com/arkilian/rpftiles/pkg/types"
	"go.uber.org/zap"
)

// Source identifies where a sector came from.
type Source int

const (
	SourceNone Source = iota
	SourceName
	SourceHeader
)

func (s Source) String() string {
	switch s {
	case SourceName:
		return "name"
	case SourceHeader:
		return "header"
	default:
		return "none"
	}
}

// Geocoder computes frame sectors from RPF names, falling back to the
// frame's header bounds.
type Geocoder struct {
	headers frame.HeaderReader
	logger  *zap.Logger
}

// New creates a geocoder. headers may be nil to disable the fallback.
func New(headers frame.HeaderReader, logger *zap.Logger) *Geocoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Geocoder{headers: headers, logger: logger}
}

// SectorFor returns the footprint of the frame at path. Failures are logged
// and produce a null sector; they never propagate.
func (g *Geocoder) SectorFor(path string) types.Sector {
	s, _ := g.Locate(path)
	return s
}

// Locate is SectorFor that also reports which strategy produced the sector.
func (g *Geocoder) Locate(path string) (sector types.Sector, source Source) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("geocode: recovered from panic", zap.String("file", path), zap.Any("panic", r))
			sector, source = types.Sector{}, SourceNone
		}
	}()

	s, nameErr := rpf.SectorForName(filepath.Base(path))
	if nameErr == nil {
		return normalize(s), SourceName
	}

	if g.headers == nil {
		g.logger.Warn("geocode: no sector for frame",
			zap.String("file", path), zap.NamedError("name_error", nameErr))
		return types.Sector{}, SourceNone
	}

	s, headerErr := g.headers.ReadBounds(path)
	if headerErr != nil {
		g.logger.Warn("geocode: no sector for frame",
			zap.String("file", path),
			zap.NamedError("name_error", nameErr),
			zap.NamedError("header_error", headerErr))
		return types.Sector{}, SourceNone
	}

	g.logger.Debug("geocode: using header bounds",
		zap.String("file", path), zap.String("reason", fmt.Sprint(nameErr)))
	return normalize(s), SourceHeader
}

// normalize makes a seam-crossing sector monotonic in longitude.
func normalize(s types.Sector) types.Sector {
	if s.MinLongitude.Valid && s.MaxLongitude.Valid && s.MaxLongitude.Degrees < s.MinLongitude.Degrees {
		s.MaxLongitude = types.Degrees(s.MaxLongitude.Degrees + 360)
	}
	return s
}
