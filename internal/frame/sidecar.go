package frame

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/arkilian/rpftiles/pkg/types"
)

// SidecarSuffix is appended to a frame path to locate its metadata.
const SidecarSuffix = ".meta.json"

// Sidecar is the .meta.json file describing one frame. Bounds are optional;
// an absent field reads as a null angle.
type Sidecar struct {
	MinLatitude  *float64 `json:"min_lat,omitempty"`
	MaxLatitude  *float64 `json:"max_lat,omitempty"`
	MinLongitude *float64 `json:"min_lon,omitempty"`
	MaxLongitude *float64 `json:"max_lon,omitempty"`
	DataSeries   string   `json:"data_series,omitempty"`
	Producer     string   `json:"producer,omitempty"`

	// Pieces names the rasters, relative to the frame's directory, that
	// continue the frame eastward across a projection discontinuity.
	Pieces []string `json:"pieces,omitempty"`

	CreatedAt int64 `json:"created_at"`
}

// NewSidecar builds a sidecar from a sector.
func NewSidecar(s types.Sector, dataSeries string) *Sidecar {
	angle := func(a types.Angle) *float64 {
		if !a.Valid {
			return nil
		}
		v := a.Degrees
		return &v
	}
	return &Sidecar{
		MinLatitude:  angle(s.MinLatitude),
		MaxLatitude:  angle(s.MaxLatitude),
		MinLongitude: angle(s.MinLongitude),
		MaxLongitude: angle(s.MaxLongitude),
		DataSeries:   dataSeries,
		CreatedAt:    time.Now().Unix(),
	}
}

// Sector returns the sidecar bounds.
func (s *Sidecar) Sector() types.Sector {
	angle := func(v *float64) types.Angle {
		if v == nil {
			return types.Angle{}
		}
		return types.Degrees(*v)
	}
	return types.Sector{
		MinLatitude:  angle(s.MinLatitude),
		MaxLatitude:  angle(s.MaxLatitude),
		MinLongitude: angle(s.MinLongitude),
		MaxLongitude: angle(s.MaxLongitude),
	}
}

// SidecarPath returns the sidecar location for a frame file.
func SidecarPath(framePath string) string {
	return framePath + SidecarSuffix
}

// WriteToFile writes the sidecar as indented JSON.
func (s *Sidecar) WriteToFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("frame: failed to marshal sidecar: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("frame: failed to write sidecar file: %w", err)
	}
	return nil
}

// ReadSidecar reads a sidecar, matching its name case-insensitively.
func ReadSidecar(path string) (*Sidecar, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("frame: failed to locate sidecar: %w", err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("frame: failed to read sidecar file: %w", err)
	}

	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("frame: failed to parse sidecar: %w", err)
	}
	return &sc, nil
}
