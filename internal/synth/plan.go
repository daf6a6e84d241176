package synth

import (
	"fmt"

	"github.com/arkilian/rpftiles/internal/wavelet"
	"github.com/arkilian/rpftiles/pkg/types"
)

// SourceKind selects where a frame's pixels come from.
type SourceKind int

const (
	// SourceFull decodes the original frame.
	SourceFull SourceKind = iota
	// SourceWavelet reconstructs the frame from its progressive encoding.
	SourceWavelet
)

// Source is the detail source chosen for one frame.
type Source struct {
	Kind       SourceKind
	Resolution int  // wavelet only
	Preloaded  bool // served from the shared partial-decode cache
}

func (s Source) String() string {
	if s.Kind == SourceFull {
		return "full"
	}
	if s.Preloaded {
		return fmt.Sprintf("preload@%d", s.Resolution)
	}
	return fmt.Sprintf("wavelet@%d", s.Resolution)
}

// Candidate is a frame that contributes to a query.
type Candidate struct {
	FileKey    types.Key
	Bounds     types.BBox
	FootprintX float64
	FootprintY float64
	Source     Source
}

// Footprint returns the on-screen size in pixels of a frame with bounds
// frame when bbox is rendered at width x height.
func Footprint(frame, bbox types.BBox, width, height int) (fx, fy float64) {
	fx = frame.DeltaLon() / bbox.DeltaLon() * float64(width)
	fy = frame.DeltaLat() / bbox.DeltaLat() * float64(height)
	return fx, fy
}

// ChooseSource picks the detail source for a frame footprint. Footprints
// above threshold use the full-resolution frame; smaller ones use the
// next power of two at least as large as the footprint.
func ChooseSource(fx, fy float64, threshold, preloadResolution int) Source {
	m := max(fx, fy)
	if m > float64(threshold) {
		return Source{Kind: SourceFull}
	}
	res := wavelet.NextPowerOfTwo(ceilInt(m))
	return Source{
		Kind:       SourceWavelet,
		Resolution: res,
		Preloaded:  res <= preloadResolution,
	}
}

// Plan lists the frames that would contribute to a query and the detail
// source for each, in index order. It performs no I/O.
func (s *Synthesizer) Plan(bbox types.BBox, width, height int) ([]Candidate, error) {
	if err := validate(bbox, width, height); err != nil {
		return nil, err
	}

	var out []Candidate
	s.store.Files().Each(func(key types.Key, r indexFile) bool {
		if !r.WaveletKey.Valid() || !s.store.Wavelets().Contains(r.WaveletKey) {
			return true
		}
		b, ok := r.Sector.Bounds()
		if !ok {
			return true
		}
		b = b.NormalizeSeam()
		if !b.Valid() || !overlaps(b, bbox) {
			return true
		}
		if s.tracker.IsAbsent(key) {
			return true
		}

		fx, fy := Footprint(b, bbox, width, height)
		out = append(out, Candidate{
			FileKey:    key,
			Bounds:     b,
			FootprintX: fx,
			FootprintY: fy,
			Source:     ChooseSource(fx, fy, s.cfg.FullResolutionThreshold, s.cfg.PreloadResolution),
		})
		return true
	})
	return out, nil
}

// overlaps reports whether frame, or its copy shifted one turn west when it
// extends past the antimeridian, intersects bbox.
func overlaps(frame, bbox types.BBox) bool {
	if frame.Intersects(bbox) {
		return true
	}
	return frame.MaxLon > 180 && frame.Shift(-360).Intersects(bbox)
}

func ceilInt(v float64) int {
	n := int(v)
	if float64(n) < v {
		n++
	}
	return n
}
