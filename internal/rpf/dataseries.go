package rpf

import (
	"fmt"
	"strings"

	"github.com/arkilian/rpftiles/internal/errors"
)

// SeriesKind distinguishes scaled chart products from imagery products.
type SeriesKind int

const (
	// KindCADRG series are described by a map scale denominator.
	KindCADRG SeriesKind = iota
	// KindCIB series are described by a ground sample distance in meters.
	KindCIB
)

func (k SeriesKind) String() string {
	if k == KindCIB {
		return "CIB"
	}
	return "CADRG"
}

// DataSeries describes one two-letter data series code.
type DataSeries struct {
	Code        string
	Name        string
	Kind        SeriesKind
	Scale       float64 // denominator, CADRG only
	GSD         float64 // meters per pixel, CIB only
	Description string
}

// scaleFactor converts the 1:1,000,000 pixel constants to this series.
func (d DataSeries) scaleFactor() float64 {
	if d.Kind == KindCIB {
		return 100.0 / d.GSD
	}
	return 1e6 / d.Scale
}

var dataSeries = map[string]DataSeries{
	"GN": {Code: "GN", Name: "GNC", Kind: KindCADRG, Scale: 5_000_000, Description: "Global Navigation Chart"},
	"JN": {Code: "JN", Name: "JNC", Kind: KindCADRG, Scale: 2_000_000, Description: "Jet Navigation Chart"},
	"ON": {Code: "ON", Name: "ONC", Kind: KindCADRG, Scale: 1_000_000, Description: "Operational Navigation Chart"},
	"TP": {Code: "TP", Name: "TPC", Kind: KindCADRG, Scale: 500_000, Description: "Tactical Pilotage Chart"},
	"LF": {Code: "LF", Name: "LFC", Kind: KindCADRG, Scale: 500_000, Description: "Low Flying Chart"},
	"JG": {Code: "JG", Name: "JOG", Kind: KindCADRG, Scale: 250_000, Description: "Joint Operations Graphic"},
	"JA": {Code: "JA", Name: "JOG-A", Kind: KindCADRG, Scale: 250_000, Description: "Joint Operations Graphic - Air"},
	"JR": {Code: "JR", Name: "JOG-R", Kind: KindCADRG, Scale: 250_000, Description: "Joint Operations Graphic - Radar"},
	"JO": {Code: "JO", Name: "OPG", Kind: KindCADRG, Scale: 250_000, Description: "Operational Planning Graphic"},
	"VT": {Code: "VT", Name: "VTAC", Kind: KindCADRG, Scale: 250_000, Description: "VFR Terminal Area Chart"},
	"TC": {Code: "TC", Name: "TLM100", Kind: KindCADRG, Scale: 100_000, Description: "Topographic Line Map 1:100,000"},
	"TL": {Code: "TL", Name: "TLM50", Kind: KindCADRG, Scale: 50_000, Description: "Topographic Line Map 1:50,000"},
	"I1": {Code: "I1", Name: "CIB10", Kind: KindCIB, GSD: 10, Description: "Controlled Image Base 10m"},
	"I2": {Code: "I2", Name: "CIB5", Kind: KindCIB, GSD: 5, Description: "Controlled Image Base 5m"},
	"I3": {Code: "I3", Name: "CIB2", Kind: KindCIB, GSD: 2, Description: "Controlled Image Base 2m"},
	"I4": {Code: "I4", Name: "CIB1", Kind: KindCIB, GSD: 1, Description: "Controlled Image Base 1m"},
	"I5": {Code: "I5", Name: "CIB05", Kind: KindCIB, GSD: 0.5, Description: "Controlled Image Base 0.5m"},
}

// LookupDataSeries returns the data series for a two-letter code.
func LookupDataSeries(code string) (DataSeries, error) {
	ds, ok := dataSeries[strings.ToUpper(code)]
	if !ok {
		return DataSeries{}, errors.NewGeocodeError(errors.CodeUnknownSeries,
			fmt.Sprintf("rpf: unknown data series %q", code), nil)
	}
	return ds, nil
}
