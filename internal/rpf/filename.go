// Package rpf implements the Raster Product Format frame naming convention
// and the ARC zone geometry used to locate frames from their names alone.
package rpf

import (
	"fmt"
	"strings"

	"github.com/arkilian/rpftiles/internal/errors"
)

// base34 is the frame-number alphabet: digits and letters without I and O.
const base34 = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// FilenameLength is the length of an RPF frame name, FFFFFVVP.SSZ.
const FilenameLength = 12

// Filename is a parsed RPF frame file name.
type Filename struct {
	FrameNumber int
	Version     int
	Producer    byte
	DataSeries  string
	Zone        byte
}

// ParseFilename parses a name of the form FFFFFVVP.SSZ, where FFFFF is the
// base-34 frame number, VV the version, P the producer, SS the data series
// code and Z the zone. Parsing is case-insensitive.
func ParseFilename(name string) (Filename, error) {
	n := strings.ToUpper(name)
	if len(n) != FilenameLength || n[8] != '.' {
		return Filename{}, unparsable(name, "expected FFFFFVVP.SSZ")
	}

	frame, err := decodeBase34(n[0:5])
	if err != nil {
		return Filename{}, unparsable(name, err.Error())
	}
	version, err := decodeBase34(n[5:7])
	if err != nil {
		return Filename{}, unparsable(name, err.Error())
	}
	if _, ok := ZoneIndex(n[11]); !ok {
		return Filename{}, unparsable(name, fmt.Sprintf("invalid zone %q", n[11]))
	}

	return Filename{
		FrameNumber: frame,
		Version:     version,
		Producer:    n[7],
		DataSeries:  n[9:11],
		Zone:        n[11],
	}, nil
}

// String formats f back into its canonical upper-case name.
func (f Filename) String() string {
	return encodeBase34(f.FrameNumber, 5) + encodeBase34(f.Version, 2) +
		string(f.Producer) + "." + f.DataSeries + string(f.Zone)
}

// ZoneIndex maps a zone character to its ARC zone number 1-9. Zones 1-9 are
// northern, A-H and J are the southern zones 1-9.
func ZoneIndex(z byte) (int, bool) {
	switch {
	case z >= '1' && z <= '9':
		return int(z - '0'), true
	case z >= 'A' && z <= 'H':
		return int(z-'A') + 1, true
	case z == 'J':
		return 9, true
	case z >= 'a' && z <= 'h', z == 'j':
		return ZoneIndex(z - 'a' + 'A')
	}
	return 0, false
}

// IsNorthern reports whether zone lies in the northern hemisphere.
func IsNorthern(z byte) bool {
	return z >= '1' && z <= '9'
}

func decodeBase34(s string) (int, error) {
	v := 0
	for i := 0; i < len(s); i++ {
		d := strings.IndexByte(base34, s[i])
		if d < 0 {
			return 0, fmt.Errorf("invalid base-34 digit %q", s[i])
		}
		v = v*34 + d
	}
	return v, nil
}

func encodeBase34(v, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = base34[v%34]
		v /= 34
	}
	return string(buf)
}

func unparsable(name, reason string) error {
	return errors.NewGeocodeError(errors.CodeUnparsableName,
		fmt.Sprintf("rpf: cannot parse frame name %q: %s", name, reason), nil)
}
