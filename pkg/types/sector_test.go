package types

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestAngle_WireNull(t *testing.T) {
	if !math.IsNaN(Angle{}.Wire()) {
		t.Fatal("null angle should encode as NaN")
	}
	if AngleFromWire(math.NaN()).Valid {
		t.Fatal("NaN should decode as null")
	}
	a := AngleFromWire(0)
	if !a.Valid || a.Degrees != 0 {
		t.Fatalf("zero should decode as a present zero angle, got %v", a)
	}
}

func TestSector_Bounds(t *testing.T) {
	s := NewSector(10, 11, 20, 21)
	b, ok := s.Bounds()
	if !ok {
		t.Fatal("complete sector should have bounds")
	}
	if b.DeltaLat() != 1 || b.DeltaLon() != 1 {
		t.Errorf("unexpected deltas %v x %v", b.DeltaLat(), b.DeltaLon())
	}

	s.MaxLongitude = Angle{}
	if _, ok := s.Bounds(); ok {
		t.Error("partial sector should not have bounds")
	}
	if (Sector{}).Complete() || !(Sector{}).IsNull() {
		t.Error("zero sector should be null")
	}
}

func TestBBox_Valid(t *testing.T) {
	tests := []struct {
		name string
		box  BBox
		want bool
	}{
		{"normal", BBox{0, 1, 0, 1}, true},
		{"zero height", BBox{1, 1, 0, 1}, false},
		{"inverted lon", BBox{0, 1, 2, 1}, false},
		{"nan", BBox{math.NaN(), 1, 0, 1}, false},
		{"inf", BBox{0, math.Inf(1), 0, 1}, false},
	}
	for _, tt := range tests {
		if got := tt.box.Valid(); got != tt.want {
			t.Errorf("%s: Valid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBBox_NormalizeSeam(t *testing.T) {
	b := BBox{MinLat: 0, MaxLat: 1, MinLon: 179, MaxLon: -179}.NormalizeSeam()
	if b.MaxLon != 181 {
		t.Errorf("MaxLon = %v, want 181", b.MaxLon)
	}
	same := BBox{0, 1, 10, 20}.NormalizeSeam()
	if same.MaxLon != 20 {
		t.Errorf("non-crossing box changed: %v", same)
	}
}

func TestWrapLongitude(t *testing.T) {
	cases := map[float64]float64{0: 0, 180: -180, 181: -179, -181: 179, 540: -180, 359: -1}
	for in, want := range cases {
		if got := WrapLongitude(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("WrapLongitude(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestProperty_UnionContainsBoth(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	box := func(lat, lon, dLat, dLon float64) BBox {
		return BBox{MinLat: lat, MaxLat: lat + dLat, MinLon: lon, MaxLon: lon + dLon}
	}

	properties.Property("union contains both operands", prop.ForAll(
		func(lat1, lon1, lat2, lon2, d float64) bool {
			a := box(lat1, lon1, d, d)
			b := box(lat2, lon2, d, d)
			u := a.Union(b)
			return u.MinLat <= a.MinLat && u.MinLat <= b.MinLat &&
				u.MaxLat >= a.MaxLat && u.MaxLat >= b.MaxLat &&
				u.MinLon <= a.MinLon && u.MinLon <= b.MinLon &&
				u.MaxLon >= a.MaxLon && u.MaxLon >= b.MaxLon
		},
		gen.Float64Range(-80, 80),
		gen.Float64Range(-170, 170),
		gen.Float64Range(-80, 80),
		gen.Float64Range(-170, 170),
		gen.Float64Range(0.01, 5),
	))

	properties.Property("intersection is symmetric", prop.ForAll(
		func(lat1, lon1, lat2, lon2 float64) bool {
			a := box(lat1, lon1, 2, 2)
			b := box(lat2, lon2, 2, 2)
			return a.Intersects(b) == b.Intersects(a)
		},
		gen.Float64Range(-10, 10),
		gen.Float64Range(-10, 10),
		gen.Float64Range(-10, 10),
		gen.Float64Range(-10, 10),
	))

	properties.TestingRun(t)
}
