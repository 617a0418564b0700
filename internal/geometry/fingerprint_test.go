package geometry

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

func TestFingerprint_IgnoresWhitespaceAndKeyOrder(t *testing.T) {
	a, err := Decode(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`)
	if err != nil {
		t.Fatalf("Decode a: %v", err)
	}
	b, err := Decode(`{ "coordinates" : [ [ [0.0, 0], [1, 0.00], [1,1], [0,0] ] ],
		"type": "Polygon" }`)
	if err != nil {
		t.Fatalf("Decode b: %v", err)
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("fingerprints differ for equivalent payloads")
	}
}

func TestFingerprint_IdempotentThroughEncode(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{-7.9371234, 32.2198765},
		orb.LineString{{0.1, 0.2}, {0.3, 0.4}, {-0.5, 1e-9}},
		orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}, {{0.2, 0.2}, {0.4, 0.2}, {0.4, 0.4}, {0.2, 0.2}}},
		orb.MultiPolygon{
			{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
			{{{10, 10}, {11, 10}, {11, 11}, {10, 10}}},
		},
	}
	for _, g := range geoms {
		b, err := Encode(g)
		if err != nil {
			t.Fatalf("Encode %s: %v", g.GeoJSONType(), err)
		}
		back, err := Decode(b)
		if err != nil {
			t.Fatalf("Decode %s: %v", g.GeoJSONType(), err)
		}
		if Fingerprint(back) != Fingerprint(g) {
			t.Fatalf("%s: fingerprint changed across encode/decode", g.GeoJSONType())
		}
	}
}

func TestFingerprint_OrderSensitive(t *testing.T) {
	a := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	reversed := orb.Polygon{{{0, 0}, {1, 1}, {1, 0}, {0, 0}}}
	if Fingerprint(a) == Fingerprint(reversed) {
		t.Fatalf("winding order must be part of the identity")
	}
}

func TestFingerprint_TypeIsPartOfIdentity(t *testing.T) {
	line := orb.LineString{{0, 0}, {1, 1}}
	ring := orb.Polygon{{{0, 0}, {1, 1}}}
	if Fingerprint(line) == Fingerprint(ring) {
		t.Fatalf("LineString and Polygon with same positions must differ")
	}
}

func TestFingerprint_Precision(t *testing.T) {
	a := orb.Point{1.00000001, 2}
	b := orb.Point{1.00000004, 2}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("differences below 7 decimals should not change the fingerprint")
	}
	if FingerprintWithPrecision(a, 8) == FingerprintWithPrecision(b, 8) {
		t.Fatalf("differences at 8 decimals should change the fingerprint at precision 8")
	}
}

func TestCanonical_Format(t *testing.T) {
	got := Canonical(orb.LineString{{1.5, -0.0}, {2, 3.12345678}}, 7)
	want := `{"type":"LineString","coordinates":[[1.5,0],[2,3.1234568]]}`
	if got != want {
		t.Fatalf("canonical=%s\nwant      %s", got, want)
	}
	if fp := Fingerprint(orb.Point{1, 2}); !strings.HasPrefix(fp, "fp:") || len(fp) != 3+64 {
		t.Fatalf("unexpected fingerprint format %q", fp)
	}
	if Fingerprint(nil) != "fp:null" {
		t.Fatalf("nil geometry fingerprint")
	}
}
