package geometry

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
)

const squareJSON = `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`

func mustMap(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("unmarshal %s: %v", s, err)
	}
	return m
}

func TestDecode_AcceptedShapes(t *testing.T) {
	tests := []struct {
		name     string
		src      func(t *testing.T) any
		wantType string
		first    orb.Point
	}{
		{"geojson object", func(t *testing.T) any { return mustMap(t, squareJSON) }, "Polygon", orb.Point{0, 0}},
		{"geojson string", func(*testing.T) any { return squareJSON }, "Polygon", orb.Point{0, 0}},
		{"raw message", func(*testing.T) any { return json.RawMessage(`{"type":"Point","coordinates":[-7.93,32.21]}`) }, "Point", orb.Point{-7.93, 32.21}},
		{"double encoded string", func(*testing.T) any {
			b, _ := json.Marshal(`{"type":"LineString","coordinates":[[1,2],[3,4]]}`)
			return string(b)
		}, "LineString", orb.Point{1, 2}},
		{"feature wrapper", func(t *testing.T) any {
			return mustMap(t, `{"type":"Feature","properties":{"name":"x"},"geometry":`+squareJSON+`}`)
		}, "Polygon", orb.Point{0, 0}},
		{"record with geojson coordinates", func(t *testing.T) any {
			return mustMap(t, `{"name":"Library","coordinates":`+squareJSON+`}`)
		}, "Polygon", orb.Point{0, 0}},
		{"record with string coordinates", func(t *testing.T) any {
			b, _ := json.Marshal(map[string]any{"coordinates": squareJSON})
			return mustMap(t, string(b))
		}, "Polygon", orb.Point{0, 0}},
		{"flat lat/lng", func(t *testing.T) any { return mustMap(t, `{"type":"cafe","lat":32.2,"lng":-7.9}`) }, "Point", orb.Point{-7.9, 32.2}},
		{"flat longitude/latitude strings", func(t *testing.T) any {
			return mustMap(t, `{"longitude":"-7.5","latitude":"32.5"}`)
		}, "Point", orb.Point{-7.5, 32.5}},
		{"flat long", func(t *testing.T) any { return mustMap(t, `{"long":10,"lat":20}`) }, "Point", orb.Point{10, 20}},
		{"nested coordinates lng/lat", func(t *testing.T) any {
			return mustMap(t, `{"coordinates":{"lng":5,"lat":6}}`)
		}, "Point", orb.Point{5, 6}},
		{"model coord", func(*testing.T) any { return model.Coord{Lng: 1, Lat: 2} }, "Point", orb.Point{1, 2}},
		{"orb geometry", func(*testing.T) any { return orb.LineString{{1, 1}, {2, 2}} }, "LineString", orb.Point{1, 1}},
		{"altitude dropped", func(*testing.T) any { return `{"type":"Point","coordinates":[1,2,300]}` }, "Point", orb.Point{1, 2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, err := Decode(tc.src(t))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if g.GeoJSONType() != tc.wantType {
				t.Fatalf("type=%s want %s", g.GeoJSONType(), tc.wantType)
			}
			first, ok := First(g)
			if !ok || first != tc.first {
				t.Fatalf("first=%v ok=%v want %v", first, ok, tc.first)
			}
		})
	}
}

func TestDecode_GeoJSONBeatsFlatFields(t *testing.T) {
	src := map[string]any{
		"lat":         50.0,
		"lng":         50.0,
		"coordinates": `{"type":"Point","coordinates":[1,2]}`,
	}
	g, err := Decode(src)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p := g.(orb.Point); p != (orb.Point{1, 2}) {
		t.Fatalf("point=%v want [1 2]", p)
	}
}

func TestDecode_FallsBackToFlatWhenWrappedGeometryBroken(t *testing.T) {
	src := map[string]any{"coordinates": "{not json", "lat": 3.0, "lng": 4.0}
	g, err := Decode(src)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p := g.(orb.Point); p != (orb.Point{4, 3}) {
		t.Fatalf("point=%v want [4 3]", p)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want error
	}{
		{"bad json string", "{oops", ErrUnparseable},
		{"bad json bytes", []byte("[1,"), ErrUnparseable},
		{"multipoint", `{"type":"MultiPoint","coordinates":[[1,2]]}`, ErrUnsupportedType},
		{"geometry collection", `{"type":"GeometryCollection","geometries":[]}`, ErrUnsupportedType},
		{"unknown type with coordinates", map[string]any{"type": "Circle", "coordinates": []any{1.0, 2.0}}, ErrUnsupportedType},
		{"nil", nil, ErrMissingCoordinates},
		{"empty string", "  ", ErrMissingCoordinates},
		{"json array", `[1,2]`, ErrMissingCoordinates},
		{"record without coordinates", map[string]any{"name": "x"}, ErrMissingCoordinates},
		{"lat only", map[string]any{"lat": 1.0}, ErrMissingCoordinates},
		{"empty linestring", `{"type":"LineString","coordinates":[]}`, ErrMissingCoordinates},
		{"empty polygon ring", `{"type":"Polygon","coordinates":[[]]}`, ErrMissingCoordinates},
		{"point without coordinates", `{"type":"Point"}`, ErrMissingCoordinates},
		{"short position", `{"type":"LineString","coordinates":[[1]]}`, ErrInvalidCoordinates},
		{"non numeric", `{"type":"Point","coordinates":["a","b"]}`, ErrInvalidCoordinates},
		{"nan flat", map[string]any{"lat": "NaN", "lng": 1.0}, ErrInvalidCoordinates},
		{"inf orb point", orb.Point{math.Inf(1), 0}, ErrInvalidCoordinates},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.src)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err %T is not a *DecodeError", err)
			}
		})
	}
}

func TestDecode_MultiPolygonKeepsAllPolygons(t *testing.T) {
	g, err := Decode(`{"type":"MultiPolygon","coordinates":[
		[[[0,0],[1,0],[1,1],[0,0]]],
		[[[5,5],[6,5],[6,6],[5,5]],[[5.2,5.2],[5.4,5.2],[5.4,5.4],[5.2,5.2]]]
	]}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	mp, ok := g.(orb.MultiPolygon)
	if !ok {
		t.Fatalf("got %T want orb.MultiPolygon", g)
	}
	if len(mp) != 2 || len(mp[1]) != 2 {
		t.Fatalf("unexpected shape: polygons=%d rings[1]=%d", len(mp), len(mp[1]))
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	g, err := Decode(squareJSON)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	b, err := Encode(g)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	again, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode(Encode): %v", err)
	}
	if !orb.Equal(g, again) {
		t.Fatalf("round trip mismatch: %v vs %v", g, again)
	}
}
