// Package geometry decodes the coordinate encodings found on campus entities into
// canonical orb geometries and derives duplicate-detection fingerprints from them.
//
// A canonical geometry is one of orb.Point, orb.LineString, orb.Polygon or
// orb.MultiPolygon. Every position is [lng, lat] and finite on both axes.
package geometry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
)

// nesting guard for wrapper records and double-encoded strings
const maxDepth = 4

var (
	lngKeys = []string{"longitude", "lng", "long"}
	latKeys = []string{"latitude", "lat"}
)

// Decode turns a coordinate source into a canonical geometry. Accepted sources,
// in priority order: a GeoJSON geometry object (possibly wrapped in a Feature or
// in a record's "geometry"/"coordinates" member), a JSON string holding one, and
// a flat record with longitude|lng|long and latitude|lat fields.
func Decode(source any) (orb.Geometry, error) {
	return decode(source, 0)
}

func decode(source any, depth int) (orb.Geometry, error) {
	if depth > maxDepth {
		return nil, missing("coordinate source nested too deeply")
	}
	switch s := source.(type) {
	case nil:
		return nil, missing("no coordinate source")
	case orb.Point, orb.LineString, orb.Polygon, orb.MultiPolygon:
		g := s.(orb.Geometry)
		if err := validate(g); err != nil {
			return nil, err
		}
		return g, nil
	case orb.Geometry:
		return nil, unsupported(s.GeoJSONType())
	case *geojson.Geometry:
		if s == nil || s.Coordinates == nil {
			return nil, missing("empty geojson geometry")
		}
		return decode(s.Geometry(), depth+1)
	case model.Coord:
		return decode(orb.Point{s.Lng, s.Lat}, depth+1)
	case *model.Coord:
		if s == nil {
			return nil, missing("no coordinate source")
		}
		return decode(orb.Point{s.Lng, s.Lat}, depth+1)
	case string:
		return decodeText([]byte(s), depth)
	case json.RawMessage:
		return decodeText(s, depth)
	case []byte:
		return decodeText(s, depth)
	case map[string]any:
		return decodeObject(s, depth)
	default:
		// typed records from callers (structs with lat/lng tags) go through JSON
		b, err := json.Marshal(s)
		if err != nil {
			return nil, unparseable(err)
		}
		return decodeText(b, depth)
	}
}

func decodeText(b []byte, depth int) (orb.Geometry, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, missing("empty coordinate source")
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, unparseable(err)
	}
	switch t := v.(type) {
	case map[string]any:
		return decodeObject(t, depth)
	case string:
		// double-encoded GeoJSON as stored by some upstream writers
		return decodeText([]byte(t), depth+1)
	default:
		return nil, missing(fmt.Sprintf("expected object, got %s", jsonKind(v)))
	}
}

func decodeObject(m map[string]any, depth int) (orb.Geometry, error) {
	typ, _ := m["type"].(string)
	typ = strings.TrimSpace(typ)
	coords, hasCoords := m["coordinates"]

	if isGeometryType(typ) || (typ != "" && typ != "Feature" && isArray(coords)) {
		if !isSupportedType(typ) {
			return nil, unsupported(typ)
		}
		if !hasCoords || coords == nil {
			return nil, missing(fmt.Sprintf("%s without coordinates", typ))
		}
		return fromGeoJSON(typ, coords)
	}

	// wrapped geometry: Feature.geometry, record.geometry, record.coordinates
	var nestedErr error
	for _, key := range []string{"geometry", "coordinates"} {
		inner, ok := m[key]
		if !ok || inner == nil || isArray(inner) {
			continue
		}
		g, err := decode(inner, depth+1)
		if err == nil {
			return g, nil
		}
		if nestedErr == nil {
			nestedErr = err
		}
	}

	if p, ok, err := flatPoint(m); ok || err != nil {
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	if nestedErr != nil {
		return nil, nestedErr
	}
	return nil, missing("no geometry, coordinates or lat/lng fields")
}

// flatPoint reads scalar longitude/latitude fields. ok is false when neither axis is present.
func flatPoint(m map[string]any) (orb.Point, bool, error) {
	lng, hasLng, err := lookupNumber(m, lngKeys)
	if err != nil {
		return orb.Point{}, true, err
	}
	lat, hasLat, err := lookupNumber(m, latKeys)
	if err != nil {
		return orb.Point{}, true, err
	}
	switch {
	case !hasLng && !hasLat:
		return orb.Point{}, false, nil
	case !hasLng:
		return orb.Point{}, true, missing("latitude without longitude")
	case !hasLat:
		return orb.Point{}, true, missing("longitude without latitude")
	}
	p := orb.Point{lng, lat}
	if !finitePoint(p) {
		return orb.Point{}, true, invalid("non-finite position [%v, %v]", lng, lat)
	}
	return p, true, nil
}

func lookupNumber(m map[string]any, keys []string) (float64, bool, error) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return 0, true, invalid("field %q is not numeric", k)
		}
		return f, true, nil
	}
	return 0, false, nil
}

func fromGeoJSON(typ string, coords any) (orb.Geometry, error) {
	arr, ok := asSlice(coords)
	if !ok {
		return nil, invalid("%s coordinates must be an array", typ)
	}
	switch typ {
	case "Point":
		if len(arr) == 0 {
			return nil, missing("empty Point")
		}
		p, err := position(arr)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "LineString":
		pts, err := positions(arr)
		if err != nil {
			return nil, err
		}
		if len(pts) == 0 {
			return nil, missing("empty LineString")
		}
		return orb.LineString(pts), nil
	case "Polygon":
		return polygon(arr)
	case "MultiPolygon":
		if len(arr) == 0 {
			return nil, missing("empty MultiPolygon")
		}
		mp := make(orb.MultiPolygon, 0, len(arr))
		for i, raw := range arr {
			rings, ok := asSlice(raw)
			if !ok {
				return nil, invalid("polygon %d must be an array", i)
			}
			poly, err := polygon(rings)
			if err != nil {
				return nil, fmt.Errorf("polygon %d: %w", i, err)
			}
			mp = append(mp, poly)
		}
		return mp, nil
	default:
		return nil, unsupported(typ)
	}
}

func polygon(rings []any) (orb.Polygon, error) {
	if len(rings) == 0 {
		return nil, missing("empty Polygon")
	}
	poly := make(orb.Polygon, 0, len(rings))
	for i, raw := range rings {
		arr, ok := asSlice(raw)
		if !ok {
			return nil, invalid("ring %d must be an array", i)
		}
		pts, err := positions(arr)
		if err != nil {
			return nil, fmt.Errorf("ring %d: %w", i, err)
		}
		if i == 0 && len(pts) == 0 {
			return nil, missing("empty outer ring")
		}
		poly = append(poly, orb.Ring(pts))
	}
	return poly, nil
}

func positions(arr []any) ([]orb.Point, error) {
	out := make([]orb.Point, 0, len(arr))
	for i, raw := range arr {
		pos, ok := asSlice(raw)
		if !ok {
			return nil, invalid("position %d must be an array", i)
		}
		p, err := position(pos)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// position reads [lng, lat, ...]; extra dimensions are dropped.
func position(pos []any) (orb.Point, error) {
	if len(pos) < 2 {
		return orb.Point{}, invalid("position needs 2 values, got %d", len(pos))
	}
	lng, ok := toFloat(pos[0])
	if !ok {
		return orb.Point{}, invalid("longitude is not numeric")
	}
	lat, ok := toFloat(pos[1])
	if !ok {
		return orb.Point{}, invalid("latitude is not numeric")
	}
	p := orb.Point{lng, lat}
	if !finitePoint(p) {
		return orb.Point{}, invalid("non-finite position [%v, %v]", lng, lat)
	}
	return p, nil
}

func validate(g orb.Geometry) error {
	var bad error
	empty := true
	Walk(g, func(p orb.Point) bool {
		empty = false
		if !finitePoint(p) {
			bad = invalid("non-finite position [%v, %v]", p[0], p[1])
			return false
		}
		return true
	})
	if bad != nil {
		return bad
	}
	if empty {
		return missing("empty " + g.GeoJSONType())
	}
	if poly, ok := g.(orb.Polygon); ok && len(poly[0]) == 0 {
		return missing("empty outer ring")
	}
	return nil
}

func finitePoint(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsInf(p[0], 0) && !math.IsNaN(p[1]) && !math.IsInf(p[1], 0)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asSlice normalizes decoded JSON arrays and typed Go slices to []any.
func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []float64:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out, true
	case nil:
		return nil, false
	}
	b, err := json.Marshal(v)
	if err != nil || len(b) == 0 || b[0] != '[' {
		return nil, false
	}
	var out []any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false
	}
	return out, true
}

func isArray(v any) bool {
	switch v.(type) {
	case []any, []float64, [][]float64, [][][]float64, [][][][]float64:
		return true
	}
	return false
}

func isGeometryType(t string) bool {
	switch t {
	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection":
		return true
	}
	return false
}

func isSupportedType(t string) bool {
	switch t {
	case "Point", "LineString", "Polygon", "MultiPolygon":
		return true
	}
	return false
}

func jsonKind(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
