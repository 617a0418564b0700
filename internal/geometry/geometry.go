package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Walk calls fn for every position reachable from g (all rings of all polygons)
// until fn returns false.
func Walk(g orb.Geometry, fn func(orb.Point) bool) {
	switch t := g.(type) {
	case orb.Point:
		fn(t)
	case orb.LineString:
		walkPoints(t, fn)
	case orb.Ring:
		walkPoints(t, fn)
	case orb.Polygon:
		for _, r := range t {
			if !walkPoints(r, fn) {
				return
			}
		}
	case orb.MultiPolygon:
		for _, poly := range t {
			for _, r := range poly {
				if !walkPoints(r, fn) {
					return
				}
			}
		}
	}
}

func walkPoints(pts []orb.Point, fn func(orb.Point) bool) bool {
	for _, p := range pts {
		if !fn(p) {
			return false
		}
	}
	return true
}

// First returns the first position of g in walk order.
func First(g orb.Geometry) (orb.Point, bool) {
	var (
		first orb.Point
		found bool
	)
	Walk(g, func(p orb.Point) bool {
		first, found = p, true
		return false
	})
	return first, found
}

// Encode serializes a canonical geometry as a GeoJSON geometry object.
func Encode(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return []byte("null"), nil
	}
	b, err := json.Marshal(geojson.NewGeometry(g))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", g.GeoJSONType(), err)
	}
	return b, nil
}
