// Package centroid reduces a canonical geometry to one representative point.
//
// The default Vertex strategy is the arithmetic mean of vertices: LineStrings
// average every vertex, Polygons average the outer ring only and MultiPolygons
// use the first polygon's outer ring. It is biased toward vertex-dense edges,
// which is the behavior existing map fits were tuned against. AreaWeighted is
// the geometric alternative.
package centroid

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
)

type Strategy string

const (
	Vertex       Strategy = "vertex"
	AreaWeighted Strategy = "area"
)

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vertex", "average":
		return Vertex, nil
	case "area", "area_weighted", "area-weighted":
		return AreaWeighted, nil
	default:
		return "", fmt.Errorf("unknown centroid strategy %q", s)
	}
}

// Of is the vertex-average centroid. ok is false when g has no vertices.
func Of(g orb.Geometry) (model.Coord, bool) {
	switch t := g.(type) {
	case orb.Point:
		return model.Coord{Lng: t[0], Lat: t[1]}, true
	case orb.LineString:
		return mean(t)
	case orb.Ring:
		return mean(t)
	case orb.Polygon:
		if len(t) == 0 {
			return model.Coord{}, false
		}
		return mean(t[0])
	case orb.MultiPolygon:
		if len(t) == 0 || len(t[0]) == 0 {
			return model.Coord{}, false
		}
		return mean(t[0][0])
	default:
		return model.Coord{}, false
	}
}

// Area returns the area-weighted centroid of polygonal geometries. Points,
// lines and zero-area polygons fall back to Of.
func Area(g orb.Geometry) (model.Coord, bool) {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		c, area := planar.CentroidArea(g)
		if area == 0 {
			return Of(g)
		}
		return model.Coord{Lng: c[0], Lat: c[1]}, true
	default:
		return Of(g)
	}
}

// Of dispatches on the strategy; unknown values use Vertex.
func (s Strategy) Of(g orb.Geometry) (model.Coord, bool) {
	if s == AreaWeighted {
		return Area(g)
	}
	return Of(g)
}

func mean(pts []orb.Point) (model.Coord, bool) {
	if len(pts) == 0 {
		return model.Coord{}, false
	}
	var sumLng, sumLat float64
	for _, p := range pts {
		sumLng += p[0]
		sumLat += p[1]
	}
	n := float64(len(pts))
	return model.Coord{Lng: sumLng / n, Lat: sumLat / n}, true
}
