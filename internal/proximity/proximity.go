// Package proximity ranks stored entities nearest-first from an origin.
package proximity

import (
	"math"
	"sort"

	"github.com/mohammed-shakir/campus-geo/internal/centroid"
	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/geometry"
)

const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometres.
func Haversine(a, b model.Coord) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push h just outside [0,1] for near-antipodal pairs
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Rank resolves every entity with the vertex centroid and orders the results.
func Rank(origin *model.Coord, entities []model.Entity) []model.SearchResult {
	return RankWith(centroid.Vertex, origin, entities)
}

func RankWith(strategy centroid.Strategy, origin *model.Coord, entities []model.Entity) []model.SearchResult {
	return Order(origin, Resolve(strategy, entities))
}

// Resolve decodes each entity's coordinate source and attaches its centroid.
// Entities that fail to decode are kept with a nil Centroid.
func Resolve(strategy centroid.Strategy, entities []model.Entity) []model.SearchResult {
	out := make([]model.SearchResult, len(entities))
	for i, e := range entities {
		out[i] = model.SearchResult{ID: e.ID, Name: e.Name, Kind: e.Kind, Category: e.Category}
		g, err := geometry.Decode(e.Source)
		if err != nil {
			continue
		}
		if c, ok := strategy.Of(g); ok {
			out[i].Centroid = &c
		}
	}
	return out
}

// Order returns a new slice with DistanceKm filled in from origin, located
// results ascending by distance and unlocated results after them. Both groups
// keep input order on ties. A nil origin leaves distances unset and keeps
// input order.
func Order(origin *model.Coord, results []model.SearchResult) []model.SearchResult {
	out := make([]model.SearchResult, len(results))
	copy(out, results)
	if origin == nil {
		for i := range out {
			out[i].DistanceKm = nil
		}
		return out
	}
	for i := range out {
		out[i].DistanceKm = nil
		if out[i].Centroid == nil {
			continue
		}
		d := Haversine(*origin, *out[i].Centroid)
		out[i].DistanceKm = &d
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].DistanceKm, out[j].DistanceKm
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return *di < *dj
		}
	})
	return out
}
