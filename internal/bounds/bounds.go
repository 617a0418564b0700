// Package bounds folds geometries into a viewport bounding box.
package bounds

import (
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/geometry"
)

// Extend widens box to cover every position of g. A nil box starts at g's first
// position. Extend never mutates *box.
func Extend(box *model.BoundingBox, g orb.Geometry) model.BoundingBox {
	var b orb.Bound
	started := false
	if box != nil {
		b = toBound(*box)
		started = true
	}
	geometry.Walk(g, func(p orb.Point) bool {
		if !started {
			b = orb.Bound{Min: p, Max: p}
			started = true
			return true
		}
		b = b.Extend(p)
		return true
	})
	return fromBound(b)
}

// Aggregate decodes every source and folds the results. ok is false when
// sources is empty or nothing decoded; callers fall back to a default viewport.
func Aggregate(sources []any) (model.BoundingBox, bool) {
	gs := make([]orb.Geometry, 0, len(sources))
	for _, src := range sources {
		g, err := geometry.Decode(src)
		if err != nil {
			continue
		}
		gs = append(gs, g)
	}
	return Geometries(gs)
}

// Geometries folds already decoded geometries.
func Geometries(gs []orb.Geometry) (model.BoundingBox, bool) {
	var box *model.BoundingBox
	for _, g := range gs {
		if _, has := geometry.First(g); !has {
			continue
		}
		next := Extend(box, g)
		box = &next
	}
	if box == nil {
		return model.BoundingBox{}, false
	}
	return *box, true
}

// Merge returns the smallest box covering every box in bs.
func Merge(bs ...model.BoundingBox) (model.BoundingBox, bool) {
	if len(bs) == 0 {
		return model.BoundingBox{}, false
	}
	b := toBound(bs[0])
	for _, next := range bs[1:] {
		b = b.Union(toBound(next))
	}
	return fromBound(b), true
}

func toBound(b model.BoundingBox) orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLng, b.MinLat}, Max: orb.Point{b.MaxLng, b.MaxLat}}
}

func fromBound(b orb.Bound) model.BoundingBox {
	return model.BoundingBox{MinLng: b.Min[0], MinLat: b.Min[1], MaxLng: b.Max[0], MaxLat: b.Max[1]}
}
