package h3mapper

import (
	"errors"
	"fmt"
	"math"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
)

// ErrRadiusTooLarge means the grid disk would exceed MaxRings at the requested
// resolution; callers scan without a cell prefilter instead.
var ErrRadiusTooLarge = errors.New("radius too large for cell prefilter")

// MaxRings bounds the grid disk size (3k(k+1)+1 cells).
const MaxRings = 40

// average hexagon edge length in km per resolution
var edgeKm = [16]float64{
	1281.256011, 483.0568391, 182.5129565, 68.97922179,
	26.07175968, 9.854090990, 3.724532667, 1.406475763,
	0.531414010, 0.200786148, 0.075863783, 0.028663897,
	0.010830188, 0.004092010, 0.001546100, 0.000584169,
}

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

func (m *Mapper) CellFor(c model.Coord, res int) (string, error) {
	cell, err := cellFor(c, res)
	if err != nil {
		return "", err
	}
	return cell.String(), nil
}

func cellFor(c model.Coord, res int) (h3.Cell, error) {
	if err := validateRes(res); err != nil {
		return 0, err
	}
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.Abs(c.Lat) > 90 {
		return 0, fmt.Errorf("invalid position %s", c)
	}
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: c.Lat, Lng: c.Lng}, res)
	if err != nil {
		return 0, fmt.Errorf("h3 cell for %s: %w", c, err)
	}
	return cell, nil
}

// CellsWithinKm returns a sorted superset of the cells whose centers lie within
// km of origin.
func (m *Mapper) CellsWithinKm(origin model.Coord, km float64, res int) (model.Cells, error) {
	if km < 0 || math.IsNaN(km) {
		return nil, fmt.Errorf("invalid radius %v", km)
	}
	k, err := RingsFor(km, res)
	if err != nil {
		return nil, err
	}
	center, err := cellFor(origin, res)
	if err != nil {
		return nil, err
	}
	disk, err := center.GridDisk(k)
	if err != nil {
		return nil, fmt.Errorf("h3 grid disk k=%d: %w", k, err)
	}

	out := make([]string, 0, len(disk))
	seen := make(map[string]struct{}, len(disk))
	for _, idx := range disk {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// RingsFor is the grid disk radius that covers km at res. Edges are taken at
// half the average length to absorb pentagon and projection distortion.
func RingsFor(km float64, res int) (int, error) {
	if err := validateRes(res); err != nil {
		return 0, err
	}
	step := 1.5 * edgeKm[res] * 0.5
	k := int(math.Ceil(km/step)) + 1
	if k > MaxRings {
		return 0, fmt.Errorf("%w: %.3fkm needs %d rings at res %d", ErrRadiusTooLarge, km, k, res)
	}
	return k, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
