// Package mapper converts between coordinates and H3 cells.
package mapper

import (
	"github.com/mohammed-shakir/campus-geo/internal/core/model"
)

type Interface interface {
	CellFor(c model.Coord, res int) (string, error)
	CellsWithinKm(origin model.Coord, km float64, res int) (model.Cells, error)
}
