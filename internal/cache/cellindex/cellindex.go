// Package cellindex maps H3 cells to the entity slugs whose centroid falls in
// them, so radius searches only read nearby entities.
package cellindex

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/mohammed-shakir/campus-geo/internal/cache/keys"
	"github.com/mohammed-shakir/campus-geo/internal/cache/redisstore"
	"github.com/mohammed-shakir/campus-geo/internal/core/model"
)

type CellIndex interface {
	// Stage queues the membership write on p so it commits with the entity.
	Stage(ctx context.Context, p redis.Pipeliner, scope model.ScopeID, kind model.Kind, res int, cell, slug string)
	// Lookup returns the sorted, unique slugs indexed under any of cells.
	Lookup(ctx context.Context, scope model.ScopeID, kind model.Kind, res int, cells []string) ([]string, error)
}

type redisCellIndex struct {
	cli *redisstore.Client
}

func NewRedisIndex(cli *redisstore.Client) CellIndex {
	return &redisCellIndex{cli: cli}
}

func (ci *redisCellIndex) Stage(
	ctx context.Context,
	p redis.Pipeliner,
	scope model.ScopeID,
	kind model.Kind,
	res int,
	cell, slug string,
) {
	if cell == "" || slug == "" {
		return
	}
	p.SAdd(ctx, keys.Cell(scope, kind, res, cell), slug)
}

// SUNION batch size; keeps single commands bounded for wide grid disks
const lookupBatch = 512

func (ci *redisCellIndex) Lookup(
	ctx context.Context,
	scope model.ScopeID,
	kind model.Kind,
	res int,
	cells []string,
) ([]string, error) {
	if len(cells) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{})
	var out []string
	for chunk := range slices.Chunk(cells, lookupBatch) {
		ks := make([]string, len(chunk))
		for i, c := range chunk {
			ks[i] = keys.Cell(scope, kind, res, c)
		}
		ids, err := ci.cli.SUnion(ctx, ks...)
		if err != nil {
			return nil, fmt.Errorf("cellindex lookup %d cells: %w", len(chunk), err)
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}
