// Package entitystore persists imported campus entities in Redis and answers
// the scope, fingerprint and slug lookups of the import pipeline.
package entitystore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammed-shakir/campus-geo/internal/cache/cellindex"
	"github.com/mohammed-shakir/campus-geo/internal/cache/keys"
	"github.com/mohammed-shakir/campus-geo/internal/cache/redisstore"
	"github.com/mohammed-shakir/campus-geo/internal/centroid"
	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/geometry"
	"github.com/mohammed-shakir/campus-geo/internal/importer"
	"github.com/mohammed-shakir/campus-geo/internal/mapper"
)

// Document is the stored form of one entity. ID is the slug.
type Document struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Kind        model.Kind      `json:"kind"`
	Scope       model.ScopeID   `json:"scope"`
	Category    string          `json:"category,omitempty"`
	FID         string          `json:"fid,omitempty"`
	Fingerprint string          `json:"fingerprint"`
	Geometry    json.RawMessage `json:"geometry"`
	Centroid    *model.Coord    `json:"centroid,omitempty"`
	Cell        string          `json:"cell,omitempty"`
	Properties  map[string]any  `json:"properties,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Entity is the search view of d; the stored GeoJSON is the coordinate source.
func (d Document) Entity() model.Entity {
	return model.Entity{ID: d.ID, Name: d.Name, Kind: d.Kind, Category: d.Category, Source: d.Geometry}
}

type Config struct {
	// H3Res is the resolution entities are indexed at; negative disables the
	// cell index.
	H3Res    int
	Centroid centroid.Strategy
}

type Store struct {
	cli    *redisstore.Client
	cells  cellindex.CellIndex
	mapper mapper.Interface
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

var _ importer.Store = (*Store)(nil)

func New(cli *redisstore.Client, cells cellindex.CellIndex, m mapper.Interface, cfg Config, log *slog.Logger) *Store {
	if cfg.Centroid == "" {
		cfg.Centroid = centroid.Vertex
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{cli: cli, cells: cells, mapper: m, cfg: cfg, log: log, now: time.Now}
}

func (s *Store) indexed() bool {
	return s.cells != nil && s.mapper != nil && s.cfg.H3Res >= 0
}

func (s *Store) Res() int { return s.cfg.H3Res }

func (s *Store) CreateScope(ctx context.Context, scope model.ScopeID) error {
	id := strings.TrimSpace(string(scope))
	if id == "" {
		return fmt.Errorf("entitystore: empty scope id")
	}
	if err := s.cli.SAdd(ctx, keys.Scopes(), id); err != nil {
		return fmt.Errorf("entitystore create scope %q: %w", id, err)
	}
	return nil
}

func (s *Store) ScopeExists(ctx context.Context, scope model.ScopeID) (bool, error) {
	ok, err := s.cli.SIsMember(ctx, keys.Scopes(), strings.TrimSpace(string(scope)))
	if err != nil {
		return false, fmt.Errorf("entitystore scope %q: %w", scope, err)
	}
	return ok, nil
}

func (s *Store) Scopes(ctx context.Context) ([]model.ScopeID, error) {
	ids, err := s.cli.SMembers(ctx, keys.Scopes())
	if err != nil {
		return nil, fmt.Errorf("entitystore scopes: %w", err)
	}
	slices.Sort(ids)
	out := make([]model.ScopeID, len(ids))
	for i, id := range ids {
		out[i] = model.ScopeID(id)
	}
	return out, nil
}

func (s *Store) FingerprintExists(ctx context.Context, scope model.ScopeID, kind model.Kind, fp string) (bool, error) {
	ok, err := s.cli.SIsMember(ctx, keys.Fingerprints(scope, kind), fp)
	if err != nil {
		return false, fmt.Errorf("entitystore fingerprint: %w", err)
	}
	return ok, nil
}

func (s *Store) SlugExists(ctx context.Context, scope model.ScopeID, kind model.Kind, slug string) (bool, error) {
	ok, err := s.cli.SIsMember(ctx, keys.Slugs(scope, kind), slug)
	if err != nil {
		return false, fmt.Errorf("entitystore slug: %w", err)
	}
	return ok, nil
}

// Put writes rec and its fingerprint, slug and cell memberships atomically.
// It has the importer.Sink signature.
func (s *Store) Put(ctx context.Context, rec importer.Record) error {
	geom, err := geometry.Encode(rec.Geometry)
	if err != nil {
		return err
	}
	doc := Document{
		ID:          rec.Slug,
		Name:        rec.Name,
		Kind:        rec.Kind,
		Scope:       rec.Scope,
		Category:    rec.Type,
		FID:         rec.FID,
		Fingerprint: rec.Fingerprint,
		Geometry:    geom,
		Properties:  rec.Properties,
		CreatedAt:   s.now().UTC(),
	}
	if c, ok := s.cfg.Centroid.Of(rec.Geometry); ok {
		doc.Centroid = &c
		if s.indexed() {
			cell, err := s.mapper.CellFor(c, s.cfg.H3Res)
			if err != nil {
				s.log.WarnContext(ctx, "entity not cell indexed", "slug", rec.Slug, "err", err)
			} else {
				doc.Cell = cell
			}
		}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("entitystore encode %q: %w", rec.Slug, err)
	}

	err = s.cli.Tx(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, keys.Fingerprints(rec.Scope, rec.Kind), rec.Fingerprint)
		p.SAdd(ctx, keys.Slugs(rec.Scope, rec.Kind), rec.Slug)
		p.Set(ctx, keys.Entity(rec.Scope, rec.Kind, rec.Slug), body, 0)
		p.SAdd(ctx, keys.Entities(rec.Scope, rec.Kind), rec.Slug)
		if doc.Cell != "" {
			s.cells.Stage(ctx, p, rec.Scope, rec.Kind, s.cfg.H3Res, doc.Cell, rec.Slug)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("entitystore put %q: %w", rec.Slug, err)
	}
	return nil
}

// List returns every document of (scope, kind) in import order.
func (s *Store) List(ctx context.Context, scope model.ScopeID, kind model.Kind) ([]Document, error) {
	ids, err := s.cli.SMembers(ctx, keys.Entities(scope, kind))
	if err != nil {
		return nil, fmt.Errorf("entitystore list: %w", err)
	}
	return s.Get(ctx, scope, kind, ids)
}

// Get loads the documents for ids; missing ids are skipped.
func (s *Store) Get(ctx context.Context, scope model.ScopeID, kind model.Kind, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ks := make([]string, len(ids))
	for i, id := range ids {
		ks[i] = keys.Entity(scope, kind, id)
	}
	raw, err := s.cli.MGet(ctx, ks)
	if err != nil {
		return nil, fmt.Errorf("entitystore get %d docs: %w", len(ids), err)
	}
	out := make([]Document, 0, len(raw))
	for _, k := range ks {
		b, ok := raw[k]
		if !ok {
			continue
		}
		var d Document
		if err := json.Unmarshal(b, &d); err != nil {
			s.log.WarnContext(ctx, "skipping undecodable entity", "key", k, "err", err)
			continue
		}
		out = append(out, d)
	}
	sortDocs(out)
	return out, nil
}

// Nearby returns the slugs indexed in cells within km of origin. It returns
// mapper errors (such as an oversized radius) unchanged so callers can fall
// back to a full scan.
func (s *Store) Nearby(ctx context.Context, scope model.ScopeID, kind model.Kind, origin model.Coord, km float64) ([]string, error) {
	if !s.indexed() {
		return nil, fmt.Errorf("entitystore: cell index disabled")
	}
	cells, err := s.mapper.CellsWithinKm(origin, km, s.cfg.H3Res)
	if err != nil {
		return nil, err
	}
	return s.cells.Lookup(ctx, scope, kind, s.cfg.H3Res, cells)
}

func sortDocs(ds []Document) {
	slices.SortStableFunc(ds, func(a, b Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
