// Package search answers proximity and bounds queries over stored campus
// entities. Per (scope, kind) catalogs with resolved centroids are cached in
// an LRU and dropped by Invalidate after imports.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/campus-geo/internal/bounds"
	"github.com/mohammed-shakir/campus-geo/internal/cache/entitystore"
	"github.com/mohammed-shakir/campus-geo/internal/centroid"
	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/core/observability"
	"github.com/mohammed-shakir/campus-geo/internal/geometry"
	"github.com/mohammed-shakir/campus-geo/internal/logger"
	"github.com/mohammed-shakir/campus-geo/internal/proximity"
)

var (
	ErrScopeNotFound = errors.New("scope not found")
	ErrInvalidQuery  = errors.New("invalid query")
)

// Store is the read side of the entity store.
type Store interface {
	ScopeExists(ctx context.Context, scope model.ScopeID) (bool, error)
	List(ctx context.Context, scope model.ScopeID, kind model.Kind) ([]entitystore.Document, error)
	Get(ctx context.Context, scope model.ScopeID, kind model.Kind, ids []string) ([]entitystore.Document, error)
	Nearby(ctx context.Context, scope model.ScopeID, kind model.Kind, origin model.Coord, km float64) ([]string, error)
}

type Config struct {
	CacheSize    int
	DefaultLimit int
	MaxLimit     int
	Centroid     centroid.Strategy
}

type Query struct {
	Scope model.ScopeID
	// Kinds defaults to model.AllKinds.
	Kinds []model.Kind
	// Text matches name or category, case-insensitively.
	Text   string
	Origin *model.Coord
	// RadiusKm > 0 drops results farther than RadiusKm from Origin, and
	// results without a centroid.
	RadiusKm float64
	Limit    int
}

type catalogKey struct {
	scope model.ScopeID
	kind  model.Kind
}

type catalog struct {
	results []model.SearchResult
	box     model.BoundingBox
	hasBox  bool
}

type Service struct {
	store Store
	cache *lru.Cache[catalogKey, *catalog]
	cfg   Config
	log   *slog.Logger
}

func New(store Store, cfg Config, log *slog.Logger) (*Service, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = max(cfg.DefaultLimit, 200)
	}
	if cfg.Centroid == "" {
		cfg.Centroid = centroid.Vertex
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	c, err := lru.New[catalogKey, *catalog](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("search catalog cache: %w", err)
	}
	return &Service{store: store, cache: c, cfg: cfg, log: log}, nil
}

// Strategy is the centroid strategy results are resolved with.
func (s *Service) Strategy() centroid.Strategy { return s.cfg.Centroid }

// Invalidate drops the cached catalog of (scope, kind).
func (s *Service) Invalidate(scope model.ScopeID, kind model.Kind) {
	if s.cache.Remove(catalogKey{scope, kind}) {
		s.log.Debug("catalog dropped", "scope", scope, "kind", kind)
	}
}

func (s *Service) Search(ctx context.Context, q Query) ([]model.SearchResult, error) {
	start := time.Now()
	ctx = logger.WithComponent(logger.WithScope(ctx, string(q.Scope)), "search")

	q, err := s.normalize(q)
	if err != nil {
		return nil, err
	}
	if err := s.checkScope(ctx, q.Scope); err != nil {
		return nil, err
	}

	var pool []model.SearchResult
	for _, kind := range q.Kinds {
		rs, err := s.candidates(ctx, q, kind)
		if err != nil {
			return nil, err
		}
		pool = append(pool, matchText(rs, q.Text)...)
	}

	ranked := proximity.Order(q.Origin, pool)
	if q.RadiusKm > 0 {
		kept := ranked[:0]
		for _, r := range ranked {
			if r.DistanceKm != nil && *r.DistanceKm <= q.RadiusKm {
				kept = append(kept, r)
			}
		}
		ranked = kept
	}
	if len(ranked) > q.Limit {
		ranked = ranked[:q.Limit]
	}

	dur := time.Since(start)
	observability.ObserveSearch("search", len(ranked), dur.Seconds())
	s.log.DebugContext(ctx, "search served", "kinds", len(q.Kinds), "results", len(ranked), "duration", dur)
	return ranked, nil
}

// Bounds covers every stored entity of the given kinds. ok is false when no
// entity has usable coordinates.
func (s *Service) Bounds(ctx context.Context, scope model.ScopeID, kinds []model.Kind) (model.BoundingBox, bool, error) {
	start := time.Now()
	if len(kinds) == 0 {
		kinds = model.AllKinds
	}
	if err := s.checkScope(ctx, scope); err != nil {
		return model.BoundingBox{}, false, err
	}
	var boxes []model.BoundingBox
	for _, kind := range kinds {
		cat, err := s.catalog(ctx, scope, kind)
		if err != nil {
			return model.BoundingBox{}, false, err
		}
		if cat.hasBox {
			boxes = append(boxes, cat.box)
		}
	}
	box, ok := bounds.Merge(boxes...)
	observability.ObserveSearch("bounds", 0, time.Since(start).Seconds())
	return box, ok, nil
}

func (s *Service) normalize(q Query) (Query, error) {
	q.Scope = model.ScopeID(strings.TrimSpace(string(q.Scope)))
	if q.Scope == "" {
		return q, fmt.Errorf("%w: scope is required", ErrInvalidQuery)
	}
	if len(q.Kinds) == 0 {
		q.Kinds = model.AllKinds
	}
	q.Text = strings.ToLower(strings.TrimSpace(q.Text))
	if o := q.Origin; o != nil {
		if math.IsNaN(o.Lat) || math.IsNaN(o.Lng) || math.Abs(o.Lat) > 90 || math.Abs(o.Lng) > 180 {
			return q, fmt.Errorf("%w: origin %s out of range", ErrInvalidQuery, o)
		}
	}
	if math.IsNaN(q.RadiusKm) || q.RadiusKm < 0 {
		return q, fmt.Errorf("%w: radius must be a non-negative number", ErrInvalidQuery)
	}
	if q.RadiusKm > 0 && q.Origin == nil {
		return q, fmt.Errorf("%w: radius requires an origin", ErrInvalidQuery)
	}
	switch {
	case q.Limit <= 0:
		q.Limit = s.cfg.DefaultLimit
	case q.Limit > s.cfg.MaxLimit:
		q.Limit = s.cfg.MaxLimit
	}
	return q, nil
}

func (s *Service) checkScope(ctx context.Context, scope model.ScopeID) error {
	ok, err := s.store.ScopeExists(ctx, scope)
	if err != nil {
		return fmt.Errorf("scope %s lookup: %w", scope, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrScopeNotFound, scope)
	}
	return nil
}

// candidates serves from a cached catalog when there is one. On a miss a
// radius query goes through the cell index instead of loading the whole
// catalog; an oversized radius or index failure falls back to the catalog.
func (s *Service) candidates(ctx context.Context, q Query, kind model.Kind) ([]model.SearchResult, error) {
	key := catalogKey{q.Scope, kind}
	if cat, ok := s.cache.Get(key); ok {
		observability.IncCatalogHit()
		return cat.results, nil
	}
	if q.RadiusKm > 0 {
		rs, err := s.nearby(ctx, q.Scope, kind, *q.Origin, q.RadiusKm)
		if err == nil {
			return rs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.DebugContext(ctx, "cell prefilter unavailable, scanning catalog", "kind", kind, "err", err)
	}
	cat, err := s.catalog(ctx, q.Scope, kind)
	if err != nil {
		return nil, err
	}
	return cat.results, nil
}

func (s *Service) nearby(ctx context.Context, scope model.ScopeID, kind model.Kind, origin model.Coord, km float64) ([]model.SearchResult, error) {
	ids, err := s.store.Nearby(ctx, scope, kind, origin, km)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.Get(ctx, scope, kind, ids)
	if err != nil {
		return nil, err
	}
	return build(s.cfg.Centroid, docs).results, nil
}

func (s *Service) catalog(ctx context.Context, scope model.ScopeID, kind model.Kind) (*catalog, error) {
	key := catalogKey{scope, kind}
	if cat, ok := s.cache.Get(key); ok {
		observability.IncCatalogHit()
		return cat, nil
	}
	observability.IncCatalogMiss()
	docs, err := s.store.List(ctx, scope, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s catalog: %w", scope, kind, err)
	}
	cat := build(s.cfg.Centroid, docs)
	s.cache.Add(key, cat)
	s.log.DebugContext(ctx, "catalog loaded", "kind", kind, "entities", len(docs))
	return cat, nil
}

func build(strategy centroid.Strategy, docs []entitystore.Document) *catalog {
	entities := make([]model.Entity, len(docs))
	for i, d := range docs {
		entities[i] = d.Entity()
	}
	cat := &catalog{results: proximity.Resolve(strategy, entities)}

	gs := make([]orb.Geometry, 0, len(docs))
	for _, e := range entities {
		if g, err := geometry.Decode(e.Source); err == nil {
			gs = append(gs, g)
		}
	}
	cat.box, cat.hasBox = bounds.Geometries(gs)
	return cat
}

func matchText(rs []model.SearchResult, text string) []model.SearchResult {
	if text == "" {
		return rs
	}
	var out []model.SearchResult
	for _, r := range rs {
		if strings.Contains(strings.ToLower(r.Name), text) || strings.Contains(strings.ToLower(r.Category), text) {
			out = append(out, r)
		}
	}
	return out
}
