// Package router maps the campus HTTP API onto the import pipeline and the
// search service.
package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/campus-geo/internal/centroid"
	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/importer"
	"github.com/mohammed-shakir/campus-geo/internal/search"
)

type Scopes interface {
	CreateScope(ctx context.Context, scope model.ScopeID) error
	Scopes(ctx context.Context) ([]model.ScopeID, error)
}

type Importer interface {
	Run(ctx context.Context, payload []byte, scope model.ScopeID, kind model.Kind, sink importer.Sink, opts ...importer.RunOption) (importer.Report, error)
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]model.SearchResult, error)
	Bounds(ctx context.Context, scope model.ScopeID, kinds []model.Kind) (model.BoundingBox, bool, error)
	Invalidate(scope model.ScopeID, kind model.Kind)
	Strategy() centroid.Strategy
}

// ImportNotifier tells other instances about a finished import.
type ImportNotifier interface {
	PublishImport(scope model.ScopeID, kind model.Kind, slugs []string) bool
}

type Deps struct {
	Log      *slog.Logger
	Scopes   Scopes
	Importer Importer
	Sink     importer.Sink
	Search   Searcher
	// Events may be nil.
	Events ImportNotifier
	// MaxBodyBytes caps import and rank bodies; 0 means 32 MiB.
	MaxBodyBytes int64
}

// Routes mounts the /v1 API on r.
func Routes(r chi.Router, d Deps) {
	if d.Log == nil {
		d.Log = slog.New(slog.DiscardHandler)
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 32 << 20
	}
	h := &handlers{d: d}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/scopes", h.listScopes)
		r.Put("/scopes/{scope}", h.createScope)
		r.Post("/scopes/{scope}/imports/{kind}", h.importCollection)
		r.Get("/scopes/{scope}/search", h.search)
		r.Get("/scopes/{scope}/bounds", h.scopeBounds)
		r.Post("/rank", h.rank)
		r.Post("/bounds", h.bounds)
	})
}

// Handler is Routes on a fresh chi router.
func Handler(d Deps) http.Handler {
	r := chi.NewRouter()
	Routes(r, d)
	return r
}
