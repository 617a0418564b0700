package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/campus-geo/internal/bounds"
	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/importer"
	"github.com/mohammed-shakir/campus-geo/internal/logger"
	"github.com/mohammed-shakir/campus-geo/internal/proximity"
	"github.com/mohammed-shakir/campus-geo/internal/search"
)

type handlers struct {
	d Deps
}

type emptyBox struct {
	Empty bool `json:"empty"`
}

func scopeParam(r *http.Request) model.ScopeID {
	return model.ScopeID(strings.TrimSpace(chi.URLParam(r, "scope")))
}

func (h *handlers) listScopes(w http.ResponseWriter, r *http.Request) {
	ids, err := h.d.Scopes.Scopes(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []model.ScopeID{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"scopes": ids})
}

func (h *handlers) createScope(w http.ResponseWriter, r *http.Request) {
	scope := scopeParam(r)
	if scope == "" {
		h.fail(w, r, fmt.Errorf("%w: scope is required", errBadRequest))
		return
	}
	if err := h.d.Scopes.CreateScope(r.Context(), scope); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"scope": scope})
}

func (h *handlers) importCollection(w http.ResponseWriter, r *http.Request) {
	scope := scopeParam(r)
	kind, err := model.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	q := r.URL.Query()
	policy, err := importer.ParseNamePolicy(q.Get("missingName"), q.Get("labelPrefix"), kind)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.d.MaxBodyBytes))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: read body: %w", errBadRequest, err))
		return
	}

	rep, err := h.d.Importer.Run(r.Context(), payload, scope, kind, h.d.Sink, importer.WithNamePolicy(policy))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if rep.Imported > 0 {
		h.d.Search.Invalidate(scope, kind)
		if h.d.Events != nil && !h.d.Events.PublishImport(scope, kind, rep.ImportedSlugs()) {
			ctx := logger.WithKind(logger.WithScope(r.Context(), string(scope)), string(kind))
			h.d.Log.WarnContext(ctx, "import event not published")
		}
	}
	h.writeJSON(w, r, http.StatusOK, rep)
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	results, err := h.d.Search.Search(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"results": results})
}

func parseSearchQuery(r *http.Request) (search.Query, error) {
	v := r.URL.Query()
	q := search.Query{Scope: scopeParam(r), Text: v.Get("q")}

	kinds, err := model.ParseKinds(v.Get("kinds"))
	if err != nil {
		return q, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	q.Kinds = kinds

	lat, hasLat, err := floatParam(v.Get("lat"))
	if err != nil {
		return q, fmt.Errorf("%w: lat: %v", errBadRequest, err)
	}
	lng, hasLng, err := floatParam(v.Get("lng"))
	if err != nil {
		return q, fmt.Errorf("%w: lng: %v", errBadRequest, err)
	}
	switch {
	case hasLat && hasLng:
		q.Origin = &model.Coord{Lng: lng, Lat: lat}
	case hasLat || hasLng:
		return q, fmt.Errorf("%w: lat and lng must be given together", errBadRequest)
	}

	if q.RadiusKm, _, err = floatParam(v.Get("radiusKm")); err != nil {
		return q, fmt.Errorf("%w: radiusKm: %v", errBadRequest, err)
	}
	if s := strings.TrimSpace(v.Get("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest)
		}
		q.Limit = n
	}
	return q, nil
}

func floatParam(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse float: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%q is not finite", s)
	}
	return f, true, nil
}

func (h *handlers) scopeBounds(w http.ResponseWriter, r *http.Request) {
	kinds, err := model.ParseKinds(r.URL.Query().Get("kinds"))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	box, ok, err := h.d.Search.Bounds(r.Context(), scopeParam(r), kinds)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeBox(w, box, ok)
}

type rankRequest struct {
	Origin   *model.Coord   `json:"origin"`
	Entities []model.Entity `json:"entities"`
}

func (h *handlers) rank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	results := proximity.RankWith(h.d.Search.Strategy(), req.Origin, req.Entities)
	h.writeJSON(w, r, http.StatusOK, map[string]any{"results": results})
}

type boundsRequest struct {
	Geometries []any `json:"geometries"`
}

func (h *handlers) bounds(w http.ResponseWriter, r *http.Request) {
	var req boundsRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	box, ok := bounds.Aggregate(req.Geometries)
	writeBox(w, box, ok)
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.d.MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func writeBox(w http.ResponseWriter, box model.BoundingBox, ok bool) {
	if !ok {
		h.writeJSON(w, r, http.StatusOK, emptyBox{Empty: true})
		return
	}
	h.writeJSON(w, r, http.StatusOK, box)
}
