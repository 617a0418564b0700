// Package importer turns an uploaded GeoJSON FeatureCollection into campus
// entities. Each feature is classified as imported, duplicate or error; only a
// malformed collection or an unknown scope fails the whole run.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
	"github.com/mohammed-shakir/campus-geo/internal/core/observability"
	"github.com/mohammed-shakir/campus-geo/internal/geometry"
	"github.com/mohammed-shakir/campus-geo/internal/logger"
	"github.com/mohammed-shakir/campus-geo/internal/slug"
)

var ErrScopeNotFound = errors.New("scope not found")

const (
	unknownName       = "Unknown"
	reasonMissingName = "Missing name"
	reasonBadFeature  = "invalid feature"
)

// Store answers the lookups the pipeline needs. Fingerprints and slugs are
// namespaced by (scope, kind).
type Store interface {
	ScopeExists(ctx context.Context, scope model.ScopeID) (bool, error)
	FingerprintExists(ctx context.Context, scope model.ScopeID, kind model.Kind, fp string) (bool, error)
	SlugExists(ctx context.Context, scope model.ScopeID, kind model.Kind, slug string) (bool, error)
}

// Record is handed to the sink for every accepted feature.
type Record struct {
	Name        string
	Slug        string
	Scope       model.ScopeID
	Kind        model.Kind
	Geometry    orb.Geometry
	Fingerprint string
	FID         string
	Type        string
	Properties  map[string]any
}

// Sink writes one record. It may be called from several goroutines when
// Config.Workers > 1.
type Sink func(ctx context.Context, rec Record) error

// SinkError wraps a failed or panicking sink call.
type SinkError struct {
	Slug string
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("write %q: %v", e.Slug, e.Err) }

func (e *SinkError) Unwrap() error { return e.Err }

type Config struct {
	// Workers bounds concurrent sink calls; values below 1 mean 1. With one
	// worker a failed write frees its fingerprint and slug for the rest of the
	// batch; with more, reservations hold because writes trail classification.
	Workers int
	// FingerprintPrecision is the decimal precision of fingerprints; 0 means
	// geometry.DefaultPrecision.
	FingerprintPrecision int
	// MaxFeatures rejects larger collections; 0 disables the limit.
	MaxFeatures int
}

type Pipeline struct {
	store Store
	cfg   Config
	log   *slog.Logger
}

func New(store Store, cfg Config, log *slog.Logger) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FingerprintPrecision <= 0 {
		cfg.FingerprintPrecision = geometry.DefaultPrecision
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{store: store, cfg: cfg, log: log}
}

type runOptions struct {
	policy *NamePolicy
}

type RunOption func(*runOptions)

// WithNamePolicy overrides DefaultNamePolicy(kind) for one run.
func WithNamePolicy(p NamePolicy) RunOption {
	return func(o *runOptions) { o.policy = &p }
}

// Run validates payload, checks scope once and classifies every feature in
// input order. The returned error is a *ValidationError, ErrScopeNotFound, a
// scope lookup failure or the context error; a non-nil error never comes with
// a partial report.
func (p *Pipeline) Run(ctx context.Context, payload []byte, scope model.ScopeID, kind model.Kind, sink Sink, opts ...RunOption) (Report, error) {
	start := time.Now()
	ctx = logger.WithComponent(logger.WithKind(logger.WithScope(ctx, string(scope)), string(kind)), "importer")

	rep, err := p.run(ctx, payload, scope, kind, sink, opts)
	dur := time.Since(start)
	if err != nil {
		observability.ObserveImport(string(kind), abortReason(err), 0, 0, 0, dur.Seconds())
		p.log.WarnContext(ctx, "import aborted", "err", err, "duration", dur)
		return Report{}, err
	}
	observability.ObserveImport(string(kind), "ok", rep.Imported, rep.Duplicates, rep.Errors, dur.Seconds())
	p.log.InfoContext(ctx, "import finished",
		"total", rep.Total,
		"imported", rep.Imported,
		"duplicates", rep.Duplicates,
		"errors", rep.Errors,
		"duration", dur,
	)
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, payload []byte, scope model.ScopeID, kind model.Kind, sink Sink, opts []RunOption) (Report, error) {
	if sink == nil {
		return Report{}, errors.New("importer: nil sink")
	}
	ro := runOptions{}
	for _, o := range opts {
		o(&ro)
	}
	policy := DefaultNamePolicy(kind)
	if ro.policy != nil {
		policy = *ro.policy
	}

	fc, err := ParseCollection(payload)
	if err != nil {
		return Report{}, err
	}
	if p.cfg.MaxFeatures > 0 && len(fc.Features) > p.cfg.MaxFeatures {
		return Report{}, &ValidationError{Reason: fmt.Sprintf("collection has %d features, limit is %d", len(fc.Features), p.cfg.MaxFeatures)}
	}

	ok, err := p.store.ScopeExists(ctx, scope)
	if err != nil {
		return Report{}, fmt.Errorf("scope %s lookup: %w", scope, err)
	}
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrScopeNotFound, scope)
	}

	b := &batch{
		p:       p,
		scope:   scope,
		kind:    kind,
		policy:  policy,
		seenFP:  make(map[string]struct{}, len(fc.Features)),
		seenSlg: make(map[string]struct{}, len(fc.Features)),
	}
	outcomes := make([]Outcome, len(fc.Features))

	if p.cfg.Workers == 1 {
		return b.runSequential(ctx, fc.Features, outcomes, sink)
	}

	jobs := make(chan sinkJob, p.cfg.Workers*2)
	var wg sync.WaitGroup
	wg.Add(p.cfg.Workers)
	for range p.cfg.Workers {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := callSink(ctx, sink, j.rec); err != nil {
					outcomes[j.index] = Outcome{
						Index:  j.index,
						Status: StatusError,
						Name:   j.rec.Name,
						Reason: err.Error(),
						Err:    err,
					}
					p.log.DebugContext(ctx, "sink failed", "index", j.index, "slug", j.rec.Slug, "err", err)
				}
			}
		}()
	}

	var abort error
	for i, raw := range fc.Features {
		out, rec, err := b.classify(ctx, i, raw)
		if err != nil {
			abort = err
			break
		}
		outcomes[i] = out
		if rec != nil {
			jobs <- sinkJob{index: i, rec: *rec}
		}
	}
	close(jobs)
	wg.Wait()

	if abort != nil {
		return Report{}, abort
	}
	return newReport(outcomes), nil
}

type sinkJob struct {
	index int
	rec   Record
}

// runSequential writes each record before classifying the next feature, so a
// failed write releases its fingerprint and slug for later features.
func (b *batch) runSequential(ctx context.Context, features []json.RawMessage, outcomes []Outcome, sink Sink) (Report, error) {
	for i, raw := range features {
		out, rec, err := b.classify(ctx, i, raw)
		if err != nil {
			return Report{}, err
		}
		if rec != nil {
			if err := callSink(ctx, sink, *rec); err != nil {
				delete(b.seenFP, rec.Fingerprint)
				delete(b.seenSlg, rec.Slug)
				out = Outcome{Index: i, Status: StatusError, Name: rec.Name, Reason: err.Error(), Err: err}
				b.p.log.DebugContext(ctx, "sink failed", "index", i, "slug", rec.Slug, "err", err)
			}
		}
		outcomes[i] = out
	}
	return newReport(outcomes), nil
}

// batch holds per-run state; only the classifying goroutine touches it.
type batch struct {
	p       *Pipeline
	scope   model.ScopeID
	kind    model.Kind
	policy  NamePolicy
	seenFP  map[string]struct{}
	seenSlg map[string]struct{}
}

// classify returns the outcome for feature i and, for accepted features, the
// record to write. A non-nil error aborts the run (context done).
func (b *batch) classify(ctx context.Context, i int, raw json.RawMessage) (Outcome, *Record, error) {
	fail := func(name, reason string, err error) (Outcome, *Record, error) {
		return Outcome{Index: i, Status: StatusError, Name: name, Reason: reason, Err: err}, nil, nil
	}

	f, err := parseFeature(i, raw)
	if err != nil {
		return fail(unknownName, reasonBadFeature, err)
	}

	name := f.Name
	if name == "" {
		label, ok := b.policy.label(i)
		if !ok {
			return fail(unknownName, reasonMissingName, nil)
		}
		name = label
	}

	g, err := geometry.Decode(f.Geometry)
	if err != nil {
		return fail(name, err.Error(), err)
	}
	fp := geometry.FingerprintWithPrecision(g, b.p.cfg.FingerprintPrecision)

	if _, dup := b.seenFP[fp]; dup {
		return Outcome{Index: i, Status: StatusDuplicate, Name: name, Fingerprint: fp}, nil, nil
	}
	dup, err := b.p.store.FingerprintExists(ctx, b.scope, b.kind, fp)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, nil, ctx.Err()
		}
		return fail(name, "fingerprint lookup: "+err.Error(), err)
	}
	if dup {
		return Outcome{Index: i, Status: StatusDuplicate, Name: name, Fingerprint: fp}, nil, nil
	}

	s, err := slug.Allocate(ctx, b.slugSource(name, i), b.scope, b.slugTaken)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, nil, ctx.Err()
		}
		return fail(name, err.Error(), err)
	}

	b.seenFP[fp] = struct{}{}
	b.seenSlg[s] = struct{}{}
	rec := &Record{
		Name:        name,
		Slug:        s,
		Scope:       b.scope,
		Kind:        b.kind,
		Geometry:    g,
		Fingerprint: fp,
		FID:         f.FID,
		Type:        f.Type,
		Properties:  f.Properties,
	}
	return Outcome{Index: i, Status: StatusImported, Name: name, Slug: s, Fingerprint: fp}, rec, nil
}

// slugSource supplies a fallback for names without any [a-z0-9] characters.
func (b *batch) slugSource(name string, i int) string {
	if slug.Base(name) != "" {
		return name
	}
	if label, ok := b.policy.label(i); ok && slug.Base(label) != "" {
		return label
	}
	return string(b.kind) + " " + strconv.Itoa(i+1)
}

func (b *batch) slugTaken(ctx context.Context, s string) (bool, error) {
	if _, ok := b.seenSlg[s]; ok {
		return true, nil
	}
	return b.p.store.SlugExists(ctx, b.scope, b.kind, s)
}

func callSink(ctx context.Context, sink Sink, rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &SinkError{Slug: rec.Slug, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := sink(ctx, rec); err != nil {
		return &SinkError{Slug: rec.Slug, Err: err}
	}
	return nil
}

func abortReason(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, ErrScopeNotFound):
		return "scope_not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
