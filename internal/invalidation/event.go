// Package invalidation defines the event announcing that an import changed the
// entities of one (scope, kind). Search instances drop their cached catalog
// for that pair when they consume it.
package invalidation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
)

const (
	Version  = 1
	OpImport = "import"
)

type Event struct {
	Version  int       `json:"version"`
	Op       string    `json:"op"`
	Scope    string    `json:"scope"`
	Kind     string    `json:"kind"`
	Imported int       `json:"imported"`
	Slugs    []string  `json:"slugs,omitempty"`
	Source   string    `json:"source,omitempty"`
	Seq      uint64    `json:"seq"`
	TS       time.Time `json:"ts"`
}

func NewImport(scope model.ScopeID, kind model.Kind, slugs []string, ts time.Time) Event {
	return Event{
		Version:  Version,
		Op:       OpImport,
		Scope:    string(scope),
		Kind:     string(kind),
		Imported: len(slugs),
		Slugs:    slugs,
		TS:       ts.UTC(),
	}
}

func (e Event) Validate() error {
	if e.Version != Version {
		return fmt.Errorf("version must be %d", Version)
	}
	if e.Op != OpImport {
		return fmt.Errorf("op must be %s", OpImport)
	}
	if strings.TrimSpace(e.Scope) == "" {
		return errors.New("scope is required")
	}
	if _, err := model.ParseKind(e.Kind); err != nil {
		return err
	}
	if e.Imported < 0 {
		return errors.New("imported must not be negative")
	}
	if len(e.Slugs) > 0 && len(e.Slugs) != e.Imported {
		return fmt.Errorf("imported=%d but %d slugs listed", e.Imported, len(e.Slugs))
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	return nil
}

// Target returns the parsed (scope, kind) pair; call Validate first.
func (e Event) Target() (model.ScopeID, model.Kind) {
	k, _ := model.ParseKind(e.Kind)
	return model.ScopeID(strings.TrimSpace(e.Scope)), k
}

// PartitionKey keeps events of one (scope, kind) ordered on a single partition.
func (e Event) PartitionKey() string {
	return strings.TrimSpace(e.Scope) + "/" + e.Kind
}

// DedupeKey identifies the sequence an event's Seq belongs to.
func (e Event) DedupeKey() string {
	return e.Source + "|" + e.PartitionKey()
}
