// Package slug derives URL-safe identifiers from display names and resolves
// collisions inside a scope.
package slug

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
)

// ErrEmptySlug is returned when a name has no [a-z0-9] characters. Callers supply
// a fallback name before allocating.
var ErrEmptySlug = errors.New("name produces an empty slug")

// ExistsFunc reports whether slug is already taken in scope.
type ExistsFunc func(ctx context.Context, slug string) (bool, error)

// Base lowercases name and collapses every run of non-alphanumeric characters
// into a single '-', trimming leading and trailing hyphens.
func Base(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		if isSlugRune(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// Allocate returns Base(name) if it is free, otherwise the first free
// base-1, base-2, ... The only errors are ErrEmptySlug and whatever exists
// returns; a failing predicate stops the search.
func Allocate(ctx context.Context, name string, scope model.ScopeID, exists ExistsFunc) (string, error) {
	base := Base(name)
	if base == "" {
		return "", fmt.Errorf("scope %s: %q: %w", scope, name, ErrEmptySlug)
	}
	candidate := base
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("slug %q in scope %s: %w", candidate, scope, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
}

func isSlugRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
