// Package keys builds the Redis key layout of the entity store.
//
//	campus:scopes                               set of registered scopes
//	campus:fp:{scope}:{kind}                    set of geometry fingerprints
//	campus:slug:{scope}:{kind}                  set of allocated slugs
//	campus:ents:{scope}:{kind}                  set of entity slugs
//	campus:ent:{scope}:{kind}:{slug}            entity document (JSON)
//	campus:cell:{scope}:{kind}:{res}:{cell}     set of entity slugs per H3 cell
//
// {scope} is the sanitized scope id followed by an xxhash of the raw id, so two
// ids that sanitize alike still get distinct keys.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
)

const prefix = "campus"

func Scopes() string { return prefix + ":scopes" }

func Fingerprints(scope model.ScopeID, kind model.Kind) string {
	return fmt.Sprintf("%s:fp:%s:%s", prefix, Scope(scope), kind)
}

func Slugs(scope model.ScopeID, kind model.Kind) string {
	return fmt.Sprintf("%s:slug:%s:%s", prefix, Scope(scope), kind)
}

func Entities(scope model.ScopeID, kind model.Kind) string {
	return fmt.Sprintf("%s:ents:%s:%s", prefix, Scope(scope), kind)
}

func Entity(scope model.ScopeID, kind model.Kind, slug string) string {
	return fmt.Sprintf("%s:ent:%s:%s:%s", prefix, Scope(scope), kind, sanitizeForKey(strings.TrimSpace(slug)))
}

func Cell(scope model.ScopeID, kind model.Kind, res int, cell string) string {
	return fmt.Sprintf("%s:cell:%s:%s:%d:%s", prefix, Scope(scope), kind, res, strings.ToLower(strings.TrimSpace(cell)))
}

// Scope renders a scope id as a key segment.
func Scope(scope model.ScopeID) string {
	raw := strings.TrimSpace(string(scope))
	safe := sanitizeForKey(raw)

	const maxScopeLen = 64
	if len(safe) > maxScopeLen {
		safe = safe[:maxScopeLen]
	}
	return fmt.Sprintf("%s=%016x", safe, xxhash.Sum64String(raw))
}

// sanitizeForKey keeps [A-Za-z0-9_-]; whitespace runs become '_' and every
// other rune (':' included, so segments cannot be forged) becomes '-'.
func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
