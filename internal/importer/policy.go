package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/campus-geo/internal/core/model"
)

type MissingNameMode int

const (
	// MissingNameError records Error{"Unknown", "Missing name"}.
	MissingNameError MissingNameMode = iota
	// MissingNameAutoLabel names the feature "<Prefix> N", N being its 1-based
	// position in the collection.
	MissingNameAutoLabel
)

func (m MissingNameMode) String() string {
	if m == MissingNameAutoLabel {
		return "auto"
	}
	return "error"
}

// NamePolicy decides what happens to features without a display name. Kinds
// disagree here on purpose, so the policy is chosen per run.
type NamePolicy struct {
	Mode   MissingNameMode
	Prefix string
}

func ErrorOnMissingName() NamePolicy { return NamePolicy{Mode: MissingNameError} }

func AutoLabel(prefix string) NamePolicy {
	return NamePolicy{Mode: MissingNameAutoLabel, Prefix: prefix}
}

// DefaultNamePolicy: paths are auto-labelled "Path N", every other kind
// rejects unnamed features.
func DefaultNamePolicy(kind model.Kind) NamePolicy {
	if kind == model.KindPath {
		return AutoLabel("Path")
	}
	return ErrorOnMissingName()
}

// ParseNamePolicy reads the missingName/labelPrefix query pair. An empty mode
// selects DefaultNamePolicy(kind); an empty prefix defaults to a title-cased kind.
func ParseNamePolicy(mode, prefix string, kind model.Kind) (NamePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "":
		p := DefaultNamePolicy(kind)
		if prefix != "" && p.Mode == MissingNameAutoLabel {
			p.Prefix = strings.TrimSpace(prefix)
		}
		return p, nil
	case "error":
		return ErrorOnMissingName(), nil
	case "auto", "autolabel", "auto_label":
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			prefix = kindLabel(kind)
		}
		return AutoLabel(prefix), nil
	default:
		return NamePolicy{}, fmt.Errorf("unknown missing-name policy %q (want error|auto)", mode)
	}
}

// label returns the generated name for the feature at index, or false when the
// policy rejects unnamed features.
func (p NamePolicy) label(index int) (string, bool) {
	if p.Mode != MissingNameAutoLabel {
		return "", false
	}
	prefix := p.Prefix
	if prefix == "" {
		prefix = "Feature"
	}
	return prefix + " " + strconv.Itoa(index+1), true
}

func kindLabel(k model.Kind) string {
	s := strings.ReplaceAll(string(k), "_", " ")
	if s == "" {
		return "Feature"
	}
	if k == model.KindPOI {
		return "POI"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
