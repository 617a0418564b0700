package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidCollection = errors.New("invalid feature collection")

// ValidationError rejects a payload before any feature is processed.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrInvalidCollection, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidCollection, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidCollection }

// Collection is a structurally valid FeatureCollection whose elements have not
// been inspected yet.
type Collection struct {
	Features []json.RawMessage
}

// RawFeature is one collection element after property extraction.
type RawFeature struct {
	Index      int
	Name       string
	Type       string
	FID        string
	Properties map[string]any
	Geometry   json.RawMessage
}

// ParseCollection checks the top-level shape: a JSON object with
// type "FeatureCollection" and a features array.
func ParseCollection(payload []byte) (*Collection, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, &ValidationError{Reason: "empty payload"}
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, &ValidationError{Reason: "payload is not a JSON object", Err: err}
	}
	if top == nil {
		return nil, &ValidationError{Reason: "payload is not a JSON object"}
	}

	var typ string
	if raw, ok := top["type"]; ok {
		_ = json.Unmarshal(raw, &typ)
	}
	if typ != "FeatureCollection" {
		return nil, &ValidationError{Reason: fmt.Sprintf("type must be FeatureCollection, got %q", typ)}
	}

	raw, ok := top["features"]
	raw = bytes.TrimSpace(raw)
	if !ok || len(raw) == 0 || raw[0] != '[' {
		return nil, &ValidationError{Reason: "features must be an array"}
	}
	var features []json.RawMessage
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, &ValidationError{Reason: "features must be an array", Err: err}
	}
	return &Collection{Features: features}, nil
}

var errNotObject = errors.New("feature is not a JSON object")

// parseFeature extracts name, type and fid from properties, falling back to
// members of the feature itself. Geometry is the feature's geometry member or,
// when absent, its properties (flat lat/lng records).
func parseFeature(i int, raw json.RawMessage) (RawFeature, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return RawFeature{}, errNotObject
	}
	f := RawFeature{Index: i}

	if p, ok := obj["properties"]; ok {
		_ = json.Unmarshal(p, &f.Properties)
	}
	f.Name = strings.TrimSpace(firstString(f.Properties, obj, "name"))
	f.Type = strings.TrimSpace(firstString(f.Properties, nil, "type"))
	f.FID = strings.TrimSpace(firstString(f.Properties, obj, "fid", "id"))

	if g, ok := obj["geometry"]; ok && !isNull(g) {
		f.Geometry = g
	} else if f.Properties != nil {
		b, err := json.Marshal(f.Properties)
		if err == nil {
			f.Geometry = b
		}
	}
	return f, nil
}

func firstString(props map[string]any, obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if s, ok := scalarString(props[k]); ok {
			return s
		}
	}
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if s, ok := scalarString(v); ok {
			return s
		}
	}
	return ""
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
