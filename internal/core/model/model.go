// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strings"
)

// Coord is a WGS84 position, longitude first as in GeoJSON.
type Coord struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func (c Coord) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lng, c.Lat)
}

// ScopeID identifies the campus that slugs and duplicate checks are evaluated in.
type ScopeID string

type Kind string

const (
	KindBuilding  Kind = "building"
	KindPath      Kind = "path"
	KindOpenSpace Kind = "open_space"
	KindPOI       Kind = "poi"
)

var AllKinds = []Kind{KindBuilding, KindPath, KindOpenSpace, KindPOI}

// ParseKind accepts the canonical names plus the plural/hyphenated forms used in URLs.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "building", "buildings":
		return KindBuilding, nil
	case "path", "paths":
		return KindPath, nil
	case "open_space", "open-space", "openspace", "open_spaces", "open-spaces", "openspaces":
		return KindOpenSpace, nil
	case "poi", "pois":
		return KindPOI, nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
}

// ParseKinds parses a comma separated kind list; empty input selects every kind.
func ParseKinds(s string) ([]Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return append([]Kind(nil), AllKinds...), nil
	}
	seen := make(map[Kind]struct{}, len(AllKinds))
	var out []Kind
	for p := range strings.SplitSeq(s, ",") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		k, err := ParseKind(p)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out, nil
}

// Entity is the minimal view of a stored entity that search and bounds need.
// Source holds the coordinate data exactly as it was stored: a GeoJSON object,
// a GeoJSON string or a flat record with scalar lat/lng fields.
type Entity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Category string `json:"category,omitempty"`
	Source   any    `json:"coordinates,omitempty"`
}

// DistanceKm is set iff both an origin and a resolvable centroid exist.
type SearchResult struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Category   string   `json:"category,omitempty"`
	Centroid   *Coord   `json:"centroid,omitempty"`
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

type BoundingBox struct {
	MinLng float64 `json:"minLng"`
	MinLat float64 `json:"minLat"`
	MaxLng float64 `json:"maxLng"`
	MaxLat float64 `json:"maxLat"`
}

type Cells []string
