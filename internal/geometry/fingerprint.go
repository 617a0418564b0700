package geometry

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

const DefaultPrecision = 7

// Fingerprint returns the duplicate-detection identity of g at DefaultPrecision.
func Fingerprint(g orb.Geometry) string {
	return FingerprintWithPrecision(g, DefaultPrecision)
}

// FingerprintWithPrecision hashes the canonical serialization of g. Position and
// ring order are part of the identity: a polygon listing the same vertices in a
// different order gets a different fingerprint.
func FingerprintWithPrecision(g orb.Geometry, precision int) string {
	if g == nil {
		return "fp:null"
	}
	sum := sha256.Sum256([]byte(Canonical(g, precision)))
	return "fp:" + hex.EncodeToString(sum[:])
}

// Canonical renders g as {"type":T,"coordinates":C} with fixed key order and
// coordinates rounded to precision decimals in shortest form.
func Canonical(g orb.Geometry, precision int) string {
	if precision < 0 {
		precision = 0
	}
	var b strings.Builder
	b.WriteString(`{"type":"`)
	b.WriteString(g.GeoJSONType())
	b.WriteString(`","coordinates":`)
	switch t := g.(type) {
	case orb.Point:
		writePos(&b, t, precision)
	case orb.LineString:
		writePositions(&b, t, precision)
	case orb.Ring:
		writePositions(&b, t, precision)
	case orb.Polygon:
		writeRings(&b, t, precision)
	case orb.MultiPolygon:
		b.WriteByte('[')
		for i, poly := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeRings(&b, poly, precision)
		}
		b.WriteByte(']')
	default:
		// not produced by Decode; keep the walk order so the result stays deterministic
		var pts []orb.Point
		Walk(g, func(p orb.Point) bool {
			pts = append(pts, p)
			return true
		})
		writePositions(&b, pts, precision)
	}
	b.WriteByte('}')
	return b.String()
}

func writeRings(b *strings.Builder, rings orb.Polygon, p int) {
	b.WriteByte('[')
	for i, r := range rings {
		if i > 0 {
			b.WriteByte(',')
		}
		writePositions(b, r, p)
	}
	b.WriteByte(']')
}

func writePositions(b *strings.Builder, pts []orb.Point, p int) {
	b.WriteByte('[')
	for i, pt := range pts {
		if i > 0 {
			b.WriteByte(',')
		}
		writePos(b, pt, p)
	}
	b.WriteByte(']')
}

func writePos(b *strings.Builder, pt orb.Point, p int) {
	b.WriteByte('[')
	b.WriteString(formatCoord(pt[0], p))
	b.WriteByte(',')
	b.WriteString(formatCoord(pt[1], p))
	b.WriteByte(']')
}

func formatCoord(x float64, p int) string {
	r := roundFloat(x, p)
	if r == 0 {
		// collapses -0
		return "0"
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func roundFloat(x float64, p int) float64 {
	f := math.Pow(10, float64(p))
	return math.Round(x*f) / f
}
