package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidDate is returned for features whose timestamp cannot be recovered.
	ErrInvalidDate = errors.New("invalid date")
	// ErrMissingGeometry is returned for features without a usable Point geometry.
	ErrMissingGeometry = errors.New("missing point geometry")
)

// dateLayouts lists the layouts seen in the date property, most specific first.
// Fractional seconds after the seconds field are accepted by every layout.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// RawFeatureCollection is the wire shape of the earthquake document.
type RawFeatureCollection struct {
	Type     string       `json:"type"`
	Features []RawFeature `json:"features"`
}

// RawFeature keeps point coordinates as a plain slice so the third (depth)
// component survives decoding.
type RawFeature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id,omitempty"`
	Geometry   *RawGeometry   `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// RawGeometry is a GeoJSON geometry with its coordinates left undecoded, so a
// stray LineString or Polygon in the collection rejects only its own feature.
type RawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// PointGeometry builds a Point geometry from lon, lat and an optional depth.
func PointGeometry(coords ...float64) *RawGeometry {
	b, _ := json.Marshal(coords) //nolint:errcheck // a float slice always encodes
	return &RawGeometry{Type: "Point", Coordinates: b}
}

// Position returns the point coordinates. It reports false unless the geometry
// is a Point holding a flat numeric array of at least two values.
func (g *RawGeometry) Position() ([]float64, bool) {
	if g == nil || !strings.EqualFold(g.Type, "Point") {
		return nil, false
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil || len(coords) < 2 {
		return nil, false
	}
	return coords, true
}

// ParseQuakeFeature converts a raw GeoJSON feature into a Quake.
func ParseQuakeFeature(f RawFeature) (Quake, error) {
	coords, ok := f.Geometry.Position()
	if !ok {
		return Quake{}, ErrMissingGeometry
	}

	props := f.Properties
	rawDate := stringProp(props, "date")
	ts, err := parseTimestamp(rawDate, props["time"])
	if err != nil {
		return Quake{}, fmt.Errorf("parse quake %q: %w", stringProp(props, "place"), err)
	}

	geo := Geo{Lon: coords[0], Lat: coords[1]}
	if len(coords) > 2 {
		geo.Depth = coords[2]
	}

	mag := floatProp(props, "magnitudo", "mag", "magnitude")

	return Quake{
		ID:           generateID(ts, geo, mag),
		Time:         ts,
		Place:        stringProp(props, "place"),
		Magnitude:    mag,
		Geo:          geo,
		Status:       stringProp(props, "status"),
		Tsunami:      floatProp(props, "tsunami") != 0,
		Significance: int(floatProp(props, "significance", "sig")),
		DataType:     stringProp(props, "data_type", "type"),
		State:        stringProp(props, "state"),
		RawDate:      rawDate,
	}, nil
}

// parseTimestamp tries the date string first and falls back to epoch milliseconds.
func parseTimestamp(date string, epochMillis any) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, date); err == nil {
				return t.UTC(), nil
			}
		}
	}

	if ms, ok := toFloat(epochMillis); ok && ms != 0 && !math.IsNaN(ms) && !math.IsInf(ms, 0) {
		return time.UnixMilli(int64(ms)).UTC(), nil
	}

	return time.Time{}, ErrInvalidDate
}

// generateID produces a deterministic ID from the event's key fields so that
// reloading the same document yields the same IDs.
func generateID(ts time.Time, geo Geo, magnitude float64) string {
	input := fmt.Sprintf("%d|%.4f|%.4f|%g", ts.UnixMilli(), geo.Lat, geo.Lon, magnitude)
	hash := sha256.Sum256([]byte(input))
	return "eq-" + hex.EncodeToString(hash[:8])
}

func stringProp(props map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func floatProp(props map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := toFloat(props[k]); ok {
			return v
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
