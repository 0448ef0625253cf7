package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/quake-map-service/internal/catalog"
	"github.com/couchcryptid/quake-map-service/internal/domain"
)

// GeoJSONDecoder implements Decoder for the earthquake and PB2002 plate
// boundary FeatureCollections.
type GeoJSONDecoder struct {
	logger *slog.Logger
}

// NewDecoder creates a GeoJSONDecoder.
func NewDecoder(logger *slog.Logger) *GeoJSONDecoder {
	return &GeoJSONDecoder{logger: logger}
}

// Decode parses both documents into a snapshot. Quake features with an
// unusable date or geometry are excluded and counted in Snapshot.Rejected.
func (d *GeoJSONDecoder) Decode(quakeDoc, plateDoc []byte) (catalog.Snapshot, error) {
	quakes, rejected, err := d.DecodeQuakes(quakeDoc)
	if err != nil {
		return catalog.Snapshot{}, err
	}
	plates, err := DecodePlates(plateDoc)
	if err != nil {
		return catalog.Snapshot{}, err
	}
	return catalog.Snapshot{
		Quakes:   quakes,
		Plates:   plates,
		Rejected: rejected,
		LoadedAt: domain.Now(),
	}, nil
}

// DecodeQuakes parses the earthquake FeatureCollection.
func (d *GeoJSONDecoder) DecodeQuakes(doc []byte) ([]domain.Quake, int, error) {
	var fc domain.RawFeatureCollection
	if err := json.Unmarshal(doc, &fc); err != nil {
		return nil, 0, fmt.Errorf("decode quake collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, 0, fmt.Errorf("decode quake collection: unexpected type %q", fc.Type)
	}

	quakes := make([]domain.Quake, 0, len(fc.Features))
	var rejected int
	for i := range fc.Features {
		q, err := domain.ParseQuakeFeature(fc.Features[i])
		if err != nil {
			if errors.Is(err, domain.ErrInvalidDate) || errors.Is(err, domain.ErrMissingGeometry) {
				rejected++
				d.logger.Debug("quake feature excluded", "index", i, "error", err)
				continue
			}
			return nil, 0, fmt.Errorf("decode quake feature %d: %w", i, err)
		}
		quakes = append(quakes, q)
	}
	return quakes, rejected, nil
}

// DecodePlates parses the plate boundary FeatureCollection. Geometry is kept
// as-is; no feature is filtered.
func DecodePlates(doc []byte) ([]domain.Plate, error) {
	fc, err := geojson.UnmarshalFeatureCollection(doc)
	if err != nil {
		return nil, fmt.Errorf("decode plate collection: %w", err)
	}

	plates := make([]domain.Plate, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		plates = append(plates, domain.Plate{
			Name:     plateName(f.Properties),
			Geometry: f.Geometry,
			Props:    map[string]any(f.Properties),
		})
	}
	return plates, nil
}

func plateName(props geojson.Properties) string {
	if name := props.MustString("Name", ""); name != "" {
		return name
	}
	a, b := props.MustString("PlateA", ""), props.MustString("PlateB", "")
	if a != "" && b != "" {
		return a + "-" + b
	}
	return a + b
}
