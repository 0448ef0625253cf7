package http

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/quake-map-service/internal/domain"
)

// quakeFeature renders a quake as a Point feature. Depth is carried in the
// properties because the point geometry is two-dimensional.
func quakeFeature(q domain.Quake, scale domain.ColorScale) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{q.Geo.Lon, q.Geo.Lat})
	f.ID = q.ID
	f.Properties = geojson.Properties{
		"id":           q.ID,
		"place":        q.Place,
		"magnitude":    q.Magnitude,
		"depth":        q.Geo.Depth,
		"time":         q.Time.UTC().Format(time.RFC3339),
		"date":         q.RawDate,
		"status":       q.Status,
		"tsunami":      q.Tsunami,
		"significance": q.Significance,
		"data_type":    q.DataType,
		"state":        q.State,
		"radius":       domain.MarkerRadius(q.Magnitude),
		"color":        domain.DepthColor(q.Geo.Depth, scale),
	}
	return f
}

func quakeCollection(quakes []domain.Quake, scale domain.ColorScale) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(quakes))
	for i := range quakes {
		fc.Append(quakeFeature(quakes[i], scale))
	}
	return fc
}

func plateCollection(plates []domain.Plate) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(plates))
	for _, p := range plates {
		f := geojson.NewFeature(p.Geometry)
		f.Properties = make(geojson.Properties, len(p.Props)+1)
		for k, v := range p.Props {
			f.Properties[k] = v
		}
		f.Properties["name"] = p.Name
		fc.Append(f)
	}
	return fc
}

// frameCollection renders a frame as a FeatureCollection with the frame
// position as foreign members.
func frameCollection(f domain.Frame, scale domain.ColorScale) *geojson.FeatureCollection {
	fc := quakeCollection(f.Quakes, scale)
	fc.ExtraMembers = geojson.Properties{
		"index":        f.Index,
		"date":         f.Date.Format(dayLayout),
		"mode":         f.Mode,
		"count":        len(f.Quakes),
		"total":        f.Total,
		"generated_at": f.GeneratedAt.UTC().Format(time.RFC3339Nano),
	}
	return fc
}
