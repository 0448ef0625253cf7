// Package domain models earthquake catalog data and the timeline derived from it.
//
// # Data Source
//
// Earthquake events arrive as a GeoJSON FeatureCollection of Point features.
// The catalog export used by the service (a 1990–2023 global catalog, shipped
// in chunks) carries one feature per event with flat properties:
//
//	place         "16 km NNW of Los Alamos, New Mexico"
//	magnitudo     2.5           (note the Italian spelling used by the dataset)
//	date          "2023-01-01 00:01:36.980000+00:00"
//	time          1672531296980 (epoch milliseconds, same instant as date)
//	status        "reviewed" | "automatic"
//	tsunami       0 | 1
//	significance  96
//	data_type     "earthquake" | "explosion" | "quarry blast" | ...
//	state         "New Mexico"
//
// Geometry coordinates follow the GeoJSON order [longitude, latitude, depth],
// with depth in kilometres as the third component. A missing third component
// is read as depth 0.
//
// Plate boundaries come from the PB2002 model as a separate FeatureCollection of
// LineString/Polygon features. They are drawn as-is and never filtered.
//
// # Dates
//
// The date property is authoritative. Several layouts occur in the wild (see
// [dateLayouts]); when none match, the numeric time property is used. A feature
// whose timestamp cannot be recovered either way is excluded from the catalog
// with [ErrInvalidDate] and counted as rejected. The rest of the load proceeds.
//
// # Timeline
//
// The timeline is the contiguous run of calendar days from the first event day
// to the last, evaluated in a configurable location (UTC unless configured).
// Index i maps to the midnight that starts day i. Two filtering policies exist:
//
//	cumulative  every event strictly before the end of day i
//	daily       every event inside day i
//
// Cumulative frames therefore grow monotonically with the index, and the daily
// frames of all indices partition the catalog exactly.
//
// # Styling
//
// Marker radius scales linearly with magnitude ([MarkerRadius]). Marker fill is
// bucketed by depth at 10/30/50/70/90 km ([DepthColor]); the palette direction
// is selected with [ColorScale].
package domain
