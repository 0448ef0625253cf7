package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// Geo represents a WGS-84 latitude/longitude pair plus hypocentre depth in km.
type Geo struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Depth float64 `json:"depth"`
}

// Quake is a single earthquake event after parsing.
type Quake struct {
	ID           string    `json:"id"`
	Time         time.Time `json:"time"`
	Place        string    `json:"place"`
	Magnitude    float64   `json:"magnitude"`
	Geo          Geo       `json:"geo"`
	Status       string    `json:"status,omitempty"`
	Tsunami      bool      `json:"tsunami"`
	Significance int       `json:"significance,omitempty"`
	DataType     string    `json:"data_type,omitempty"`
	State        string    `json:"state,omitempty"`

	// RawDate is the date property exactly as it appeared in the source.
	RawDate string `json:"raw_date,omitempty"`
}

// Plate is a tectonic plate boundary segment.
type Plate struct {
	Name     string         `json:"name,omitempty"`
	Geometry orb.Geometry   `json:"-"`
	Props    map[string]any `json:"-"`
}

// Frame is the filtered view of the catalog at one timeline index.
type Frame struct {
	Index       int       `json:"index"`
	Date        time.Time `json:"date"`
	Mode        Mode      `json:"mode"`
	Quakes      []Quake   `json:"quakes"`
	Total       int       `json:"total"`
	GeneratedAt time.Time `json:"generated_at"`
}
