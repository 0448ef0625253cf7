package http

import (
	"bytes"
	"embed"
	"net/http"

	"github.com/couchcryptid/quake-map-service/internal/domain"
	"github.com/couchcryptid/quake-map-service/internal/playback"
)

//go:embed web
var webFS embed.FS

// MapSettings are the initial view and styling sent to the browser.
type MapSettings struct {
	CenterLat float64
	CenterLon float64
	Zoom      int
	Scale     domain.ColorScale
}

// TileLayer is a selectable base map.
type TileLayer struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	Default     bool   `json:"default,omitempty"`
}

// LineStyle is the Leaflet path style for plate boundaries.
type LineStyle struct {
	Color  string  `json:"color"`
	Weight float64 `json:"weight"`
}

// MarkerStyle is the fixed part of the circle marker style. Radius and fill
// color come with each feature.
type MarkerStyle struct {
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillOpacity float64 `json:"fill_opacity"`
}

var baseLayers = []TileLayer{
	{
		Name:        "Street Map",
		URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
		Default:     true,
	},
	{
		Name:        "Topographic Map",
		URL:         "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png",
		Attribution: "Map data: &copy; OpenStreetMap contributors",
	},
}

var (
	plateStyle  = LineStyle{Color: "blue", Weight: 2.5}
	markerStyle = MarkerStyle{Color: "#000", Weight: 0.5, Opacity: 0.5, FillOpacity: 1}
)

type mapResponse struct {
	Center      [2]float64           `json:"center"`
	Zoom        int                  `json:"zoom"`
	BaseLayers  []TileLayer          `json:"base_layers"`
	Overlays    []string             `json:"overlays"`
	PlateStyle  LineStyle            `json:"plate_style"`
	MarkerStyle MarkerStyle          `json:"marker_style"`
	ColorScale  domain.ColorScale    `json:"color_scale"`
	Legend      []domain.LegendEntry `json:"legend"`
	Modes       []domain.Mode        `json:"modes"`
	Speeds      []float64            `json:"speeds"`
}

func (s *Server) handleMap(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, mapResponse{
		Center:      [2]float64{s.mapCfg.CenterLat, s.mapCfg.CenterLon},
		Zoom:        s.mapCfg.Zoom,
		BaseLayers:  baseLayers,
		Overlays:    []string{"Earthquakes", "Tectonic Plates"},
		PlateStyle:  plateStyle,
		MarkerStyle: markerStyle,
		ColorScale:  s.mapCfg.Scale,
		Legend:      domain.Legend(s.mapCfg.Scale),
		Modes:       []domain.Mode{domain.ModeCumulative, domain.ModeDaily},
		Speeds:      playback.Speeds,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	data := struct {
		Title     string
		CenterLat float64
		CenterLon float64
		Zoom      int
	}{
		Title:     "Earthquakes and Tectonic Plates",
		CenterLat: s.mapCfg.CenterLat,
		CenterLon: s.mapCfg.CenterLon,
		Zoom:      s.mapCfg.Zoom,
	}

	// Render to a buffer so a template error can still produce a 500.
	var buf bytes.Buffer
	if err := s.index.Execute(&buf, data); err != nil {
		s.logger.Error("render index", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w) //nolint:errcheck // client may have gone away
}
