package http

import (
	"context"
	"encoding/json"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/quake-map-service/internal/catalog"
	"github.com/couchcryptid/quake-map-service/internal/domain"
	"github.com/couchcryptid/quake-map-service/internal/observability"
	"github.com/couchcryptid/quake-map-service/internal/playback"
)

// CatalogReader is the read side of the catalog the API answers from.
type CatalogReader interface {
	Loaded() bool
	Snapshot() (catalog.Snapshot, bool)
	Timeline() *domain.Timeline
	Frame(mode domain.Mode, index int) (domain.Frame, error)
	Quakes() []domain.Quake
	Plates() []domain.Plate
	Location() *time.Location
}

// PlayerController drives timeline playback.
type PlayerController interface {
	State() playback.State
	Play() playback.State
	Pause() playback.State
	Toggle() playback.State
	Step(n int) playback.State
	Seek(i int) (playback.State, error)
	SetMode(m domain.Mode) (playback.State, error)
	SetSpeed(speed float64) (playback.State, error)
	SetLoop(loop bool) playback.State
	Subscribe(buffer int) (<-chan domain.Frame, func())
}

// Dependencies are the components the server exposes.
type Dependencies struct {
	Ready   sharedobs.ReadinessChecker
	Catalog CatalogReader
	Player  PlayerController
	Map     MapSettings
	Metrics *observability.Metrics
}

// Server exposes the map page, the JSON API, and health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	catalog    CatalogReader
	player     PlayerController
	mapCfg     MapSettings
	metrics    *observability.Metrics
	index      *template.Template
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers every route.
func NewServer(addr string, deps Dependencies, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      accessLog(mux, logger),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		catalog: deps.Catalog,
		player:  deps.Player,
		mapCfg:  deps.Map,
		metrics: deps.Metrics,
		index:   template.Must(template.ParseFS(webFS, "web/index.html")),
		logger:  logger,
	}

	static, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic(err)
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	mux.HandleFunc("GET /api/map", s.handleMap)
	mux.HandleFunc("GET /api/quakes", s.handleQuakes)
	mux.HandleFunc("GET /api/plates", s.handlePlates)
	mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	mux.HandleFunc("GET /api/timeline/frame", s.handleFrame)
	mux.HandleFunc("GET /api/export", s.handleExport)

	mux.HandleFunc("GET /api/playback", s.handlePlaybackState)
	mux.HandleFunc("GET /api/playback/stream", s.handlePlaybackStream)
	mux.HandleFunc("POST /api/playback/{action}", s.handlePlaybackAction)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
