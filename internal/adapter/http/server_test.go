package http_test

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/quake-map-service/internal/adapter/http"
	"github.com/couchcryptid/quake-map-service/internal/catalog"
	"github.com/couchcryptid/quake-map-service/internal/domain"
	"github.com/couchcryptid/quake-map-service/internal/observability"
	"github.com/couchcryptid/quake-map-service/internal/playback"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type fixture struct {
	srv     *httpadapter.Server
	catalog *catalog.Catalog
	player  *playback.Player
	metrics *observability.Metrics
}

func sampleSnapshot() catalog.Snapshot {
	return catalog.Snapshot{
		Quakes: []domain.Quake{
			{
				ID: "eq-1", Time: time.Date(2023, 2, 6, 1, 17, 34, 0, time.UTC), RawDate: "2023-02-06 01:17:34",
				Place: "Pazarcik, Turkey", Magnitude: 7.8, Geo: domain.Geo{Lat: 37.2, Lon: 37.0, Depth: 10},
			},
			{
				ID: "eq-2", Time: time.Date(2023, 2, 7, 3, 5, 0, 0, time.UTC), RawDate: "2023-02-07 03:05:00",
				Place: "Ridgecrest, CA", Magnitude: 2.1, Geo: domain.Geo{Lat: 35.58, Lon: -117.67, Depth: 8.2},
			},
			{
				ID: "eq-3", Time: time.Date(2023, 2, 9, 4, 0, 0, 0, time.UTC),
				Place: "Tonga", Magnitude: 5, Geo: domain.Geo{Lat: -20.1, Lon: -174.5, Depth: 95},
			},
		},
		Plates: []domain.Plate{
			{
				Name:     "AF-AN",
				Geometry: orb.LineString{{-0.4379, -54.8518}, {0.4435, -54.4991}},
				Props:    map[string]any{"PlateA": "AF", "PlateB": "AN"},
			},
		},
		Rejected: 1,
		LoadedAt: time.Date(2023, 2, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newFixture(t *testing.T, loaded bool, readyErr error) *fixture {
	t.Helper()
	m := observability.NewMetricsForTesting()
	cat := catalog.New(time.UTC, 16, m)
	player := playback.NewPlayer(cat, playback.Options{Clock: clockwork.NewFakeClock()}, slog.Default(), m)
	t.Cleanup(player.Close)
	cat.OnReplace(player.Reset)
	if loaded {
		cat.Replace(sampleSnapshot())
	}

	srv := httpadapter.NewServer(":0", httpadapter.Dependencies{
		Ready:   &mockReadiness{err: readyErr},
		Catalog: cat,
		Player:  player,
		Map:     httpadapter.MapSettings{CenterLat: 37.09, CenterLon: -95.71, Zoom: 5, Scale: domain.ColorScaleDeepRed},
		Metrics: m,
	}, slog.Default())

	return &fixture{srv: srv, catalog: cat, player: player, metrics: m}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
	Index int    `json:"index"`
	Date  string `json:"date"`
	Mode  string `json:"mode"`
	Count int    `json:"count"`
	Total int    `json:"total"`
}

// --- probes ---

func TestHealthzReturns200(t *testing.T) {
	f := newFixture(t, false, nil)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	f := newFixture(t, true, nil)
	rec := f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	f := newFixture(t, false, fmt.Errorf("not ready yet"))
	rec := f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, false, nil)
	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// --- page and map settings ---

func TestIndexPage(t *testing.T) {
	f := newFixture(t, false, nil)
	rec := f.do(t, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Earthquakes and Tectonic Plates</title>")
	assert.Contains(t, body, `data-zoom="5"`)
	assert.Contains(t, body, `data-lat="37.09"`)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nope", "").Code)
}

func TestStaticAssets(t *testing.T) {
	f := newFixture(t, false, nil)

	rec := f.do(t, http.MethodGet, "/static/app.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "EventSource")

	rec = f.do(t, http.MethodGet, "/static/style.css", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMapSettings(t *testing.T) {
	f := newFixture(t, false, nil)
	rec := f.do(t, http.MethodGet, "/api/map", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Center     [2]float64 `json:"center"`
		Zoom       int        `json:"zoom"`
		BaseLayers []struct {
			Name        string `json:"name"`
			URL         string `json:"url"`
			Attribution string `json:"attribution"`
		} `json:"base_layers"`
		Overlays   []string `json:"overlays"`
		PlateStyle struct {
			Color  string  `json:"color"`
			Weight float64 `json:"weight"`
		} `json:"plate_style"`
		Legend []domain.LegendEntry `json:"legend"`
		Speeds []float64            `json:"speeds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, [2]float64{37.09, -95.71}, body.Center)
	assert.Equal(t, 5, body.Zoom)
	require.Len(t, body.BaseLayers, 2)
	assert.Equal(t, "Street Map", body.BaseLayers[0].Name)
	assert.Contains(t, body.BaseLayers[1].URL, "opentopomap.org")
	assert.Equal(t, []string{"Earthquakes", "Tectonic Plates"}, body.Overlays)
	assert.Equal(t, "blue", body.PlateStyle.Color)
	assert.InDelta(t, 2.5, body.PlateStyle.Weight, 0)
	require.Len(t, body.Legend, 6)
	assert.Equal(t, "90+", body.Legend[5].Label)
	assert.Equal(t, []float64{0.5, 1, 2, 4}, body.Speeds)
}

// --- data endpoints ---

func TestDataEndpointsUnavailableBeforeLoad(t *testing.T) {
	f := newFixture(t, false, nil)
	for _, target := range []string{"/api/quakes", "/api/plates", "/api/timeline/frame?index=0", "/api/export?format=csv&all=true"} {
		rec := f.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}

	rec := f.do(t, http.MethodGet, "/api/timeline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["loaded"])
	assert.InDelta(t, 0, body["days"], 0)
}

func TestQuakes(t *testing.T) {
	f := newFixture(t, true, nil)
	rec := f.do(t, http.MethodGet, "/api/quakes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	fc := decode[featureCollection](t, rec)
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 3)

	first := fc.Features[0]
	assert.Equal(t, "Point", first.Geometry.Type)
	assert.Equal(t, []float64{37.0, 37.2}, first.Geometry.Coordinates)
	assert.Equal(t, "Pazarcik, Turkey", first.Properties["place"])
	assert.InDelta(t, 10.0, first.Properties["depth"], 1e-9)
	assert.InDelta(t, 39.0, first.Properties["radius"], 1e-9)
	assert.Equal(t, "#1a9850", first.Properties["color"])

	assert.Equal(t, "#d73027", fc.Features[2].Properties["color"], "95 km is in the deepest bucket")
}

func TestQuakes_DateRange(t *testing.T) {
	f := newFixture(t, true, nil)

	rec := f.do(t, http.MethodGet, "/api/quakes?from=2023-02-07&to=2023-02-09", "")
	require.Equal(t, http.StatusOK, rec.Code)
	fc := decode[featureCollection](t, rec)
	assert.Len(t, fc.Features, 2, "to includes the whole day")

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/quakes?from=2023-02-07", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/quakes?from=07/02/2023&to=2023-02-09", "").Code)
}

func TestPlates(t *testing.T) {
	f := newFixture(t, true, nil)
	rec := f.do(t, http.MethodGet, "/api/plates", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	features, ok := body["features"].([]any)
	require.True(t, ok)
	require.Len(t, features, 1)
	feature := features[0].(map[string]any)
	props := feature["properties"].(map[string]any)
	assert.Equal(t, "AF-AN", props["name"])
	assert.Equal(t, "AF", props["PlateA"])
	assert.Equal(t, "LineString", feature["geometry"].(map[string]any)["type"])
}

func TestTimeline(t *testing.T) {
	f := newFixture(t, true, nil)
	rec := f.do(t, http.MethodGet, "/api/timeline", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["loaded"])
	assert.Equal(t, "2023-02-06", body["start"])
	assert.Equal(t, "2023-02-09", body["end"])
	assert.InDelta(t, 4, body["days"], 0)
	assert.InDelta(t, 3, body["total"], 0)
	assert.InDelta(t, 1, body["rejected"], 0)
	assert.Equal(t, "UTC", body["location"])
}

func TestTimelineFrame(t *testing.T) {
	f := newFixture(t, true, nil)

	rec := f.do(t, http.MethodGet, "/api/timeline/frame?index=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	fc := decode[featureCollection](t, rec)
	assert.Equal(t, "cumulative", fc.Mode)
	assert.Equal(t, "2023-02-07", fc.Date)
	assert.Equal(t, 2, fc.Count)
	assert.Equal(t, 3, fc.Total)
	assert.Len(t, fc.Features, 2)

	rec = f.do(t, http.MethodGet, "/api/timeline/frame?index=2&mode=daily", "")
	require.Equal(t, http.StatusOK, rec.Code)
	fc = decode[featureCollection](t, rec)
	assert.Equal(t, 0, fc.Count, "no events on 2023-02-08")
	assert.NotNil(t, fc.Features)

	rec = f.do(t, http.MethodGet, "/api/timeline/frame?date=2023-02-08&mode=cumulative", "")
	require.Equal(t, http.StatusOK, rec.Code)
	fc = decode[featureCollection](t, rec)
	assert.Equal(t, 2, fc.Index)
	assert.Equal(t, "2023-02-08", fc.Date)
	assert.Equal(t, 2, fc.Count)

	rec = f.do(t, http.MethodGet, "/api/timeline/frame?date=2024-01-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[featureCollection](t, rec).Index, "dates past the range clamp to the last day")

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/timeline/frame?date=02/08/2023", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/timeline/frame?index=1&date=2023-02-08", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/timeline/frame?index=4", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/timeline/frame?index=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/timeline/frame?index=0&mode=weekly", "").Code)
}

// --- export ---

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t, true, nil)
	rec := f.do(t, http.MethodGet, "/api/export?format=csv&from=2023-02-06&to=2023-02-07", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="earthquakes.csv"`, rec.Header().Get("Content-Disposition"))

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Date", "Place", "Magnitude", "Depth"}, records[0])
	assert.Equal(t, []string{"2023-02-07 03:05:00", "Ridgecrest, CA", "2.1", "8.2"}, records[2])

	assert.InDelta(t, 1, counterValue(t, f.metrics.ExportsGenerated.WithLabelValues("csv")), 0)
}

func TestExportXLSAll(t *testing.T) {
	f := newFixture(t, true, nil)
	rec := f.do(t, http.MethodGet, "/api/export?format=xls&all=true", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "application/vnd.ms-excel", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="earthquakes.xls"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, 4, strings.Count(rec.Body.String(), "<tr>"))

	// The range is ignored when exporting everything, even if malformed.
	rec = f.do(t, http.MethodGet, "/api/export?format=xls&all=true&from=yesterday&to=2023-02-07", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, strings.Count(rec.Body.String(), "<tr>"))
}

func TestExportErrors(t *testing.T) {
	f := newFixture(t, true, nil)

	cases := map[string]string{
		"unknown format": "/api/export?format=pdf&all=true",
		"missing range":  "/api/export?format=csv",
		"partial range":  "/api/export?format=csv&from=2023-02-06",
		"bad all flag":   "/api/export?format=csv&all=maybe",
		"bad date":       "/api/export?format=csv&from=yesterday&to=2023-02-07",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

// --- playback ---

func TestPlaybackState(t *testing.T) {
	f := newFixture(t, true, nil)
	rec := f.do(t, http.MethodGet, "/api/playback", "")
	require.Equal(t, http.StatusOK, rec.Code)

	st := decode[playback.State](t, rec)
	assert.Equal(t, playback.StatusPaused, st.Status, "reload leaves the player paused at the start")
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, 4, st.Length)
	assert.Equal(t, domain.ModeCumulative, st.Mode)
}

func TestPlaybackActions(t *testing.T) {
	f := newFixture(t, true, nil)

	st := decode[playback.State](t, f.do(t, http.MethodPost, "/api/playback/play", ""))
	assert.Equal(t, playback.StatusPlaying, st.Status)

	st = decode[playback.State](t, f.do(t, http.MethodPost, "/api/playback/pause", ""))
	assert.Equal(t, playback.StatusPaused, st.Status)

	st = decode[playback.State](t, f.do(t, http.MethodPost, "/api/playback/toggle", ""))
	assert.Equal(t, playback.StatusPlaying, st.Status)

	st = decode[playback.State](t, f.do(t, http.MethodPost, "/api/playback/step", ""))
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, playback.StatusPaused, st.Status)

	st = decode[playback.State](t, f.do(t, http.MethodPost, "/api/playback/step", `{"n":-1}`))
	assert.Equal(t, 0, st.Index)

	st = decode[playback.State](t, f.do(t, http.MethodPost, "/api/playback/seek", `{"index":3}`))
	assert.Equal(t, 3, st.Index)

	st = decode[playback.State](t, f.do(t, http.MethodPost, "/api/playback/seek", `{"date":"2023-02-07"}`))
	assert.Equal(t, 1, st.Index)

	st = decode[playback.State](t, f.do(t, http.MethodPost, "/api/playback/speed", `{"speed":2}`))
	assert.InDelta(t, 2.0, st.Speed, 0)
	assert.Equal(t, int64(500), st.IntervalMS)

	st = decode[playback.State](t, f.do(t, http.MethodPost, "/api/playback/mode", `{"mode":"daily"}`))
	assert.Equal(t, domain.ModeDaily, st.Mode)

	st = decode[playback.State](t, f.do(t, http.MethodPost, "/api/playback/loop", `{"loop":true}`))
	assert.True(t, st.Loop)
}

func TestPlaybackActionErrors(t *testing.T) {
	f := newFixture(t, true, nil)

	cases := []struct {
		name   string
		action string
		body   string
		want   int
	}{
		{"unknown action", "rewind", "", http.StatusNotFound},
		{"seek out of range", "seek", `{"index":10}`, http.StatusNotFound},
		{"seek without index", "seek", "", http.StatusBadRequest},
		{"seek with bad date", "seek", `{"date":"yesterday"}`, http.StatusBadRequest},
		{"seek with index and date", "seek", `{"index":1,"date":"2023-02-07"}`, http.StatusBadRequest},
		{"unsupported speed", "speed", `{"speed":3}`, http.StatusBadRequest},
		{"unknown mode", "mode", `{"mode":"weekly"}`, http.StatusBadRequest},
		{"loop without value", "loop", `{}`, http.StatusBadRequest},
		{"malformed body", "step", `{"n":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/playback/"+tc.action, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/playback/play", "").Code)
}

func TestPlaybackStream(t *testing.T) {
	f := newFixture(t, true, nil)
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/playback/stream", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	events := bufio.NewScanner(resp.Body)
	events.Buffer(make([]byte, 0, 64<<10), 1<<20)

	first := nextFrameEvent(t, events)
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 1, first.Count)

	f.player.Step(2)
	second := nextFrameEvent(t, events)
	assert.Equal(t, 2, second.Index)
	assert.Equal(t, "2023-02-08", second.Date)
	assert.Equal(t, 2, second.Count)
}

func nextFrameEvent(t *testing.T, s *bufio.Scanner) featureCollection {
	t.Helper()
	for s.Scan() {
		line := s.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var fc featureCollection
			require.NoError(t, json.Unmarshal([]byte(data), &fc))
			return fc
		}
	}
	require.NoError(t, s.Err())
	t.Fatal("stream ended before a frame event")
	return featureCollection{}
}
