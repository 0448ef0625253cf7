package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-map-service/internal/domain"
	"github.com/couchcryptid/quake-map-service/internal/export"
)

const dayLayout = "2006-01-02"

var (
	errNotLoaded    = errors.New("earthquake catalog has not been loaded yet")
	errInvalidDate  = errors.New("dates must be formatted as YYYY-MM-DD")
	errPartialRange = errors.New("from and to must be given together")
	errInvalidIndex = errors.New("index must be a non-negative integer")
	errIndexAndDate = errors.New("index and date are mutually exclusive")
)

// statusFor maps domain and export errors to response codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, errNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) requireLoaded(w http.ResponseWriter) bool {
	if !s.catalog.Loaded() {
		writeError(w, http.StatusServiceUnavailable, errNotLoaded)
		return false
	}
	return true
}

// parseDay parses an optional YYYY-MM-DD query value as midnight in loc.
func parseDay(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dayLayout, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errInvalidDate, v)
	}
	return t, nil
}

func (s *Server) parseRange(r *http.Request) (from, to time.Time, err error) {
	loc := s.catalog.Location()
	q := r.URL.Query()
	if from, err = parseDay(q.Get("from"), loc); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to, err = parseDay(q.Get("to"), loc); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (s *Server) handleQuakes(w http.ResponseWriter, r *http.Request) {
	if !s.requireLoaded(w) {
		return
	}
	from, to, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	quakes := s.catalog.Quakes()
	switch {
	case from.IsZero() && to.IsZero():
	case from.IsZero() || to.IsZero():
		writeError(w, http.StatusBadRequest, errPartialRange)
		return
	default:
		quakes = domain.FilterRange(quakes, from, to, s.catalog.Location())
	}

	writeJSON(w, http.StatusOK, quakeCollection(quakes, s.mapCfg.Scale))
}

func (s *Server) handlePlates(w http.ResponseWriter, _ *http.Request) {
	if !s.requireLoaded(w) {
		return
	}
	writeJSON(w, http.StatusOK, plateCollection(s.catalog.Plates()))
}

type timelineResponse struct {
	Loaded   bool       `json:"loaded"`
	Start    string     `json:"start,omitempty"`
	End      string     `json:"end,omitempty"`
	Days     int        `json:"days"`
	Total    int        `json:"total"`
	Rejected int        `json:"rejected"`
	Location string     `json:"location"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

func (s *Server) handleTimeline(w http.ResponseWriter, _ *http.Request) {
	tl := s.catalog.Timeline()
	resp := timelineResponse{
		Days:     tl.Len(),
		Total:    tl.Total(),
		Location: tl.Location().String(),
	}
	if snap, ok := s.catalog.Snapshot(); ok {
		resp.Loaded = true
		resp.Rejected = snap.Rejected
		loadedAt := snap.LoadedAt
		resp.LoadedAt = &loadedAt
	}
	if tl.Len() > 0 {
		resp.Start = tl.Start().Format(dayLayout)
		resp.End = tl.End().Format(dayLayout)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if !s.requireLoaded(w) {
		return
	}
	q := r.URL.Query()
	index, err := s.frameIndex(q.Get("index"), q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	mode, err := domain.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	f, err := s.catalog.Frame(mode, index)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, frameCollection(f, s.mapCfg.Scale))
}

// frameIndex resolves a frame position given either as an index or as a
// YYYY-MM-DD day, which is clamped to the timeline range.
func (s *Server) frameIndex(index, date string) (int, error) {
	switch {
	case index != "" && date != "":
		return 0, errIndexAndDate
	case date != "":
		day, err := parseDay(date, s.catalog.Location())
		if err != nil {
			return 0, err
		}
		return s.catalog.Timeline().IndexOf(day), nil
	}
	i, err := strconv.Atoi(index)
	if err != nil || i < 0 {
		return 0, errInvalidIndex
	}
	return i, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !s.requireLoaded(w) {
		return
	}
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req := export.Request{Format: format}
	if v := q.Get("all"); v != "" {
		if req.All, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid all flag %q", v))
			return
		}
	}
	if !req.All {
		if req.From, req.To, err = s.parseRange(r); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	quakes, err := req.Select(s.catalog.Quakes(), s.catalog.Location())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, quakes); err != nil {
		s.logger.Error("export failed", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("export failed"))
		return
	}
	s.metrics.ExportsGenerated.WithLabelValues(string(format)).Inc()
	s.metrics.ExportRows.Observe(float64(len(quakes)))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w) //nolint:errcheck // client may have gone away
}
