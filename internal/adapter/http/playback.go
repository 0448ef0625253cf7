package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/quake-map-service/internal/domain"
	"github.com/couchcryptid/quake-map-service/internal/playback"
)

const (
	streamBuffer    = 16
	streamHeartbeat = 15 * time.Second
	maxActionBody   = 1 << 10
)

// actionRequest is the optional JSON body of a playback action.
type actionRequest struct {
	N     *int        `json:"n,omitempty"`
	Index *int        `json:"index,omitempty"`
	Date  string      `json:"date,omitempty"`
	Speed *float64    `json:"speed,omitempty"`
	Mode  domain.Mode `json:"mode,omitempty"`
	Loop  *bool       `json:"loop,omitempty"`
}

func (s *Server) handlePlaybackState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.player.State())
}

func (s *Server) handlePlaybackAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxActionBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	var (
		st  playback.State
		err error
	)
	switch action := r.PathValue("action"); action {
	case "play":
		st = s.player.Play()
	case "pause":
		st = s.player.Pause()
	case "toggle":
		st = s.player.Toggle()
	case "step":
		n := 1
		if req.N != nil {
			n = *req.N
		}
		st = s.player.Step(n)
	case "seek":
		var i int
		switch {
		case req.Index != nil && req.Date != "":
			writeError(w, http.StatusBadRequest, errIndexAndDate)
			return
		case req.Index != nil:
			i = *req.Index
		case req.Date != "":
			if !s.requireLoaded(w) {
				return
			}
			if i, err = s.frameIndex("", req.Date); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		default:
			writeError(w, http.StatusBadRequest, errors.New("seek requires index or date"))
			return
		}
		st, err = s.player.Seek(i)
	case "speed":
		if req.Speed == nil {
			writeError(w, http.StatusBadRequest, errors.New("speed requires speed"))
			return
		}
		st, err = s.player.SetSpeed(*req.Speed)
	case "mode":
		st, err = s.player.SetMode(req.Mode)
	case "loop":
		if req.Loop == nil {
			writeError(w, http.StatusBadRequest, errors.New("loop requires loop"))
			return
		}
		st = s.player.SetLoop(*req.Loop)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown playback action %q", action))
		return
	}

	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePlaybackStream sends every emitted frame as a server-sent event. The
// current frame is sent first so a new client can draw immediately.
func (s *Server) handlePlaybackStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("clear stream write deadline", "error", err)
	}

	frames, unsubscribe := s.player.Subscribe(streamBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	st := s.player.State()
	if st.Length > 0 {
		if f, err := s.catalog.Frame(st.Mode, st.Index); err == nil {
			if err := s.writeFrameEvent(w, f); err != nil {
				return
			}
		}
	}
	if err := rc.Flush(); err != nil {
		s.logger.Warn("stream flush unsupported", "error", err)
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case f, ok := <-frames:
			if !ok {
				fmt.Fprint(w, "event: done\ndata: end\n\n")
				rc.Flush() //nolint:errcheck // stream is ending
				return
			}
			if err := s.writeFrameEvent(w, f); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) writeFrameEvent(w io.Writer, f domain.Frame) error {
	b, err := json.Marshal(frameCollection(f, s.mapCfg.Scale))
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: frame\nid: %d\ndata: %s\n\n", f.Index, b)
	return err
}
