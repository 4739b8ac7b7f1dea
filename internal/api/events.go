package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rscheiwe/open-skills/internal/model"
	"github.com/rscheiwe/open-skills/internal/store"
)

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify the run exists.
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run for events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Subscribe before the first write. A run that finished between the
	// existence check and this call still yields its terminal snapshot:
	// closed topics hand late subscribers the final status, then the
	// channel closes.
	sub := s.engine.Bus().Subscribe(id)
	defer sub.Cancel()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				if err := sub.Err(); err != nil {
					s.logger.Warn("event subscriber dropped", "run_id", id, "error", err)
					_ = writeSSE(w, model.EventError, model.ErrorPayload("event stream fell behind"))
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("marshal event", "run_id", id, "error", err)
				return
			}
			if err := writeSSE(w, ev.Kind, data); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
			if ev.Kind == model.EventComplete {
				return
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// writeSSE writes one server-sent event (event: <kind>\ndata: <json>\n\n).
// Data is always compact JSON, so no multi-line splitting is needed.
func writeSSE(w http.ResponseWriter, kind string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, data)
	return err
}
