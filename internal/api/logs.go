package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rscheiwe/open-skills/internal/store"
)

// logLineResponse is a single log line in the logs response.
type logLineResponse struct {
	Seq       int    `json:"seq"`
	Stream    string `json:"stream"`
	Line      string `json:"line"`
	CreatedAt string `json:"created_at"`
}

// logsResponse is the JSON response for GET /api/v1/runs/{id}/logs.
type logsResponse struct {
	RunID string            `json:"run_id"`
	Lines []logLineResponse `json:"lines"`
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify the run exists.
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run for logs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	afterSeq := parseIntQuery(r, "after_seq", 0)
	limit := parseIntQuery(r, "limit", 0)
	if afterSeq < 0 {
		afterSeq = 0
	}
	if limit < 0 {
		limit = 0
	}

	logLines, err := s.store.GetLogLines(r.Context(), id, afterSeq, limit)
	if err != nil {
		s.logger.Error("get log lines", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get log lines")
		return
	}

	lines := make([]logLineResponse, len(logLines))
	for i, l := range logLines {
		lines[i] = logLineResponse{
			Seq:       l.Seq,
			Stream:    l.Stream,
			Line:      l.Line,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		}
	}

	s.writeJSON(w, http.StatusOK, logsResponse{
		RunID: id,
		Lines: lines,
	})
}
