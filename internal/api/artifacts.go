package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rscheiwe/open-skills/internal/model"
	"github.com/rscheiwe/open-skills/internal/store"
)

// artifactsResponse lists the artifact records captured for one run.
type artifactsResponse struct {
	RunID     string            `json:"run_id"`
	Artifacts []*model.Artifact `json:"artifacts"`
}

func (s *Server) handleListRunArtifacts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify the run exists.
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run for artifacts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	artifacts, err := s.store.ListArtifacts(r.Context(), id)
	if err != nil {
		s.logger.Error("list artifacts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list artifacts")
		return
	}
	if artifacts == nil {
		artifacts = []*model.Artifact{}
	}

	s.writeJSON(w, http.StatusOK, artifactsResponse{
		RunID:     id,
		Artifacts: artifacts,
	})
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	filename := chi.URLParam(r, "filename")

	a, err := s.store.GetArtifact(r.Context(), runID, filename)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if err != nil {
		s.logger.Error("get artifact", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get artifact")
		return
	}

	content, err := s.collector.Open(runID, filename)
	if err != nil {
		s.logger.Error("open artifact content", "run_id", runID, "filename", filename, "error", err)
		s.writeError(w, http.StatusInternalServerError, "artifact content unavailable")
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(a.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		s.logger.Error("stream artifact", "run_id", runID, "filename", filename, "error", err)
	}
}
