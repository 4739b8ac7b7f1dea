package api

import (
	"net/http"
)

// asyncResponse carries the run ids created for an async execution request.
type asyncResponse struct {
	RunIDs []string `json:"run_ids"`
}

func (s *Server) handleExecuteRunsAsync(w http.ResponseWriter, r *http.Request) {
	reqs, strategy, ok := s.decodeExecuteRequest(w, r)
	if !ok {
		return
	}

	ids, err := s.engine.Submit(r.Context(), strategy, reqs)
	if err != nil {
		s.writeExecuteError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, asyncResponse{RunIDs: ids})
}
