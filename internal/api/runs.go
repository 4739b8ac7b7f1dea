package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rscheiwe/open-skills/internal/engine"
	"github.com/rscheiwe/open-skills/internal/model"
	"github.com/rscheiwe/open-skills/internal/skill"
	"github.com/rscheiwe/open-skills/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// executeRequest is the JSON body for POST /api/v1/runs. A single run may be
// given inline via the embedded fields; a group carries a strategy and a runs
// array instead.
type executeRequest struct {
	engine.RunRequest
	Strategy string              `json:"strategy"`
	Runs     []engine.RunRequest `json:"runs"`
}

// requests normalizes the body into the member list handed to the engine.
func (req *executeRequest) requests() []engine.RunRequest {
	if len(req.Runs) > 0 {
		return req.Runs
	}
	return []engine.RunRequest{req.RunRequest}
}

// executeResponse wraps the completed run records for a sync request.
type executeResponse struct {
	Results []executionResult `json:"results"`
}

// executionResult is a finished run decorated with its artifact references
// and captured log lines, so sync callers get the whole outcome in one
// response.
type executionResult struct {
	*model.Run
	Artifacts []artifactRef `json:"artifacts"`
	Logs      []string      `json:"logs"`
}

// artifactRef points a result at the download endpoint for one artifact.
type artifactRef struct {
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes"`
}

// listRunsResponse wraps the paginated list response.
type listRunsResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s *Server) handleExecuteRuns(w http.ResponseWriter, r *http.Request) {
	reqs, strategy, ok := s.decodeExecuteRequest(w, r)
	if !ok {
		return
	}

	// Sync requests wait for the runs to finish, which can take far longer
	// than the server's write timeout allows.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("clear write deadline", "error", err)
	}

	runs, err := s.engine.ExecuteMany(r.Context(), strategy, reqs)
	if err != nil {
		s.writeExecuteError(w, err)
		return
	}

	results := make([]executionResult, len(runs))
	for i, run := range runs {
		results[i] = s.decorateResult(r.Context(), run)
	}
	s.writeJSON(w, http.StatusOK, executeResponse{Results: results})
}

// decorateResult attaches a run's stored artifact references and log lines.
// A lookup failure is logged and leaves the slice empty; the sub-resource
// endpoints still have the data.
func (s *Server) decorateResult(ctx context.Context, run *model.Run) executionResult {
	res := executionResult{Run: run, Artifacts: []artifactRef{}, Logs: []string{}}

	artifacts, err := s.store.ListArtifacts(ctx, run.ID)
	if err != nil {
		s.logger.Error("list artifacts for result", "run_id", run.ID, "error", err)
	}
	for _, a := range artifacts {
		res.Artifacts = append(res.Artifacts, artifactRef{
			Filename:  a.Filename,
			URL:       "/api/v1/artifacts/" + run.ID + "/" + a.Filename,
			SizeBytes: a.SizeBytes,
		})
	}

	lines, err := s.store.GetLogLines(ctx, run.ID, 0, 0)
	if err != nil {
		s.logger.Error("get log lines for result", "run_id", run.ID, "error", err)
	}
	for _, l := range lines {
		res.Logs = append(res.Logs, l.Line)
	}
	return res
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.engine.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	case errors.Is(err, engine.ErrRunFinished):
		s.writeError(w, http.StatusConflict, "run already finished")
		return
	case err != nil:
		s.logger.Error("cancel run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to cancel run")
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error("get cancelled run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve run")
		return
	}

	s.writeJSON(w, http.StatusAccepted, run)
}

// decodeExecuteRequest parses and validates the shared body of the sync and
// async execution endpoints.
func (s *Server) decodeExecuteRequest(w http.ResponseWriter, r *http.Request) ([]engine.RunRequest, string, bool) {
	var req executeRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusBadRequest, "request body too large")
			return nil, "", false
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, "", false
	}

	if len(req.Runs) == 0 && req.Skill == "" {
		s.writeError(w, http.StatusBadRequest, "skill is required")
		return nil, "", false
	}
	reqs := req.requests()
	for i, member := range reqs {
		if member.Skill == "" {
			s.writeError(w, http.StatusBadRequest, "runs["+strconv.Itoa(i)+"]: skill is required")
			return nil, "", false
		}
		if member.TimeoutS < 0 {
			s.writeError(w, http.StatusBadRequest, "timeout_seconds must not be negative")
			return nil, "", false
		}
		if member.TimeoutS > s.cfg.MaxTimeoutS {
			s.writeError(w, http.StatusBadRequest,
				"timeout_seconds "+strconv.Itoa(member.TimeoutS)+" exceeds maximum "+strconv.Itoa(s.cfg.MaxTimeoutS))
			return nil, "", false
		}
	}
	return reqs, req.Strategy, true
}

// writeExecuteError maps an engine request failure to an HTTP status.
func (s *Server) writeExecuteError(w http.ResponseWriter, err error) {
	var verr *skill.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrInvalidStrategy), errors.Is(err, engine.ErrEmptyGroup):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrShuttingDown):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("execute runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to execute runs")
	}
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
