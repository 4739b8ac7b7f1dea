package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rscheiwe/open-skills/internal/model"
	"github.com/rscheiwe/open-skills/internal/skill"
	"github.com/rscheiwe/open-skills/internal/store"
)

// publishSkillRequest is the JSON body for POST /api/v1/skills. The bundle
// must already be on a path the server can read.
type publishSkillRequest struct {
	BundleDir string `json:"bundle_dir"`
}

// skillWithVersions is one registry entry plus its published versions,
// newest first.
type skillWithVersions struct {
	*model.Skill
	Versions []*model.SkillVersion `json:"versions"`
}

func (s *Server) handlePublishSkill(w http.ResponseWriter, r *http.Request) {
	var req publishSkillRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BundleDir == "" {
		s.writeError(w, http.StatusBadRequest, "bundle_dir is required")
		return
	}

	bundle, err := skill.LoadBundle(req.BundleDir)
	if err != nil {
		var verr *skill.ValidationError
		if errors.As(err, &verr) {
			s.writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		s.logger.Error("load bundle", "dir", req.BundleDir, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load bundle")
		return
	}

	version := bundle.Version()
	if err := s.store.PutSkillVersion(r.Context(), version); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			s.writeError(w, http.StatusConflict, version.FullName()+" is already published")
			return
		}
		s.logger.Error("publish skill", "skill", version.FullName(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to publish skill")
		return
	}

	s.logger.Info("skill published", "skill", version.FullName(), "bundle_dir", bundle.Dir)
	s.writeJSON(w, http.StatusCreated, version)
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := s.store.ListSkills(r.Context())
	if err != nil {
		s.logger.Error("list skills", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list skills")
		return
	}

	out := make([]skillWithVersions, 0, len(skills))
	for _, sk := range skills {
		versions, err := s.store.ListSkillVersions(r.Context(), sk.Name)
		if err != nil {
			s.logger.Error("list skill versions", "skill", sk.Name, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to list skills")
			return
		}
		out = append(out, skillWithVersions{Skill: sk, Versions: versions})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"skills": out})
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	sk, err := s.store.GetSkill(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "skill not found")
		return
	}
	if err != nil {
		s.logger.Error("get skill", "skill", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get skill")
		return
	}

	versions, err := s.store.ListSkillVersions(r.Context(), name)
	if err != nil {
		s.logger.Error("list skill versions", "skill", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get skill")
		return
	}

	s.writeJSON(w, http.StatusOK, skillWithVersions{Skill: sk, Versions: versions})
}
