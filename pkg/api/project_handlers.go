package api

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/projects"
)

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	list, err := s.projects.List(r.Context(), tc.OrgID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*projects.Project{}
	}
	writeJSON(w, http.StatusOK, list)
}

type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errs.New(errs.KindInvalidArgument, "invalid request body"))
		return
	}

	project, err := s.projects.Create(r.Context(), tc, req.Name, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errs.New(errs.KindInvalidArgument, "invalid request body"))
		return
	}

	project, err := s.projects.Update(r.Context(), tc, pathID(r), req.Name, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	if err := s.projects.SoftDelete(r.Context(), tc, pathID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
