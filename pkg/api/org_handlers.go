package api

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/orgs"
)

type createOrgRequest struct {
	Name string `json:"name"`
}

// createOrg provisions a new organization with the caller as OWNER and
// selects it as the session's active organization.
func (s *Server) createOrg(w http.ResponseWriter, r *http.Request) {
	user, err := s.principalUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req createOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errs.New(errs.KindInvalidArgument, "invalid request body"))
		return
	}

	org, err := s.orgs.Create(r.Context(), user.ID, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sessionID := s.ensureSession(w, r)
	if err := s.sessions.SetActiveOrg(r.Context(), sessionID, org.ID); err != nil {
		s.logger.WithError(err).Warn("failed to select newly created org")
	}

	writeJSON(w, http.StatusCreated, org)
}

// listOrgs returns the caller's organizations for the selection flow.
func (s *Server) listOrgs(w http.ResponseWriter, r *http.Request) {
	user, err := s.principalUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summaries, err := s.orgs.ListForUser(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []*orgs.OrgSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}
