package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/orgs"
	"github.com/platinummonkey/workbench/pkg/rbac"
)

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	members, err := s.orgs.ListMembers(r.Context(), tc.OrgID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if members == nil {
		members = []*orgs.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errs.New(errs.KindInvalidArgument, "invalid request body"))
		return
	}

	member, err := s.orgs.AddMemberByEmail(r.Context(), tc, req.Email, rbac.Role(req.Role))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) changeMemberRole(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	var req changeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errs.New(errs.KindInvalidArgument, "invalid request body"))
		return
	}

	member, err := s.orgs.ChangeMemberRole(r.Context(), tc, pathID(r), rbac.Role(req.Role))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	if err := s.orgs.RemoveMember(r.Context(), tc, pathID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
