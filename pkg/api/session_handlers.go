package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/workbench/pkg/contextkeys"
	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/identity"
)

// principalUser maps the request's principal to its user row. Routes that
// run before tenant resolution use this directly.
func (s *Server) principalUser(r *http.Request) (*identity.User, error) {
	principalID, _ := r.Context().Value(contextkeys.PrincipalKey).(string)
	if principalID == "" {
		return nil, errs.ErrUnauthenticated
	}
	user, err := s.users.FindByExternalID(r.Context(), principalID)
	if err != nil {
		if errs.KindOf(err) == errs.KindUserNotFound {
			return nil, errs.ErrUnauthenticated
		}
		return nil, err
	}
	return user, nil
}

// ensureSession returns the request's session id, minting a new cookie
// when the client has none yet.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) string {
	if sessionID, ok := r.Context().Value(contextkeys.SessionIDKey).(string); ok && sessionID != "" {
		return sessionID
	}
	sessionID := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sessionID
}

type signInRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// signIn upserts the user row for a verified principal. Display fields
// track the identity provider on every call.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	principalID, _ := r.Context().Value(contextkeys.PrincipalKey).(string)
	if principalID == "" {
		s.writeError(w, r, errs.ErrUnauthenticated)
		return
	}

	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errs.New(errs.KindInvalidArgument, "invalid request body"))
		return
	}
	if req.Email == "" {
		s.writeError(w, r, errs.New(errs.KindInvalidArgument, "email is required"))
		return
	}

	user, err := s.users.Upsert(r.Context(), principalID, req.Email, req.Name, req.ImageURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.ensureSession(w, r)
	writeJSON(w, http.StatusOK, user)
}

type selectOrgRequest struct {
	OrgID int64 `json:"orgId"`
}

// selectOrg persists the session's active organization after verifying
// the caller actually belongs to it.
func (s *Server) selectOrg(w http.ResponseWriter, r *http.Request) {
	user, err := s.principalUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req selectOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errs.New(errs.KindInvalidArgument, "invalid request body"))
		return
	}

	ok, err := s.orgs.HasMembership(r.Context(), user.ID, req.OrgID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, errs.ErrForbidden)
		return
	}

	sessionID := s.ensureSession(w, r)
	if err := s.sessions.SetActiveOrg(r.Context(), sessionID, req.OrgID); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"orgId": req.OrgID})
}
