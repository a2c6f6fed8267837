package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/workbench/pkg/errs"
)

// errorBody is the JSON error envelope returned by every failing route.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusForKind maps domain error kinds to HTTP statuses. NO_ACTIVE_ORG
// and STALE_ORG_SELECTION both come back as 409 with distinct codes so
// the client can route to onboarding vs. the clear-and-reselect flow.
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindUnauthenticated:
		return http.StatusUnauthorized
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindNotFound, errs.KindUserNotFound:
		return http.StatusNotFound
	case errs.KindNoActiveOrg, errs.KindStaleOrgSelection, errs.KindAlreadyMember, errs.KindLastOwner:
		return http.StatusConflict
	case errs.KindInvalidArgument:
		return http.StatusBadRequest
	case errs.KindUsageLimitExceeded:
		return http.StatusTooManyRequests
	case errs.KindAIProviderError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// writeError maps a service error to the response envelope. Errors
// without a kind are unexpected and surface as an opaque 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := statusForKind(kind)

	if status == http.StatusInternalServerError {
		s.logger.WithField("path", r.URL.Path).WithError(err).Error("request failed")
		writeJSON(w, status, errorBody{Error: errorDetail{Code: "INTERNAL", Message: "internal error"}})
		return
	}

	var message string
	var tagged *errs.Error
	if errors.As(err, &tagged) {
		message = tagged.Message
	}
	if message == "" {
		message = err.Error()
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: codeForKind(kind), Message: message}})
}

// codeForKind converts a kind to the uppercase wire code clients branch on.
func codeForKind(kind errs.Kind) string {
	switch kind {
	case errs.KindUnauthenticated:
		return "UNAUTHENTICATED"
	case errs.KindNoActiveOrg:
		return "NO_ACTIVE_ORG"
	case errs.KindStaleOrgSelection:
		return "STALE_ORG_SELECTION"
	case errs.KindForbidden:
		return "FORBIDDEN"
	case errs.KindNotFound:
		return "NOT_FOUND"
	case errs.KindUserNotFound:
		return "USER_NOT_FOUND"
	case errs.KindAlreadyMember:
		return "ALREADY_MEMBER"
	case errs.KindLastOwner:
		return "LAST_OWNER"
	case errs.KindUsageLimitExceeded:
		return "USAGE_LIMIT_EXCEEDED"
	case errs.KindAIProviderError:
		return "AI_PROVIDER_ERROR"
	case errs.KindInvalidArgument:
		return "INVALID_ARGUMENT"
	}
	return "INTERNAL"
}
