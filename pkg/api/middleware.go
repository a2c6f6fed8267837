package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/workbench/pkg/contextkeys"
	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/tenant"
)

// PrincipalHeader carries the externally verified principal id. Identity
// verification is the upstream auth proxy's job; this service only maps
// the principal to its user row.
const PrincipalHeader = "X-Workbench-Principal"

// SessionCookie names the cookie holding the opaque session id that keys
// the active-organization selection.
const SessionCookie = "workbench_session"

// requestIDMiddleware tags every request with a UUID for log correlation.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextkeys.RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principalMiddleware extracts the principal header and session cookie
// into the request context. Absence is not an error here; routes that
// need them fail during tenant resolution.
func (s *Server) principalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextkeys.PrincipalKey, r.Header.Get(PrincipalHeader))
		if cookie, err := r.Cookie(SessionCookie); err == nil {
			ctx = context.WithValue(ctx, contextkeys.SessionIDKey, cookie.Value)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware emits one structured line and one metric sample per
// request, labeled by the route template rather than the raw path to keep
// cardinality bounded.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}
		duration := time.Since(started)

		s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())

		requestID, _ := r.Context().Value(contextkeys.RequestIDKey).(string)
		s.logger.WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        path,
			"status":      recorder.status,
			"duration_ms": duration.Milliseconds(),
			"request_id":  requestID,
		}).Info("request completed")
	})
}

// tenantMiddleware resolves the (user, org, role) context for org-scoped
// routes. A stale selection is cleared here so the client's next attempt
// starts from a clean state.
func (s *Server) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principalID, _ := r.Context().Value(contextkeys.PrincipalKey).(string)
		sessionID, _ := r.Context().Value(contextkeys.SessionIDKey).(string)

		tc, err := s.resolver.Resolve(r.Context(), principalID, sessionID)
		if err != nil {
			if errors.Is(err, errs.ErrStaleOrgSelection) && sessionID != "" {
				if clearErr := s.sessions.ClearActiveOrg(r.Context(), sessionID); clearErr != nil {
					s.logger.WithError(clearErr).Warn("failed to clear stale org selection")
				}
			}
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), contextkeys.TenantKey, tc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantFromRequest returns the resolved tenant context. Only reachable
// on routes behind tenantMiddleware.
func tenantFromRequest(r *http.Request) *tenant.Context {
	tc, _ := r.Context().Value(contextkeys.TenantKey).(*tenant.Context)
	return tc
}
