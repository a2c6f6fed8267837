package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/usage"
)

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	summary, err := s.usage.Summary(r.Context(), tc.OrgID, usage.Plan(tc.Plan), time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type consumeUsageRequest struct {
	Tokens int64 `json:"tokens"`
}

// consumeUsage records one simulated metered request. Exists so the quota
// path can be exercised end to end without an AI provider.
func (s *Server) consumeUsage(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	var req consumeUsageRequest
	if r.Body != nil {
		// Body is optional; a missing or empty body consumes zero tokens.
		json.NewDecoder(r.Body).Decode(&req)
	}

	now := time.Now()
	plan := usage.Plan(tc.Plan)
	if _, err := s.usage.AssertWithinLimit(r.Context(), tc.OrgID, plan, now); err != nil {
		if errs.KindOf(err) == errs.KindUsageLimitExceeded {
			s.metrics.UsageLimitRejections.Inc()
		}
		s.writeError(w, r, err)
		return
	}

	rec, err := s.usage.IncrementStandalone(r.Context(), tc.OrgID, req.Tokens, now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
