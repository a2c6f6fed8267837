package api

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/workbench/pkg/ai"
	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/rbac"
)

func (s *Server) generateReport(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	report, err := s.reports.Generate(r.Context(), tc, pathID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.reports.History(r.Context(), tc.OrgID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*ai.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// listAuditLog is an admin/debug view over the raw audit trail.
func (s *Server) listAuditLog(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromRequest(r)

	if err := rbac.RequireAdmin(tc.Role); err != nil {
		s.writeError(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.audit.ListByOrg(r.Context(), tc.OrgID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
