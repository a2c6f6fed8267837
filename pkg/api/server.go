// Package api exposes the workspace core over HTTP. Identity verification
// happens upstream; handlers translate requests into service calls and
// service errors into the wire envelope.
package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/workbench/pkg/ai"
	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/identity"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/orgs"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/tenant"
	"github.com/platinummonkey/workbench/pkg/usage"
)

// Server is the HTTP API server.
type Server struct {
	router   *mux.Router
	logger   *observability.Logger
	metrics  *observability.Metrics
	db       *sql.DB
	users    *identity.Store
	resolver *tenant.Resolver
	sessions *tenant.SessionStore
	orgs     *orgs.Service
	projects *projects.Service
	usage    *usage.Engine
	reports  *ai.ReportService
	audit    *audit.Recorder
}

// Deps bundles the server's collaborators.
type Deps struct {
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	DB       *sql.DB
	Users    *identity.Store
	Resolver *tenant.Resolver
	Sessions *tenant.SessionStore
	Orgs     *orgs.Service
	Projects *projects.Service
	Usage    *usage.Engine
	Reports  *ai.ReportService
	Audit    *audit.Recorder
}

// NewServer creates the API server and wires its routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		db:       deps.DB,
		users:    deps.Users,
		resolver: deps.Resolver,
		sessions: deps.Sessions,
		orgs:     deps.Orgs,
		projects: deps.Projects,
		usage:    deps.Usage,
		reports:  deps.Reports,
		audit:    deps.Audit,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes. Routes under the org subrouter
// require a fully resolved tenant context; session and org-listing routes
// only need a principal.
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.principalMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.health).Methods("GET")

	// Identity and organization selection.
	s.router.HandleFunc("/session", s.signIn).Methods("POST")
	s.router.HandleFunc("/session/org", s.selectOrg).Methods("PUT")
	s.router.HandleFunc("/orgs", s.createOrg).Methods("POST")
	s.router.HandleFunc("/orgs", s.listOrgs).Methods("GET")

	// Org-scoped routes.
	scoped := s.router.NewRoute().Subrouter()
	scoped.Use(s.tenantMiddleware)
	scoped.HandleFunc("/members", s.listMembers).Methods("GET")
	scoped.HandleFunc("/members", s.addMember).Methods("POST")
	scoped.HandleFunc("/members/{id:[0-9]+}/role", s.changeMemberRole).Methods("PUT")
	scoped.HandleFunc("/members/{id:[0-9]+}", s.removeMember).Methods("DELETE")
	scoped.HandleFunc("/projects", s.listProjects).Methods("GET")
	scoped.HandleFunc("/projects", s.createProject).Methods("POST")
	scoped.HandleFunc("/projects/{id:[0-9]+}", s.updateProject).Methods("PUT")
	scoped.HandleFunc("/projects/{id:[0-9]+}", s.deleteProject).Methods("DELETE")
	scoped.HandleFunc("/projects/{id:[0-9]+}/report", s.generateReport).Methods("POST")
	scoped.HandleFunc("/reports", s.listReports).Methods("GET")
	scoped.HandleFunc("/usage", s.getUsage).Methods("GET")
	scoped.HandleFunc("/usage/consume", s.consumeUsage).Methods("POST")
	scoped.HandleFunc("/audit", s.listAuditLog).Methods("GET")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
