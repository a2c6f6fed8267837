package tenant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/identity"
	"github.com/platinummonkey/workbench/pkg/rbac"
)

// Context is the validated tenant context for one request. It is resolved
// once per request and treated as immutable for the request's duration.
type Context struct {
	UserID  int64     `json:"user_id"`
	OrgID   int64     `json:"org_id"`
	Role    rbac.Role `json:"role"`
	OrgName string    `json:"org_name"`
	Plan    string    `json:"plan"`
}

// Resolver produces a Context from an authenticated principal and the
// session's active-organization hint.
type Resolver struct {
	db       *sql.DB
	users    *identity.Store
	sessions *SessionStore
}

// NewResolver creates a tenant context resolver.
func NewResolver(db *sql.DB, users *identity.Store, sessions *SessionStore) *Resolver {
	return &Resolver{db: db, users: users, sessions: sessions}
}

// Resolve validates the principal, the session's org selection, and the
// membership binding them. Distinguishes a missing selection (route to
// onboarding/selection) from a stale one (clear the hint, then re-select).
func (r *Resolver) Resolve(ctx context.Context, principalID, sessionID string) (*Context, error) {
	if principalID == "" {
		return nil, errs.ErrUnauthenticated
	}

	user, err := r.users.FindByExternalID(ctx, principalID)
	if err != nil {
		if errs.KindOf(err) == errs.KindUserNotFound {
			return nil, errs.ErrUnauthenticated
		}
		return nil, err
	}

	orgID, ok, err := r.sessions.GetActiveOrg(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrNoActiveOrg
	}

	// One membership+organization join so downstream RBAC and usage-limit
	// lookups need no second query.
	query := `
		SELECT m.role, o.name, o.plan
		FROM memberships m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1 AND m.organization_id = $2
	`
	tc := &Context{UserID: user.ID, OrgID: orgID}
	err = r.db.QueryRowContext(ctx, query, user.ID, orgID).Scan(&tc.Role, &tc.OrgName, &tc.Plan)
	if err == sql.ErrNoRows {
		// The hint is stale or forged; the caller clears it before
		// re-entering selection.
		return nil, errs.ErrStaleOrgSelection
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}

	return tc, nil
}
