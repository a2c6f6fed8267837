// Package orgs implements organizations and their memberships. Every
// mutation here is privileged: it runs its RBAC guard first, then performs
// the write and its audit entry in one transaction.
package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/identity"
	"github.com/platinummonkey/workbench/pkg/rbac"
	"github.com/platinummonkey/workbench/pkg/storage/postgres"
	"github.com/platinummonkey/workbench/pkg/usage"
)

// Organization is one tenant.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrgSummary is one row of a user's organization switcher: the org joined
// with the user's role in it.
type OrgSummary struct {
	ID   int64     `json:"id"`
	Name string    `json:"name"`
	Plan string    `json:"plan"`
	Role rbac.Role `json:"role"`
}

// Service manages organizations and memberships.
type Service struct {
	db    *sql.DB
	users *identity.Store
	usage *usage.Engine
	audit *audit.Recorder
}

// NewService creates an organization service.
func NewService(db *sql.DB, users *identity.Store, usageEngine *usage.Engine, recorder *audit.Recorder) *Service {
	return &Service{db: db, users: users, usage: usageEngine, audit: recorder}
}

// Create provisions a new organization on the FREE plan with the creator
// as its OWNER, plus the usage row for the current month and the audit
// entry, all in one transaction.
func (s *Service) Create(ctx context.Context, userID int64, name string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return nil, errs.New(errs.KindInvalidArgument, "organization name must be at least 2 characters")
	}

	return postgres.WithTxResult(ctx, s.db, func(tx *sql.Tx) (*Organization, error) {
		org := &Organization{}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO organizations (name, plan)
			VALUES ($1, 'FREE')
			RETURNING id, name, plan, created_at, updated_at`,
			name).Scan(&org.ID, &org.Name, &org.Plan, &org.CreatedAt, &org.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create organization: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO memberships (organization_id, user_id, role) VALUES ($1, $2, $3)",
			org.ID, userID, rbac.RoleOwner)
		if err != nil {
			return nil, fmt.Errorf("failed to create owner membership: %w", err)
		}

		if _, err := s.usage.InitRecord(ctx, tx, org.ID, time.Now()); err != nil {
			return nil, err
		}

		err = s.audit.Append(ctx, tx, &audit.Entry{
			OrganizationID: org.ID,
			ActorUserID:    &userID,
			Action:         audit.ActionOrgCreate,
			TargetType:     audit.TargetOrganization,
			TargetID:       &org.ID,
			Metadata:       map[string]interface{}{"name": org.Name, "plan": org.Plan},
		})
		if err != nil {
			return nil, err
		}

		return org, nil
	})
}

// Get returns one organization by id.
func (s *Service) Get(ctx context.Context, orgID int64) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, plan, created_at, updated_at FROM organizations WHERE id = $1",
		orgID).Scan(&org.ID, &org.Name, &org.Plan, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// ListForUser returns the organizations the user belongs to, oldest
// membership first, with the user's role in each. Backs the selection flow.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]*OrgSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.name, o.plan, m.role
		FROM memberships m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1
		ORDER BY m.created_at ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var summaries []*OrgSummary
	for rows.Next() {
		s := &OrgSummary{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Plan, &s.Role); err != nil {
			return nil, fmt.Errorf("failed to scan organization summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// HasMembership reports whether the user belongs to the organization. The
// selection flow checks this before persisting an active-org hint.
func (s *Service) HasMembership(ctx context.Context, userID, orgID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM memberships WHERE user_id = $1 AND organization_id = $2)",
		userID, orgID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}
