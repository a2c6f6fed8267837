// Package projects implements organization-scoped project CRUD with soft
// deletion. All reads and writes are filtered by organization id; a
// missing, soft-deleted, or foreign project is reported with one identical
// not-found error so existence never leaks across tenants.
package projects

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/rbac"
	"github.com/platinummonkey/workbench/pkg/storage/postgres"
	"github.com/platinummonkey/workbench/pkg/tenant"
)

// Project is one project row. Description is empty when unset.
type Project struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Service manages projects.
type Service struct {
	db    *sql.DB
	audit *audit.Recorder
}

// NewService creates a project service.
func NewService(db *sql.DB, recorder *audit.Recorder) *Service {
	return &Service{db: db, audit: recorder}
}

const projectColumns = "id, organization_id, name, description, deleted_at, created_at, updated_at"

func scanProject(row *sql.Row) (*Project, error) {
	p := &Project{}
	var description sql.NullString
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &description, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		p.Description = description.String
	}
	return p, nil
}

// normalizeFields trims the name and description; a too-short name is
// rejected and an empty description becomes NULL.
func normalizeFields(name, description string) (string, sql.NullString, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return "", sql.NullString{}, errs.New(errs.KindInvalidArgument, "project name must be at least 2 characters")
	}
	description = strings.TrimSpace(description)
	return name, sql.NullString{String: description, Valid: description != ""}, nil
}

// List returns the organization's non-deleted projects, newest first.
func (s *Service) List(ctx context.Context, orgID int64) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC`,
		orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p := &Project{}
		var description sql.NullString
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &description, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		if description.Valid {
			p.Description = description.String
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Get returns one non-deleted project scoped to the organization.
func (s *Service) Get(ctx context.Context, orgID, projectID int64) (*Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL",
		projectID, orgID))
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// Create inserts a project and its audit entry atomically. Requires ADMIN
// or OWNER.
func (s *Service) Create(ctx context.Context, actor *tenant.Context, name, description string) (*Project, error) {
	if err := rbac.RequireAdmin(actor.Role); err != nil {
		return nil, err
	}
	name, desc, err := normalizeFields(name, description)
	if err != nil {
		return nil, err
	}

	return postgres.WithTxResult(ctx, s.db, func(tx *sql.Tx) (*Project, error) {
		p, err := scanProject(tx.QueryRowContext(ctx, `
			INSERT INTO projects (organization_id, name, description)
			VALUES ($1, $2, $3)
			RETURNING `+projectColumns,
			actor.OrgID, name, desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create project: %w", err)
		}

		err = s.audit.Append(ctx, tx, &audit.Entry{
			OrganizationID: actor.OrgID,
			ActorUserID:    &actor.UserID,
			Action:         audit.ActionProjectCreate,
			TargetType:     audit.TargetProject,
			TargetID:       &p.ID,
			Metadata:       map[string]interface{}{"name": p.Name},
		})
		if err != nil {
			return nil, err
		}

		return p, nil
	})
}

// Update renames a project and/or replaces its description, plus the audit
// entry, atomically. Requires ADMIN or OWNER.
func (s *Service) Update(ctx context.Context, actor *tenant.Context, projectID int64, name, description string) (*Project, error) {
	if err := rbac.RequireAdmin(actor.Role); err != nil {
		return nil, err
	}
	name, desc, err := normalizeFields(name, description)
	if err != nil {
		return nil, err
	}

	return postgres.WithTxResult(ctx, s.db, func(tx *sql.Tx) (*Project, error) {
		p, err := scanProject(tx.QueryRowContext(ctx, `
			UPDATE projects
			SET name = $1, description = $2, updated_at = NOW()
			WHERE id = $3 AND organization_id = $4 AND deleted_at IS NULL
			RETURNING `+projectColumns,
			name, desc, projectID, actor.OrgID))
		if err == sql.ErrNoRows {
			return nil, errs.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update project: %w", err)
		}

		err = s.audit.Append(ctx, tx, &audit.Entry{
			OrganizationID: actor.OrgID,
			ActorUserID:    &actor.UserID,
			Action:         audit.ActionProjectUpdate,
			TargetType:     audit.TargetProject,
			TargetID:       &p.ID,
			Metadata:       map[string]interface{}{"name": p.Name},
		})
		if err != nil {
			return nil, err
		}

		return p, nil
	})
}

// SoftDelete sets the deletion marker and writes the audit entry
// atomically. Requires ADMIN or OWNER. The row stays addressable for
// audit and report history.
func (s *Service) SoftDelete(ctx context.Context, actor *tenant.Context, projectID int64) error {
	if err := rbac.RequireAdmin(actor.Role); err != nil {
		return err
	}

	return postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := scanProject(tx.QueryRowContext(ctx, `
			UPDATE projects
			SET deleted_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
			RETURNING `+projectColumns,
			projectID, actor.OrgID))
		if err == sql.ErrNoRows {
			return errs.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}

		return s.audit.Append(ctx, tx, &audit.Entry{
			OrganizationID: actor.OrgID,
			ActorUserID:    &actor.UserID,
			Action:         audit.ActionProjectDelete,
			TargetType:     audit.TargetProject,
			TargetID:       &p.ID,
			Metadata:       map[string]interface{}{"name": p.Name},
		})
	})
}
