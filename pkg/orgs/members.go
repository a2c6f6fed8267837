package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/rbac"
	"github.com/platinummonkey/workbench/pkg/storage/postgres"
	"github.com/platinummonkey/workbench/pkg/tenant"
)

// Member is a membership joined with the user's display fields.
type Member struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Role      rbac.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
}

// ListMembers returns all memberships of the organization in creation
// order, joined with user display fields.
func (s *Service) ListMembers(ctx context.Context, orgID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.role, m.created_at, u.email, COALESCE(u.name, ''), COALESCE(u.image_url, '')
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.created_at ASC`,
		orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.CreatedAt, &m.Email, &m.Name, &m.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMemberByEmail adds an existing user to the actor's organization.
// Only OWNERs may invite. The email must match an existing user; no
// implicit user creation. Membership insert and audit entry commit
// together.
func (s *Service) AddMemberByEmail(ctx context.Context, actor *tenant.Context, email string, role rbac.Role) (*Member, error) {
	if err := rbac.RequireOwner(actor.Role); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, errs.New(errs.KindInvalidArgument, fmt.Sprintf("unknown role %q", role))
	}

	return postgres.WithTxResult(ctx, s.db, func(tx *sql.Tx) (*Member, error) {
		user, err := s.users.FindByEmail(ctx, tx, email)
		if err != nil {
			return nil, err
		}

		var exists bool
		err = tx.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM memberships WHERE user_id = $1 AND organization_id = $2)",
			user.ID, actor.OrgID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing membership: %w", err)
		}
		if exists {
			return nil, errs.ErrAlreadyMember
		}

		m := &Member{UserID: user.ID, Role: role, Email: user.Email, Name: user.Name, ImageURL: user.ImageURL}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO memberships (organization_id, user_id, role)
			VALUES ($1, $2, $3)
			RETURNING id, created_at`,
			actor.OrgID, user.ID, role).Scan(&m.ID, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to add member: %w", err)
		}

		err = s.audit.Append(ctx, tx, &audit.Entry{
			OrganizationID: actor.OrgID,
			ActorUserID:    &actor.UserID,
			Action:         audit.ActionMembershipAdd,
			TargetType:     audit.TargetMembership,
			TargetID:       &m.ID,
			Metadata:       map[string]interface{}{"userId": user.ID, "email": user.Email, "role": string(role)},
		})
		if err != nil {
			return nil, err
		}

		return m, nil
	})
}

// ChangeMemberRole updates a membership's role. Only OWNERs may change
// roles. A no-op change returns the current state without an audit entry.
// Demoting the only OWNER fails; the owner count is taken inside the same
// transaction that performs the change, with the membership row locked.
func (s *Service) ChangeMemberRole(ctx context.Context, actor *tenant.Context, membershipID int64, newRole rbac.Role) (*Member, error) {
	if err := rbac.RequireOwner(actor.Role); err != nil {
		return nil, err
	}
	if !newRole.Valid() {
		return nil, errs.New(errs.KindInvalidArgument, fmt.Sprintf("unknown role %q", newRole))
	}

	return postgres.WithTxResult(ctx, s.db, func(tx *sql.Tx) (*Member, error) {
		m, err := lockMembership(ctx, tx, actor.OrgID, membershipID)
		if err != nil {
			return nil, err
		}

		if m.Role == newRole {
			return m, nil
		}

		if m.Role == rbac.RoleOwner && newRole != rbac.RoleOwner {
			if err := requireAnotherOwner(ctx, tx, actor.OrgID, membershipID); err != nil {
				return nil, err
			}
		}

		fromRole := m.Role
		_, err = tx.ExecContext(ctx, "UPDATE memberships SET role = $1 WHERE id = $2", newRole, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to change member role: %w", err)
		}
		m.Role = newRole

		err = s.audit.Append(ctx, tx, &audit.Entry{
			OrganizationID: actor.OrgID,
			ActorUserID:    &actor.UserID,
			Action:         audit.ActionMembershipRoleUpdate,
			TargetType:     audit.TargetMembership,
			TargetID:       &m.ID,
			Metadata:       map[string]interface{}{"userId": m.UserID, "fromRole": string(fromRole), "toRole": string(newRole)},
		})
		if err != nil {
			return nil, err
		}

		return m, nil
	})
}

// RemoveMember deletes a membership. Only OWNERs may remove members, and
// the organization's last OWNER cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, actor *tenant.Context, membershipID int64) error {
	if err := rbac.RequireOwner(actor.Role); err != nil {
		return err
	}

	return postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		m, err := lockMembership(ctx, tx, actor.OrgID, membershipID)
		if err != nil {
			return err
		}

		if m.Role == rbac.RoleOwner {
			if err := requireAnotherOwner(ctx, tx, actor.OrgID, membershipID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM memberships WHERE id = $1", m.ID)
		if err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}

		return s.audit.Append(ctx, tx, &audit.Entry{
			OrganizationID: actor.OrgID,
			ActorUserID:    &actor.UserID,
			Action:         audit.ActionMembershipRemove,
			TargetType:     audit.TargetMembership,
			TargetID:       &m.ID,
			Metadata:       map[string]interface{}{"userId": m.UserID, "role": string(m.Role)},
		})
	})
}

// lockMembership loads the membership scoped to the organization and
// locks its row for the remainder of the transaction. Cross-tenant and
// missing ids produce the same not-found error.
func lockMembership(ctx context.Context, tx *sql.Tx, orgID, membershipID int64) (*Member, error) {
	m := &Member{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, role, created_at
		FROM memberships
		WHERE id = $1 AND organization_id = $2
		FOR UPDATE`,
		membershipID, orgID).Scan(&m.ID, &m.UserID, &m.Role, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	return m, nil
}

// requireAnotherOwner fails when membershipID is the organization's only
// OWNER membership.
func requireAnotherOwner(ctx context.Context, tx *sql.Tx, orgID, membershipID int64) error {
	var others int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memberships WHERE organization_id = $1 AND role = $2 AND id != $3",
		orgID, rbac.RoleOwner, membershipID).Scan(&others)
	if err != nil {
		return fmt.Errorf("failed to count owners: %w", err)
	}
	if others == 0 {
		return errs.ErrLastOwner
	}
	return nil
}
