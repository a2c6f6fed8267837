// Package audit provides the append-only audit trail for privileged
// mutations. Entries are written inside the same transaction as the
// mutation they describe and are never updated or deleted, except by
// retention cleanup.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/workbench/pkg/storage/postgres"
)

// Action tags the kind of privileged mutation recorded.
type Action string

const (
	ActionOrgCreate            Action = "org.create"
	ActionMembershipAdd        Action = "membership.add"
	ActionMembershipRoleUpdate Action = "membership.role_update"
	ActionMembershipRemove     Action = "membership.remove"
	ActionProjectCreate        Action = "project.create"
	ActionProjectUpdate        Action = "project.update"
	ActionProjectDelete        Action = "project.delete"
	ActionAIProjectReport      Action = "ai.project_report.generate"
)

// Target types recorded alongside the action.
const (
	TargetOrganization = "Organization"
	TargetMembership   = "Membership"
	TargetProject      = "Project"
)

// Entry is one audit log record.
type Entry struct {
	ID             int64                  `json:"id"`
	OrganizationID int64                  `json:"organization_id"`
	ActorUserID    *int64                 `json:"actor_user_id,omitempty"`
	Action         Action                 `json:"action"`
	TargetType     string                 `json:"target_type"`
	TargetID       *int64                 `json:"target_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Recorder persists audit entries.
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a new audit recorder.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Append writes one entry. It takes a Querier so callers can bind the
// write into the transaction performing the audited mutation.
func (r *Recorder) Append(ctx context.Context, q postgres.Querier, entry *Entry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (organization_id, actor_user_id, action, target_type, target_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := q.QueryRowContext(ctx, query,
		entry.OrganizationID, entry.ActorUserID, entry.Action,
		entry.TargetType, entry.TargetID, metadataJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListByOrg returns the newest entries for an organization.
func (r *Recorder) ListByOrg(ctx context.Context, orgID int64, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, organization_id, actor_user_id, action, target_type, target_id, metadata, created_at
		FROM audit_logs
		WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		var metadataJSON []byte
		if err := rows.Scan(
			&entry.ID, &entry.OrganizationID, &entry.ActorUserID, &entry.Action,
			&entry.TargetType, &entry.TargetID, &metadataJSON, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Cleanup removes entries older than the retention cutoff and returns the
// number of rows deleted.
func (r *Recorder) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := r.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	return result.RowsAffected()
}
