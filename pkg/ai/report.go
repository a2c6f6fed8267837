package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/rbac"
	"github.com/platinummonkey/workbench/pkg/storage/postgres"
	"github.com/platinummonkey/workbench/pkg/tenant"
	"github.com/platinummonkey/workbench/pkg/usage"
)

const reportFeature = "project_report"

const reportSystemInstruction = "You generate practical project status reports for internal product teams."

// Report is one generated project status report plus the usage snapshot
// after accounting for it.
type Report struct {
	ProjectID   int64         `json:"project_id"`
	ProjectName string        `json:"project_name"`
	Output      string        `json:"output"`
	Model       string        `json:"model"`
	TokensIn    int           `json:"tokens_in"`
	TokensOut   int           `json:"tokens_out"`
	Usage       *usage.Record `json:"usage"`
}

// HistoryEntry is one past report reconstructed from the audit trail.
type HistoryEntry struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	ProjectName string    `json:"project_name"`
	Model       string    `json:"model"`
	Output      string    `json:"output"`
	ActorName   string    `json:"actor_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReportService generates project status reports. The provider call runs
// before the accounting transaction so a slow external call never holds
// the usage row lock; its result is treated as a pure input.
type ReportService struct {
	db       *sql.DB
	provider Provider
	projects *projects.Service
	usage    *usage.Engine
	audit    *audit.Recorder
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewReportService creates a report service.
func NewReportService(db *sql.DB, provider Provider, projectSvc *projects.Service, usageEngine *usage.Engine, recorder *audit.Recorder, metrics *observability.Metrics) *ReportService {
	return &ReportService{
		db:       db,
		provider: provider,
		projects: projectSvc,
		usage:    usageEngine,
		audit:    recorder,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Generate produces a status report for the project. Requires ADMIN or
// OWNER and one free slot of the monthly quota. On success the AIRequest
// row, the usage increment, and the audit entry embedding the full output
// commit together.
func (s *ReportService) Generate(ctx context.Context, actor *tenant.Context, projectID int64) (*Report, error) {
	if err := rbac.RequireAdmin(actor.Role); err != nil {
		return nil, err
	}

	plan := usage.Plan(actor.Plan)
	if _, err := s.usage.AssertWithinLimit(ctx, actor.OrgID, plan, s.now()); err != nil {
		if errors.Is(err, errs.ErrUsageLimitExceeded) {
			s.metrics.UsageLimitRejections.Inc()
			s.metrics.AIGenerationsTotal.WithLabelValues("limit_rejected").Inc()
		}
		return nil, err
	}

	project, err := s.projects.Get(ctx, actor.OrgID, projectID)
	if err != nil {
		return nil, err
	}

	started := s.now()
	result, err := s.provider.Generate(ctx, &Request{
		Prompt:            buildReportPrompt(project),
		SystemInstruction: reportSystemInstruction,
		FallbackText:      buildFallbackReport(project),
	})
	s.metrics.AIGenerationDuration.Observe(s.now().Sub(started).Seconds())
	if err != nil {
		s.metrics.AIGenerationsTotal.WithLabelValues("provider_error").Inc()
		if errs.KindOf(err) == errs.KindAIProviderError {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindAIProviderError, "text generation failed", err)
	}

	tokensIn := result.TokensIn
	if tokensIn == 0 {
		tokensIn = EstimateTokens(project.Name + "\n" + project.Description)
	}
	tokensOut := result.TokensOut
	if tokensOut == 0 {
		tokensOut = EstimateTokens(result.Text)
	}
	now := s.now()

	report, err := postgres.WithTxResult(ctx, s.db, func(tx *sql.Tx) (*Report, error) {
		// Authoritative limit check: time may have passed since the
		// pre-check, so re-derive under the row lock.
		rec, err := s.usage.EnsureCurrent(ctx, tx, actor.OrgID, now)
		if err != nil {
			return nil, err
		}
		if rec.AIRequestsCount >= usage.LimitForPlan(plan) {
			return nil, errs.New(errs.KindUsageLimitExceeded,
				fmt.Sprintf("%d of %d monthly AI requests used", rec.AIRequestsCount, usage.LimitForPlan(plan)))
		}

		var aiRequestID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO ai_requests (organization_id, user_id, feature, model, tokens_in, tokens_out)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			actor.OrgID, actor.UserID, reportFeature, result.Model, tokensIn, tokensOut).Scan(&aiRequestID)
		if err != nil {
			return nil, fmt.Errorf("failed to record AI request: %w", err)
		}

		updated, err := s.usage.Increment(ctx, tx, actor.OrgID, int64(tokensIn+tokensOut), now)
		if err != nil {
			return nil, err
		}

		err = s.audit.Append(ctx, tx, &audit.Entry{
			OrganizationID: actor.OrgID,
			ActorUserID:    &actor.UserID,
			Action:         audit.ActionAIProjectReport,
			TargetType:     audit.TargetProject,
			TargetID:       &project.ID,
			Metadata: map[string]interface{}{
				"projectId":   project.ID,
				"projectName": project.Name,
				"model":       result.Model,
				"aiRequestId": aiRequestID,
				"tokensIn":    tokensIn,
				"tokensOut":   tokensOut,
				"output":      result.Text,
			},
		})
		if err != nil {
			return nil, err
		}

		return &Report{
			ProjectID:   project.ID,
			ProjectName: project.Name,
			Output:      result.Text,
			Model:       result.Model,
			TokensIn:    tokensIn,
			TokensOut:   tokensOut,
			Usage:       updated,
		}, nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrUsageLimitExceeded) {
			s.metrics.UsageLimitRejections.Inc()
			s.metrics.AIGenerationsTotal.WithLabelValues("limit_rejected").Inc()
		}
		return nil, err
	}

	s.metrics.AIGenerationsTotal.WithLabelValues("success").Inc()
	return report, nil
}

// History reconstructs past reports from the audit trail, newest first.
// Entries whose metadata lack a string output are skipped rather than
// failing the read; the metadata shape is allowed to drift across
// versions.
func (s *ReportService) History(ctx context.Context, orgID int64, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.target_id, a.metadata, a.created_at, COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_user_id
		WHERE a.organization_id = $1 AND a.action = $2 AND a.target_type = $3
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $4`,
		orgID, audit.ActionAIProjectReport, audit.TargetProject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list report history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var (
			id           int64
			targetID     sql.NullInt64
			metadataJSON []byte
			createdAt    time.Time
			name, email  string
		)
		if err := rows.Scan(&id, &targetID, &metadataJSON, &createdAt, &name, &email); err != nil {
			return nil, fmt.Errorf("failed to scan report history row: %w", err)
		}

		entry := decodeHistoryMetadata(metadataJSON)
		if entry == nil {
			continue
		}
		entry.ID = id
		entry.CreatedAt = createdAt
		if entry.ProjectID == 0 && targetID.Valid {
			entry.ProjectID = targetID.Int64
		}
		entry.ActorName = name
		if entry.ActorName == "" {
			entry.ActorName = email
		}
		if entry.ActorName == "" {
			entry.ActorName = "Unknown user"
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// decodeHistoryMetadata turns an audit metadata document back into a
// history entry, or nil when the shape does not match.
func decodeHistoryMetadata(metadataJSON []byte) *HistoryEntry {
	if len(metadataJSON) == 0 {
		return nil
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		return nil
	}
	output, ok := metadata["output"].(string)
	if !ok {
		return nil
	}

	entry := &HistoryEntry{Output: output, ProjectName: "Unknown project", Model: "unknown"}
	if name, ok := metadata["projectName"].(string); ok && name != "" {
		entry.ProjectName = name
	}
	if model, ok := metadata["model"].(string); ok && model != "" {
		entry.Model = model
	}
	if id, ok := metadata["projectId"].(float64); ok {
		entry.ProjectID = int64(id)
	}
	return entry
}

// buildReportPrompt renders the deterministic prompt from project fields.
func buildReportPrompt(p *projects.Project) string {
	description := p.Description
	if description == "" {
		description = "None provided"
	}
	return strings.Join([]string{
		"Generate a concise project status report for an internal SaaS team.",
		"Use clear sections and practical next steps.",
		"",
		"Project name: " + p.Name,
		"Project description: " + description,
		"Created at: " + p.CreatedAt.UTC().Format(time.RFC3339),
		"Updated at: " + p.UpdatedAt.UTC().Format(time.RFC3339),
	}, "\n")
}

// buildFallbackReport renders the locally templated status report used
// when no external provider is configured.
func buildFallbackReport(p *projects.Project) string {
	summary := strings.TrimSpace(p.Description)
	if summary == "" {
		summary = "No project description provided yet."
	}
	return strings.Join([]string{
		"Project Status Report: " + p.Name,
		"",
		"Current Summary",
		summary,
		"",
		"Status Assessment",
		"- Scope is defined at a high level and ready for team review.",
		"- Recommended next step: confirm owners, milestones, and delivery date.",
		"- Last project update recorded: " + p.UpdatedAt.UTC().Format(time.RFC3339) + ".",
		"",
		"Suggested Immediate Actions",
		"1. Confirm success criteria for the next milestone.",
		"2. Break work into 2-5 concrete deliverables.",
		"3. Track risks/blockers weekly and update status notes.",
	}, "\n")
}
