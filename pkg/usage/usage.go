// Package usage implements the rolling monthly quota of metered AI
// requests per organization. The usage row is the principal point of
// contention; every read or increment locks it, rolls the window forward
// when stale, and releases the lock at commit.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/storage/postgres"
)

// Plan is an organization's subscription plan
type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

// Monthly AI request limits per plan. Policy values, not mechanism.
var aiRequestLimits = map[Plan]int{
	PlanFree: 25,
	PlanPro:  1000,
}

// LimitForPlan returns the monthly AI request limit for a plan. Unknown
// plans get the FREE limit.
func LimitForPlan(plan Plan) int {
	if limit, ok := aiRequestLimits[plan]; ok {
		return limit
	}
	return aiRequestLimits[PlanFree]
}

// MonthPeriod returns the half-open UTC calendar month [start, end)
// containing now.
func MonthPeriod(now time.Time) (start, end time.Time) {
	utc := now.UTC()
	start = time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// Record is one organization's usage row.
type Record struct {
	ID              int64     `json:"id"`
	OrganizationID  int64     `json:"organization_id"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	AIRequestsCount int       `json:"ai_requests_count"`
	TokensUsed      int64     `json:"tokens_used"`
}

// Summary is the quota view for one organization at one instant.
type Summary struct {
	Plan        Plan      `json:"plan"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Used        int       `json:"used"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	IsOverLimit bool      `json:"is_over_limit"`
	TokensUsed  int64     `json:"tokens_used"`
}

// Engine tracks per-organization usage.
type Engine struct {
	db *sql.DB
}

// NewEngine creates a usage engine.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

const recordColumns = "id, organization_id, period_start, period_end, ai_requests_count, tokens_used"

func scanRecord(row *sql.Row) (*Record, error) {
	rec := &Record{}
	err := row.Scan(&rec.ID, &rec.OrganizationID, &rec.PeriodStart, &rec.PeriodEnd,
		&rec.AIRequestsCount, &rec.TokensUsed)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// EnsureCurrent locks the organization's usage row and rolls the window
// forward if now >= period_end, resetting both counters. Must run inside
// a transaction so the lock covers the caller's subsequent read or write.
// A missing row is a storage inconsistency, not a user-facing condition.
func (e *Engine) EnsureCurrent(ctx context.Context, q postgres.Querier, orgID int64, now time.Time) (*Record, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM org_usage WHERE organization_id = $1 FOR UPDATE", orgID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("usage record not found for organization %d", orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}

	if now.Before(rec.PeriodEnd) {
		return rec, nil
	}

	start, end := MonthPeriod(now)
	rec, err = scanRecord(q.QueryRowContext(ctx, `
		UPDATE org_usage
		SET period_start = $1, period_end = $2, ai_requests_count = 0, tokens_used = 0, updated_at = NOW()
		WHERE id = $3
		RETURNING `+recordColumns,
		start, end, rec.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to roll usage period forward: %w", err)
	}

	return rec, nil
}

// Summary returns the quota view at now, rolling the window forward first
// when stale. Rollover and read are one atomic unit.
func (e *Engine) Summary(ctx context.Context, orgID int64, plan Plan, now time.Time) (*Summary, error) {
	rec, err := postgres.WithTxResult(ctx, e.db, func(tx *sql.Tx) (*Record, error) {
		return e.EnsureCurrent(ctx, tx, orgID, now)
	})
	if err != nil {
		return nil, err
	}
	return buildSummary(rec, plan), nil
}

func buildSummary(rec *Record, plan Plan) *Summary {
	limit := LimitForPlan(plan)
	remaining := limit - rec.AIRequestsCount
	if remaining < 0 {
		remaining = 0
	}
	return &Summary{
		Plan:        plan,
		PeriodStart: rec.PeriodStart,
		PeriodEnd:   rec.PeriodEnd,
		Used:        rec.AIRequestsCount,
		Limit:       limit,
		Remaining:   remaining,
		IsOverLimit: rec.AIRequestsCount >= limit,
		TokensUsed:  rec.TokensUsed,
	}
}

// AssertWithinLimit re-derives the summary and fails when the quota is
// exhausted. Callers must invoke this before attempting any metered
// action; the authoritative check is repeated inside the metered action's
// own transaction.
func (e *Engine) AssertWithinLimit(ctx context.Context, orgID int64, plan Plan, now time.Time) (*Summary, error) {
	summary, err := e.Summary(ctx, orgID, plan, now)
	if err != nil {
		return nil, err
	}
	if summary.Used >= summary.Limit {
		return nil, errs.New(errs.KindUsageLimitExceeded,
			fmt.Sprintf("%d of %d monthly AI requests used", summary.Used, summary.Limit))
	}
	return summary, nil
}

// Increment records one metered request plus tokensDelta tokens,
// rolling the window forward first when stale. It composes over a
// caller-supplied Querier so it can run standalone or join a larger
// transaction.
func (e *Engine) Increment(ctx context.Context, q postgres.Querier, orgID int64, tokensDelta int64, now time.Time) (*Record, error) {
	if tokensDelta < 0 {
		tokensDelta = 0
	}

	rec, err := e.EnsureCurrent(ctx, q, orgID, now)
	if err != nil {
		return nil, err
	}

	rec, err = scanRecord(q.QueryRowContext(ctx, `
		UPDATE org_usage
		SET ai_requests_count = ai_requests_count + 1, tokens_used = tokens_used + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+recordColumns,
		tokensDelta, rec.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	return rec, nil
}

// IncrementStandalone wraps Increment in its own transaction, for callers
// outside any larger unit of work (e.g. simulated test consumption).
func (e *Engine) IncrementStandalone(ctx context.Context, orgID int64, tokensDelta int64, now time.Time) (*Record, error) {
	return postgres.WithTxResult(ctx, e.db, func(tx *sql.Tx) (*Record, error) {
		return e.Increment(ctx, tx, orgID, tokensDelta, now)
	})
}

// InitRecord creates the usage row for a new organization, windowed to the
// month containing now. Runs inside the organization-creation transaction.
func (e *Engine) InitRecord(ctx context.Context, q postgres.Querier, orgID int64, now time.Time) (*Record, error) {
	start, end := MonthPeriod(now)
	rec, err := scanRecord(q.QueryRowContext(ctx, `
		INSERT INTO org_usage (organization_id, period_start, period_end)
		VALUES ($1, $2, $3)
		RETURNING `+recordColumns,
		orgID, start, end))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize usage record: %w", err)
	}
	return rec, nil
}
