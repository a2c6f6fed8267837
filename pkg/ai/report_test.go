package ai

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/rbac"
	"github.com/platinummonkey/workbench/pkg/tenant"
	"github.com/platinummonkey/workbench/pkg/usage"
)

type stubProvider struct {
	result  *Result
	err     error
	lastReq *Request
}

func (p *stubProvider) Generate(_ context.Context, req *Request) (*Result, error) {
	p.lastReq = req
	return p.result, p.err
}

var reportNow = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

func newReportService(t *testing.T, provider Provider) (*ReportService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	recorder := audit.NewRecorder(db)
	svc := NewReportService(db, provider,
		projects.NewService(db, recorder),
		usage.NewEngine(db),
		recorder,
		observability.NewMetrics(prometheus.NewRegistry()))
	svc.now = func() time.Time { return reportNow }
	return svc, mock
}

func memberCtx() *tenant.Context {
	return &tenant.Context{UserID: 2, OrgID: 7, Role: rbac.RoleMember, Plan: "FREE"}
}

func adminCtx() *tenant.Context {
	return &tenant.Context{UserID: 1, OrgID: 7, Role: rbac.RoleAdmin, Plan: "FREE"}
}

func usageRows(count int, tokens int64) *sqlmock.Rows {
	start, end := usage.MonthPeriod(reportNow)
	return sqlmock.NewRows([]string{"id", "organization_id", "period_start", "period_end", "ai_requests_count", "tokens_used"}).
		AddRow(int64(3), int64(7), start, end, count, tokens)
}

func projectRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "organization_id", "name", "description", "deleted_at", "created_at", "updated_at"}).
		AddRow(int64(5), int64(7), "Apollo", "Lunar program", nil, reportNow.Add(-48*time.Hour), reportNow.Add(-time.Hour))
}

func TestGenerateRequiresAdmin(t *testing.T) {
	svc, mock := newReportService(t, &stubProvider{})

	_, err := svc.Generate(context.Background(), memberCtx(), 5)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet(), "guard failure must not touch storage")
}

func TestGeneratePreCheckRejectsExhaustedQuota(t *testing.T) {
	provider := &stubProvider{}
	svc, mock := newReportService(t, provider)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(usageRows(25, 1000))
	mock.ExpectCommit()

	_, err := svc.Generate(context.Background(), adminCtx(), 5)
	assert.Equal(t, errs.KindUsageLimitExceeded, errs.KindOf(err))
	assert.Nil(t, provider.lastReq, "provider must not be called past the limit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateProjectNotFound(t *testing.T) {
	svc, mock := newReportService(t, &stubProvider{})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(usageRows(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT .+ FROM projects").
		WithArgs(int64(99), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.Generate(context.Background(), adminCtx(), 99)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateProviderFailureLeavesNoDurableChange(t *testing.T) {
	svc, mock := newReportService(t, &stubProvider{err: errs.New(errs.KindAIProviderError, "upstream down")})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(usageRows(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT .+ FROM projects").
		WithArgs(int64(5), int64(7)).
		WillReturnRows(projectRows())

	_, err := svc.Generate(context.Background(), adminCtx(), 5)
	assert.Equal(t, errs.KindAIProviderError, errs.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet(), "no writes may happen after a provider failure")
}

func TestGenerateSuccess(t *testing.T) {
	provider := &stubProvider{result: &Result{Text: "Generated report.", Model: "gemini-1.5-flash", TokensIn: 42, TokensOut: 128}}
	svc, mock := newReportService(t, provider)

	// Pre-check.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(usageRows(10, 4200))
	mock.ExpectCommit()

	// Project load.
	mock.ExpectQuery("SELECT .+ FROM projects").
		WithArgs(int64(5), int64(7)).
		WillReturnRows(projectRows())

	// Accounting transaction.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(usageRows(10, 4200))
	mock.ExpectQuery("INSERT INTO ai_requests").
		WithArgs(int64(7), int64(1), reportFeature, "gemini-1.5-flash", 42, 128).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(usageRows(10, 4200))
	mock.ExpectQuery("UPDATE org_usage").
		WithArgs(int64(170), int64(3)).
		WillReturnRows(usageRows(11, 4370))
	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs(int64(7), int64(1), string(audit.ActionAIProjectReport), audit.TargetProject, int64(5), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(31), reportNow))
	mock.ExpectCommit()

	report, err := svc.Generate(context.Background(), adminCtx(), 5)
	require.NoError(t, err)

	assert.Equal(t, "Generated report.", report.Output)
	assert.Equal(t, "gemini-1.5-flash", report.Model)
	assert.Equal(t, 42, report.TokensIn)
	assert.Equal(t, 128, report.TokensOut)
	assert.Equal(t, 11, report.Usage.AIRequestsCount)

	require.NotNil(t, provider.lastReq)
	assert.Contains(t, provider.lastReq.Prompt, "Project name: Apollo")
	assert.Contains(t, provider.lastReq.FallbackText, "Project Status Report: Apollo")
	assert.Equal(t, reportSystemInstruction, provider.lastReq.SystemInstruction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateEstimatesTokensWhenUnreported(t *testing.T) {
	// 20-char output estimates to 5 tokens; prompt estimate comes from
	// name+description length.
	provider := &stubProvider{result: &Result{Text: "12345678901234567890", Model: FallbackModel}}
	svc, mock := newReportService(t, provider)

	wantIn := EstimateTokens("Apollo\nLunar program")
	wantOut := 5

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(usageRows(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT .+ FROM projects").
		WithArgs(int64(5), int64(7)).
		WillReturnRows(projectRows())
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(usageRows(0, 0))
	mock.ExpectQuery("INSERT INTO ai_requests").
		WithArgs(int64(7), int64(1), reportFeature, FallbackModel, wantIn, wantOut).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(22)))
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(usageRows(0, 0))
	mock.ExpectQuery("UPDATE org_usage").
		WithArgs(int64(wantIn+wantOut), int64(3)).
		WillReturnRows(usageRows(1, int64(wantIn+wantOut)))
	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs(int64(7), int64(1), string(audit.ActionAIProjectReport), audit.TargetProject, int64(5), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(32), reportNow))
	mock.ExpectCommit()

	report, err := svc.Generate(context.Background(), adminCtx(), 5)
	require.NoError(t, err)
	assert.Equal(t, wantIn, report.TokensIn)
	assert.Equal(t, wantOut, report.TokensOut)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateAuthoritativeRecheckFailsInsideTx(t *testing.T) {
	provider := &stubProvider{result: &Result{Text: "Generated report.", Model: FallbackModel}}
	svc, mock := newReportService(t, provider)

	// Pre-check passes with one slot left; a concurrent request takes it
	// before the accounting transaction re-reads under lock.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(usageRows(24, 9000))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT .+ FROM projects").
		WithArgs(int64(5), int64(7)).
		WillReturnRows(projectRows())
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(usageRows(25, 9400))
	mock.ExpectRollback()

	_, err := svc.Generate(context.Background(), adminCtx(), 5)
	assert.Equal(t, errs.KindUsageLimitExceeded, errs.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet(), "the losing request must leave no partial effect")
}

func TestHistoryDecodesAndSkipsMalformedMetadata(t *testing.T) {
	svc, mock := newReportService(t, &stubProvider{})

	rows := sqlmock.NewRows([]string{"id", "target_id", "metadata", "created_at", "name", "email"}).
		AddRow(int64(33), int64(5), []byte(`{"projectId":5,"projectName":"Apollo","model":"gemini-1.5-flash","output":"Report text."}`), reportNow, "Alice", "alice@acme.test").
		AddRow(int64(32), int64(5), []byte(`{"note":"no output field"}`), reportNow.Add(-time.Hour), "Bob", "bob@acme.test").
		AddRow(int64(31), int64(6), []byte(`{"output":"Bare report."}`), reportNow.Add(-2*time.Hour), "", "carol@acme.test")
	mock.ExpectQuery("SELECT a.id, a.target_id, a.metadata").
		WithArgs(int64(7), string(audit.ActionAIProjectReport), audit.TargetProject, 10).
		WillReturnRows(rows)

	entries, err := svc.History(context.Background(), 7, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2, "rows without a string output are skipped")

	assert.Equal(t, "Apollo", entries[0].ProjectName)
	assert.Equal(t, "Alice", entries[0].ActorName)
	assert.Equal(t, int64(5), entries[0].ProjectID)

	assert.Equal(t, "Unknown project", entries[1].ProjectName)
	assert.Equal(t, "unknown", entries[1].Model)
	assert.Equal(t, "carol@acme.test", entries[1].ActorName)
	assert.Equal(t, int64(6), entries[1].ProjectID, "target id backfills a missing metadata project id")
}
