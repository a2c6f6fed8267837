package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/identity"
	"github.com/platinummonkey/workbench/pkg/rbac"
	"github.com/platinummonkey/workbench/pkg/usage"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db, identity.NewStore(db), usage.NewEngine(db), audit.NewRecorder(db)), mock
}

func TestCreateRejectsShortName(t *testing.T) {
	svc, mock := newTestService(t)

	_, err := svc.Create(context.Background(), 1, "  x ")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidArgument, errs.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet(), "validation failure must not touch storage")
}

func TestCreateProvisionsOrgOwnerUsageAndAudit(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO organizations").
		WithArgs("Acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "plan", "created_at", "updated_at"}).
			AddRow(int64(7), "Acme", "FREE", now, now))
	mock.ExpectExec("INSERT INTO memberships").
		WithArgs(int64(7), int64(1), string(rbac.RoleOwner)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("INSERT INTO org_usage").
		WithArgs(int64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "period_start", "period_end", "ai_requests_count", "tokens_used"}).
			AddRow(int64(3), int64(7), now, now.AddDate(0, 1, 0), 0, int64(0)))
	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs(int64(7), int64(1), string(audit.ActionOrgCreate), audit.TargetOrganization, int64(7), []byte(`{"name":"Acme","plan":"FREE"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))
	mock.ExpectCommit()

	org, err := svc.Create(context.Background(), 1, " Acme ")
	require.NoError(t, err)
	assert.Equal(t, int64(7), org.ID)
	assert.Equal(t, "FREE", org.Plan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRollsBackOnMembershipFailure(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO organizations").
		WithArgs("Acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "plan", "created_at", "updated_at"}).
			AddRow(int64(7), "Acme", "FREE", now, now))
	mock.ExpectExec("INSERT INTO memberships").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), 1, "Acme")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForUser(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT o.id, o.name, o.plan, m.role").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "plan", "role"}).
			AddRow(int64(7), "Acme", "FREE", "OWNER").
			AddRow(int64(9), "Globex", "PRO", "MEMBER"))

	summaries, err := svc.ListForUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, rbac.RoleOwner, summaries[0].Role)
	assert.Equal(t, "Globex", summaries[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasMembership(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := svc.HasMembership(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT id, name, plan, created_at, updated_at FROM organizations").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.Get(context.Background(), 404)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
