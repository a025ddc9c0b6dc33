package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"meridian/internal/config"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	planQuery    = `SELECT plan FROM tenants WHERE id = \$1`
	counterQuery = `
		SELECT tenant_id, feature, count, reset_at, last_used_at
		FROM usage_counters
		WHERE tenant_id = \$1 AND feature = \$2
		FOR UPDATE
	`
	counterInsert = `
		INSERT INTO usage_counters \(tenant_id, feature, count, reset_at, last_used_at\)
		VALUES \(\$1, \$2, \$3, \$4, \$5\)
		ON CONFLICT \(tenant_id, feature\) DO NOTHING
	`
	counterUpdate = `
		UPDATE usage_counters
		SET count = \$1, reset_at = \$2, last_used_at = \$3
		WHERE tenant_id = \$4 AND feature = \$5
	`
)

type QuotaServiceTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	svc     *quotaService
	tenant  uuid.UUID
	clock   time.Time
	context context.Context
}

func (suite *QuotaServiceTestSuite) SetupTest() {
	mock, conn, err := newMockShard("shard-uk")
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.tenant = uuid.New()
	suite.clock = time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC)
	suite.context = context.Background()

	svc := NewQuotaService(&stubResolver{conn: conn}, config.DefaultConfig()).(*quotaService)
	svc.now = func() time.Time { return suite.clock }
	suite.svc = svc
}

func (suite *QuotaServiceTestSuite) TearDownTest() {
	suite.mock.Close()
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func TestQuotaServiceTestSuite(t *testing.T) {
	suite.Run(t, new(QuotaServiceTestSuite))
}

func (suite *QuotaServiceTestSuite) counterRow(count int, resetAt time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"tenant_id", "feature", "count", "reset_at", "last_used_at"}).
		AddRow(suite.tenant, "report_generation", count, resetAt, suite.clock.Add(-time.Hour))
}

// expectAccept scripts one full accepted increment against an existing
// counter: begin, plan read, locked counter read, update, commit.
func (suite *QuotaServiceTestSuite) expectAccept(plan string, current int, resetAt time.Time, next int, nextReset time.Time) {
	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(planQuery).WithArgs(suite.tenant).
		WillReturnRows(pgxmock.NewRows([]string{"plan"}).AddRow(plan))
	suite.mock.ExpectQuery(counterQuery).WithArgs(suite.tenant, "report_generation").
		WillReturnRows(suite.counterRow(current, resetAt))
	suite.mock.ExpectExec(counterUpdate).
		WithArgs(next, nextReset, suite.clock, suite.tenant, "report_generation").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectCommit()
}

func (suite *QuotaServiceTestSuite) TestCheckAndIncrement_AcceptsUnderLimit() {
	septemberFirst := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	suite.expectAccept("free", 2, septemberFirst, 3, septemberFirst)

	decision, err := suite.svc.CheckAndIncrement(suite.context, suite.tenant, "report_generation")
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), decision.Accepted)
	assert.Equal(suite.T(), 3, decision.Current)
	assert.Equal(suite.T(), 5, decision.Limit)
	assert.NotEmpty(suite.T(), decision.Token)
}

func (suite *QuotaServiceTestSuite) TestCheckAndIncrement_RejectsAtLimitWithoutWriting() {
	septemberFirst := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(planQuery).WithArgs(suite.tenant).
		WillReturnRows(pgxmock.NewRows([]string{"plan"}).AddRow("free"))
	suite.mock.ExpectQuery(counterQuery).WithArgs(suite.tenant, "report_generation").
		WillReturnRows(suite.counterRow(5, septemberFirst))
	// No insert, no update: the reject path leaves the ledger untouched.
	suite.mock.ExpectRollback()

	decision, err := suite.svc.CheckAndIncrement(suite.context, suite.tenant, "report_generation")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), decision.Accepted)
	assert.Equal(suite.T(), 5, decision.Current)
	assert.Equal(suite.T(), 5, decision.Limit)
	assert.Empty(suite.T(), decision.Token)
}

func (suite *QuotaServiceTestSuite) TestCheckAndIncrement_FirstUseInsertsCounter() {
	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(planQuery).WithArgs(suite.tenant).
		WillReturnRows(pgxmock.NewRows([]string{"plan"}).AddRow("pro"))
	suite.mock.ExpectQuery(counterQuery).WithArgs(suite.tenant, "report_generation").
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id", "feature", "count", "reset_at", "last_used_at"}))
	suite.mock.ExpectExec(counterInsert).
		WithArgs(suite.tenant, "report_generation", 1, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), suite.clock).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectCommit()

	decision, err := suite.svc.CheckAndIncrement(suite.context, suite.tenant, "report_generation")
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), decision.Accepted)
	assert.Equal(suite.T(), 1, decision.Current)
	assert.Equal(suite.T(), 100, decision.Limit)
}

// A full counter whose reset instant has been reached behaves as zero: the
// increment is accepted and the row is rewritten for the new month. No
// background sweep is involved.
func (suite *QuotaServiceTestSuite) TestCheckAndIncrement_LazyMonthlyReset() {
	staleReset := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	septemberFirst := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	suite.expectAccept("free", 5, staleReset, 1, septemberFirst)

	decision, err := suite.svc.CheckAndIncrement(suite.context, suite.tenant, "report_generation")
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), decision.Accepted)
	assert.Equal(suite.T(), 1, decision.Current)
}

// Five accepts exhaust the free tier, the sixth is rejected, and the first
// call of the next month is accepted again against a fresh window.
func (suite *QuotaServiceTestSuite) TestCheckAndIncrement_MonthlyWindowLifecycle() {
	septemberFirst := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	octoberFirst := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(planQuery).WithArgs(suite.tenant).
		WillReturnRows(pgxmock.NewRows([]string{"plan"}).AddRow("free"))
	suite.mock.ExpectQuery(counterQuery).WithArgs(suite.tenant, "report_generation").
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id", "feature", "count", "reset_at", "last_used_at"}))
	suite.mock.ExpectExec(counterInsert).
		WithArgs(suite.tenant, "report_generation", 1, septemberFirst, suite.clock).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectCommit()
	for current := 1; current < 5; current++ {
		suite.expectAccept("free", current, septemberFirst, current+1, septemberFirst)
	}

	for i := 0; i < 5; i++ {
		decision, err := suite.svc.CheckAndIncrement(suite.context, suite.tenant, "report_generation")
		assert.NoError(suite.T(), err)
		assert.True(suite.T(), decision.Accepted, "call %d should be accepted", i+1)
		assert.Equal(suite.T(), i+1, decision.Current)
	}

	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(planQuery).WithArgs(suite.tenant).
		WillReturnRows(pgxmock.NewRows([]string{"plan"}).AddRow("free"))
	suite.mock.ExpectQuery(counterQuery).WithArgs(suite.tenant, "report_generation").
		WillReturnRows(suite.counterRow(5, septemberFirst))
	suite.mock.ExpectRollback()

	decision, err := suite.svc.CheckAndIncrement(suite.context, suite.tenant, "report_generation")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), decision.Accepted)

	// The calendar rolls over; the same exhausted row now counts as zero.
	suite.clock = time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC)
	suite.expectAccept("free", 5, septemberFirst, 1, octoberFirst)

	decision, err = suite.svc.CheckAndIncrement(suite.context, suite.tenant, "report_generation")
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), decision.Accepted)
	assert.Equal(suite.T(), 1, decision.Current)
}

// Two first-use calls can race: the loser's insert affects zero rows and
// the attempt is retried, finding the winner's row on the second pass.
func (suite *QuotaServiceTestSuite) TestCheckAndIncrement_RetriesLostInsertRace() {
	septemberFirst := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(planQuery).WithArgs(suite.tenant).
		WillReturnRows(pgxmock.NewRows([]string{"plan"}).AddRow("free"))
	suite.mock.ExpectQuery(counterQuery).WithArgs(suite.tenant, "report_generation").
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id", "feature", "count", "reset_at", "last_used_at"}))
	suite.mock.ExpectExec(counterInsert).
		WithArgs(suite.tenant, "report_generation", 1, septemberFirst, suite.clock).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	suite.mock.ExpectRollback()

	suite.expectAccept("free", 1, septemberFirst, 2, septemberFirst)

	decision, err := suite.svc.CheckAndIncrement(suite.context, suite.tenant, "report_generation")
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), decision.Accepted)
	assert.Equal(suite.T(), 2, decision.Current)
}

func (suite *QuotaServiceTestSuite) TestCheckAndIncrement_UnknownFeatureDenied() {
	septemberFirst := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(planQuery).WithArgs(suite.tenant).
		WillReturnRows(pgxmock.NewRows([]string{"plan"}).AddRow("free"))
	suite.mock.ExpectQuery(counterQuery).WithArgs(suite.tenant, "video_rendering").
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id", "feature", "count", "reset_at", "last_used_at"}).
			AddRow(suite.tenant, "video_rendering", 0, septemberFirst, suite.clock))
	suite.mock.ExpectRollback()

	decision, err := suite.svc.CheckAndIncrement(suite.context, suite.tenant, "video_rendering")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), decision.Accepted)
	assert.Equal(suite.T(), 0, decision.Limit)
}

func (suite *QuotaServiceTestSuite) TestCheckAndIncrement_PlanReadFailureAborts() {
	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(planQuery).WithArgs(suite.tenant).
		WillReturnError(fmt.Errorf("connection reset"))
	suite.mock.ExpectRollback()

	decision, err := suite.svc.CheckAndIncrement(suite.context, suite.tenant, "report_generation")
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), decision)
}

func (suite *QuotaServiceTestSuite) TestUsage_AppliesResetWithoutWriting() {
	staleReset := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	suite.mock.ExpectQuery(planQuery).WithArgs(suite.tenant).
		WillReturnRows(pgxmock.NewRows([]string{"plan"}).AddRow("free"))
	suite.mock.ExpectQuery(`
		SELECT tenant_id, feature, count, reset_at, last_used_at
		FROM usage_counters
		WHERE tenant_id = \$1 AND feature = \$2
	`).WithArgs(suite.tenant, "report_generation").
		WillReturnRows(suite.counterRow(5, staleReset))

	decision, err := suite.svc.Usage(suite.context, suite.tenant, "report_generation")
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), decision.Accepted)
	assert.Equal(suite.T(), 0, decision.Current)
	assert.Equal(suite.T(), 5, decision.Limit)
}
