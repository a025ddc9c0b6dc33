package repositories

import (
	"context"
	"testing"

	"meridian/internal/models"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type TenantRepoTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	repo    TenantRepository
	context context.Context
}

func (suite *TenantRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewTenantRepo(mock)
	suite.context = context.Background()
}

func (suite *TenantRepoTestSuite) TearDownTest() {
	suite.mock.Close()
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func TestTenantRepoTestSuite(t *testing.T) {
	suite.Run(t, new(TenantRepoTestSuite))
}

func (suite *TenantRepoTestSuite) TestCreateIfAbsent_FirstWrite() {
	tenant := &models.Tenant{
		ID:      uuid.New(),
		Name:    "Acme Ltd",
		Plan:    "free",
		OwnerID: uuid.New(),
		Region:  "uk",
		Settings: map[string]string{
			"locale": "en-GB",
		},
	}

	suite.mock.ExpectExec(`
		INSERT INTO tenants \(id, name, plan, owner_id, region, settings, created_at, updated_at\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, NOW\(\), NOW\(\)\)
		ON CONFLICT \(id\) DO NOTHING
	`).WithArgs(tenant.ID, tenant.Name, tenant.Plan, tenant.OwnerID, tenant.Region, tenant.Settings).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := suite.repo.CreateIfAbsent(suite.context, tenant)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), created)
}

func (suite *TenantRepoTestSuite) TestCreateIfAbsent_ExistingTenantUntouched() {
	tenant := &models.Tenant{
		ID:      uuid.New(),
		Name:    "Acme Ltd",
		Plan:    "free",
		OwnerID: uuid.New(),
		Region:  "uk",
	}

	suite.mock.ExpectExec(`
		INSERT INTO tenants \(id, name, plan, owner_id, region, settings, created_at, updated_at\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, NOW\(\), NOW\(\)\)
		ON CONFLICT \(id\) DO NOTHING
	`).WithArgs(tenant.ID, tenant.Name, tenant.Plan, tenant.OwnerID, tenant.Region, tenant.Settings).
		WillReturnResult(pgxmock.NewResult("INSERT", 0)) // Conflict: nothing written

	created, err := suite.repo.CreateIfAbsent(suite.context, tenant)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), created)
}

func (suite *TenantRepoTestSuite) TestUpdatePlan() {
	tenantID := uuid.New()

	suite.mock.ExpectExec(`
		UPDATE tenants
		SET plan = \$1, updated_at = NOW\(\)
		WHERE id = \$2
	`).WithArgs("pro", tenantID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := suite.repo.UpdatePlan(suite.context, tenantID, "pro")
	assert.NoError(suite.T(), err)
}

func (suite *TenantRepoTestSuite) TestGetPlan() {
	tenantID := uuid.New()
	rows := pgxmock.NewRows([]string{"plan"}).AddRow("enterprise")

	suite.mock.ExpectQuery(`SELECT plan FROM tenants WHERE id = \$1`).
		WithArgs(tenantID).WillReturnRows(rows)

	plan, err := suite.repo.GetPlan(suite.context, suite.mock, tenantID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "enterprise", plan)
}
