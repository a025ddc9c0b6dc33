package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"meridian/internal/common"
	"meridian/internal/models"
	"meridian/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type MockQuotaService struct {
	mock.Mock
}

func (m *MockQuotaService) CheckAndIncrement(ctx context.Context, tenantID uuid.UUID, feature string) (*services.QuotaDecision, error) {
	args := m.Called(ctx, tenantID, feature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.QuotaDecision), args.Error(1)
}

func (m *MockQuotaService) Usage(ctx context.Context, tenantID uuid.UUID, feature string) (*services.QuotaDecision, error) {
	args := m.Called(ctx, tenantID, feature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.QuotaDecision), args.Error(1)
}

func (m *MockQuotaService) ListUsage(ctx context.Context, tenantID uuid.UUID) ([]*models.UsageCounter, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UsageCounter), args.Error(1)
}

type MockUsageExportService struct {
	mock.Mock
}

func (m *MockUsageExportService) Report(ctx context.Context, tenantID uuid.UUID, feature string, quantity int64) error {
	args := m.Called(ctx, tenantID, feature, quantity)
	return args.Error(0)
}

func (m *MockUsageExportService) ReportAsync(tenantID uuid.UUID, feature string, quantity int64) {
	m.Called(tenantID, feature, quantity)
}

func (m *MockUsageExportService) Flush() {
	m.Called()
}

type QuotaHandlersTestSuite struct {
	suite.Suite
	echo      *echo.Echo
	quotaSvc  *MockQuotaService
	exportSvc *MockUsageExportService
	handlers  *QuotaHandlers
	tenantID  uuid.UUID
}

func (suite *QuotaHandlersTestSuite) SetupTest() {
	suite.echo = echo.New()
	suite.quotaSvc = new(MockQuotaService)
	suite.exportSvc = new(MockUsageExportService)
	suite.handlers = NewQuotaHandlers(suite.quotaSvc, suite.exportSvc)
	suite.tenantID = uuid.New()
}

func (suite *QuotaHandlersTestSuite) TearDownTest() {
	suite.quotaSvc.AssertExpectations(suite.T())
	suite.exportSvc.AssertExpectations(suite.T())
}

func TestQuotaHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(QuotaHandlersTestSuite))
}

func (suite *QuotaHandlersTestSuite) newConsumeContext(feature string, authenticated bool) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if authenticated {
		ctx := context.WithValue(req.Context(), common.TenantIDKey, suite.tenantID)
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	c := suite.echo.NewContext(req, rec)
	c.SetPath("/v1/features/:feature/consume")
	c.SetParamNames("feature")
	c.SetParamValues(feature)
	return c, rec
}

func (suite *QuotaHandlersTestSuite) TestConsume_AcceptedReportsUsage() {
	decision := &services.QuotaDecision{
		Accepted: true,
		TenantID: suite.tenantID,
		Feature:  "report_generation",
		Current:  3,
		Limit:    5,
		Token:    uuid.NewString(),
	}
	suite.quotaSvc.On("CheckAndIncrement", mock.Anything, suite.tenantID, "report_generation").
		Return(decision, nil).Once()
	suite.exportSvc.On("ReportAsync", suite.tenantID, "report_generation", int64(1)).Once()

	c, rec := suite.newConsumeContext("report_generation", true)
	assert.NoError(suite.T(), suite.handlers.Consume(c))
	assert.Equal(suite.T(), http.StatusOK, rec.Code)

	var got services.QuotaDecision
	assert.NoError(suite.T(), json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(suite.T(), got.Accepted)
	assert.Equal(suite.T(), 3, got.Current)
}

func (suite *QuotaHandlersTestSuite) TestConsume_RejectedReturns429WithoutExport() {
	decision := &services.QuotaDecision{
		Accepted: false,
		TenantID: suite.tenantID,
		Feature:  "report_generation",
		Current:  5,
		Limit:    5,
	}
	suite.quotaSvc.On("CheckAndIncrement", mock.Anything, suite.tenantID, "report_generation").
		Return(decision, nil).Once()

	c, rec := suite.newConsumeContext("report_generation", true)
	assert.NoError(suite.T(), suite.handlers.Consume(c))
	assert.Equal(suite.T(), http.StatusTooManyRequests, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "QUOTA_EXCEEDED")
	assert.Contains(suite.T(), rec.Body.String(), "5/5")
	suite.exportSvc.AssertNotCalled(suite.T(), "ReportAsync", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *QuotaHandlersTestSuite) TestConsume_MissingTenantContext() {
	c, rec := suite.newConsumeContext("report_generation", false)
	assert.NoError(suite.T(), suite.handlers.Consume(c))
	assert.Equal(suite.T(), http.StatusUnauthorized, rec.Code)
}

func (suite *QuotaHandlersTestSuite) TestConsume_InvalidFeatureName() {
	c, rec := suite.newConsumeContext("Report-Generation", true)
	assert.NoError(suite.T(), suite.handlers.Consume(c))
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

func (suite *QuotaHandlersTestSuite) TestGetUsage() {
	decision := &services.QuotaDecision{
		Accepted: true,
		TenantID: suite.tenantID,
		Feature:  "data_export",
		Current:  1,
		Limit:    2,
	}
	suite.quotaSvc.On("Usage", mock.Anything, suite.tenantID, "data_export").
		Return(decision, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), common.TenantIDKey, suite.tenantID))
	rec := httptest.NewRecorder()
	c := suite.echo.NewContext(req, rec)
	c.SetPath("/v1/usage/:feature")
	c.SetParamNames("feature")
	c.SetParamValues("data_export")

	assert.NoError(suite.T(), suite.handlers.GetUsage(c))
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "data_export")
}
