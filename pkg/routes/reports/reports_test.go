package reports

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
)

type reporterFunc func(ctx context.Context) (*models.SalesSummary, error)

func (f reporterFunc) SalesSummary(ctx context.Context) (*models.SalesSummary, error) {
	return f(ctx)
}

func serve(reporter SalesReporter) *httptest.ResponseRecorder {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	NewHandler(reporter).Register(e.Group("/api/v1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/sales", nil))
	return rec
}

func TestSales(t *testing.T) {
	rec := serve(reporterFunc(func(context.Context) (*models.SalesSummary, error) {
		return &models.SalesSummary{
			TotalRevenue: 2024.9,
			Customers: []models.CustomerSpend{
				{CustomerID: 1, Name: "Ana", Purchases: 2, TotalSpent: 1999.9},
				{CustomerID: 2, Name: "Bia", Purchases: 1, TotalSpent: 25},
			},
		}, nil
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.SalesSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 2024.9, body.TotalRevenue, 0.001)
	assert.Len(t, body.Customers, 2)
}

func TestSalesLedgerDown(t *testing.T) {
	rec := serve(reporterFunc(func(context.Context) (*models.SalesSummary, error) {
		return nil, clovererrors.NewConnectivityError("ledger", "sales_summary", "", errors.New("refused"))
	}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
