package reports

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type SalesReporter interface {
	SalesSummary(ctx context.Context) (*models.SalesSummary, error)
}

type Handler struct {
	reporter SalesReporter
}

func NewHandler(reporter SalesReporter) *Handler {
	return &Handler{reporter: reporter}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/reports/sales", h.Sales)
}

// Sales reports purchases and spend per customer. It reads the ledger directly, not the view store.
// @Summary Sales report
// @Description Purchase count and total spent for every customer, including customers without purchases
// @Tags Reports
// @Produce json
// @Success 200 {object} models.SalesSummary
// @Failure 500 {object} httperror.HTTPError
// @Router /api/v1/reports/sales [get]
func (h *Handler) Sales(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ReportsHandler.Sales")
	defer span.End()

	summary, err := h.reporter.SalesSummary(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}
