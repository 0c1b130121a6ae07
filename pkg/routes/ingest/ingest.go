package ingest

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// Service is the ingestion surface the routes call into.
type Service interface {
	AddCustomer(ctx context.Context, req models.CreateCustomerRequest) (*models.AddCustomerResult, error)
	AddProduct(ctx context.Context, req models.CreateProductRequest) (*models.Product, error)
	AddFriendship(ctx context.Context, req models.CreateFriendshipRequest) error
	RegisterPurchase(ctx context.Context, req models.CreatePurchaseRequest) (*models.PurchaseResult, error)
	UpdateInterests(ctx context.Context, customerID int64, interests map[string]any) (*models.InterestProfile, error)
	GetInterests(ctx context.Context, customerID int64) (*models.InterestProfile, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/customers", h.CreateCustomer)
	g.POST("/products", h.CreateProduct)
	g.POST("/purchases", h.CreatePurchase)
	g.POST("/friendships", h.CreateFriendship)
	g.PUT("/customers/:id/interests", h.UpdateInterests)
	g.GET("/customers/:id/interests", h.GetInterests)
}

// CreateCustomer registers a customer in the ledger and the secondary stores
// @Summary Create a customer
// @Description The ledger insert decides success. Interest store and graph failures come back as warnings.
// @Tags Ingest
// @Accept json
// @Produce json
// @Param body body models.CreateCustomerRequest true "Customer"
// @Success 201 {object} models.AddCustomerResult
// @Failure 400 {object} httperror.HTTPError
// @Failure 409 {object} httperror.HTTPError
// @Router /api/v1/customers [post]
func (h *Handler) CreateCustomer(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "IngestHandler.CreateCustomer")
	defer span.End()

	req, err := utils.BindRequest[models.CreateCustomerRequest](c)
	if err != nil {
		return err
	}

	result, err := h.service.AddCustomer(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// CreateProduct adds a product to the catalog
// @Summary Create a product
// @Tags Ingest
// @Accept json
// @Produce json
// @Param body body models.CreateProductRequest true "Product"
// @Success 201 {object} models.Product
// @Failure 400 {object} httperror.HTTPError
// @Router /api/v1/products [post]
func (h *Handler) CreateProduct(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "IngestHandler.CreateProduct")
	defer span.End()

	req, err := utils.BindRequest[models.CreateProductRequest](c)
	if err != nil {
		return err
	}

	product, err := h.service.AddProduct(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, product)
}

// CreatePurchase registers a purchase and rebuilds the view
// @Summary Register a purchase
// @Description Inserts the purchase and, when enabled, rebuilds the view once any running rebuild finishes. A rebuild that could not run does not fail the purchase.
// @Tags Ingest
// @Accept json
// @Produce json
// @Param body body models.CreatePurchaseRequest true "Purchase"
// @Success 201 {object} models.PurchaseResult
// @Failure 400 {object} httperror.HTTPError
// @Failure 404 {object} httperror.HTTPError
// @Failure 409 {object} httperror.HTTPError
// @Router /api/v1/purchases [post]
func (h *Handler) CreatePurchase(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "IngestHandler.CreatePurchase")
	defer span.End()

	req, err := utils.BindRequest[models.CreatePurchaseRequest](c)
	if err != nil {
		return err
	}

	result, err := h.service.RegisterPurchase(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// CreateFriendship links two customers in the graph
// @Summary Create a friendship
// @Tags Ingest
// @Accept json
// @Produce json
// @Param body body models.CreateFriendshipRequest true "Friendship"
// @Success 201 {object} models.CreateFriendshipRequest
// @Failure 400 {object} httperror.HTTPError
// @Failure 404 {object} httperror.HTTPError
// @Router /api/v1/friendships [post]
func (h *Handler) CreateFriendship(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "IngestHandler.CreateFriendship")
	defer span.End()

	req, err := utils.BindRequest[models.CreateFriendshipRequest](c)
	if err != nil {
		return err
	}

	if err := h.service.AddFriendship(ctx, req); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, req)
}

// UpdateInterests replaces a customer's interests
// @Summary Update interests
// @Tags Ingest
// @Accept json
// @Produce json
// @Param id path int true "Customer ID"
// @Param body body models.UpdateInterestsRequest true "Interests"
// @Success 200 {object} models.InterestProfile
// @Failure 400 {object} httperror.HTTPError
// @Failure 404 {object} httperror.HTTPError
// @Failure 501 {object} httperror.HTTPError
// @Router /api/v1/customers/{id}/interests [put]
func (h *Handler) UpdateInterests(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "IngestHandler.UpdateInterests")
	defer span.End()

	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.UpdateInterestsRequest](c)
	if err != nil {
		return err
	}

	profile, err := h.service.UpdateInterests(ctx, id, req.Interests)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

// GetInterests returns a customer's interest profile
// @Summary Get interests
// @Tags Ingest
// @Produce json
// @Param id path int true "Customer ID"
// @Success 200 {object} models.InterestProfile
// @Failure 404 {object} httperror.HTTPError
// @Failure 501 {object} httperror.HTTPError
// @Router /api/v1/customers/{id}/interests [get]
func (h *Handler) GetInterests(c echo.Context) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	profile, err := h.service.GetInterests(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}
