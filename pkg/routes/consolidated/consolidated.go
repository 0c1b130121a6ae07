// Package consolidated exposes the rebuild trigger and the read side of the view store.
package consolidated

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/consolidation"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type Rebuilder interface {
	Rebuild(ctx context.Context) (*models.RebuildResult, error)
}

// ViewReader is the read side of the view store.
type ViewReader interface {
	Consolidated(ctx context.Context) (*models.ConsolidatedView, error)
	GetStatus(ctx context.Context) (models.RebuildStatus, error)
	GetFriendList(ctx context.Context, customerID int64) ([]models.FriendRef, error)
	GetRecommendation(ctx context.Context, recommender, friend int64) (*models.Recommendation, bool, error)
	GetRecommendationsFor(ctx context.Context, friend int64) ([]models.Recommendation, error)
}

type Handler struct {
	rebuilder Rebuilder
	view      ViewReader
	logger    ectologger.Logger
}

func NewHandler(rebuilder Rebuilder, view ViewReader, logger ectologger.Logger) *Handler {
	return &Handler{
		rebuilder: rebuilder,
		view:      view,
		logger:    logger,
	}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/rebuild", h.Rebuild)
	g.GET("/consolidated", h.Consolidated)
	g.GET("/customers/:id/friends", h.Friends)
	g.GET("/customers/:id/recommendations", h.RecommendationsFor)
	g.GET("/customers/:id/recommendations/:friendId", h.Recommendation)
}

// Rebuild recomputes the view store from the ledger and the friendship graph
// @Summary Rebuild the consolidated view
// @Description Recompute friend lists and recommendations. 207 means some rows were skipped, 503 means the rebuild aborted and the previous view is kept.
// @Tags Consolidated
// @Produce json
// @Success 200 {object} models.RebuildResult
// @Success 207 {object} models.RebuildResult
// @Failure 409 {object} httperror.HTTPError
// @Failure 503 {object} models.RebuildResult
// @Router /api/v1/rebuild [post]
func (h *Handler) Rebuild(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ConsolidatedHandler.Rebuild")
	defer span.End()

	result, err := h.rebuilder.Rebuild(ctx)
	if errors.Is(err, consolidation.ErrRebuildInProgress) {
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	}
	if result == nil {
		return err
	}

	switch result.Outcome {
	case models.RebuildAborted:
		return c.JSON(http.StatusServiceUnavailable, result)
	case models.RebuildPartial:
		return c.JSON(http.StatusMultiStatus, result)
	default:
		return c.JSON(http.StatusOK, result)
	}
}

// Consolidated returns the whole view store
// @Summary Get the consolidated view
// @Description Dump every friend list and recommendation from the last rebuild together with its status
// @Tags Consolidated
// @Produce json
// @Success 200 {object} models.ConsolidatedView
// @Failure 500 {object} httperror.HTTPError
// @Router /api/v1/consolidated [get]
func (h *Handler) Consolidated(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ConsolidatedHandler.Consolidated")
	defer span.End()

	view, err := h.view.Consolidated(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// FriendsResponse carries the view status so a caller can tell "no friends" from "not rebuilt yet".
type FriendsResponse struct {
	CustomerID int64                `json:"customer_id"`
	Status     models.RebuildStatus `json:"status"`
	Friends    []models.FriendRef   `json:"friends"`
}

// Friends returns a customer's friend list as of the last rebuild
// @Summary Get friends
// @Tags Consolidated
// @Produce json
// @Param id path int true "Customer ID"
// @Success 200 {object} FriendsResponse
// @Failure 400 {object} httperror.HTTPError
// @Failure 500 {object} httperror.HTTPError
// @Router /api/v1/customers/{id}/friends [get]
func (h *Handler) Friends(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	status, err := h.view.GetStatus(ctx)
	if err != nil {
		return err
	}
	friends, err := h.view.GetFriendList(ctx, id)
	if err != nil {
		return err
	}
	if friends == nil {
		friends = []models.FriendRef{}
	}

	return c.JSON(http.StatusOK, FriendsResponse{CustomerID: id, Status: status, Friends: friends})
}

type RecommendationsResponse struct {
	CustomerID      int64                   `json:"customer_id"`
	Status          models.RebuildStatus    `json:"status"`
	Recommendations []models.Recommendation `json:"recommendations"`
}

// RecommendationsFor lists every recommendation aimed at the customer, one per recommender.
// @Summary List recommendations for a customer
// @Description Every recommendation a friend has for the customer, each computed from that friend's own purchases
// @Tags Consolidated
// @Produce json
// @Param id path int true "Customer ID"
// @Success 200 {object} RecommendationsResponse
// @Failure 400 {object} httperror.HTTPError
// @Failure 500 {object} httperror.HTTPError
// @Router /api/v1/customers/{id}/recommendations [get]
func (h *Handler) RecommendationsFor(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	status, err := h.view.GetStatus(ctx)
	if err != nil {
		return err
	}
	recs, err := h.view.GetRecommendationsFor(ctx, id)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}

	return c.JSON(http.StatusOK, RecommendationsResponse{CustomerID: id, Status: status, Recommendations: recs})
}

// Recommendation returns what customer :id can recommend to :friendId.
// @Summary Get one recommendation
// @Tags Consolidated
// @Produce json
// @Param id path int true "Recommender customer ID"
// @Param friendId path int true "Friend customer ID"
// @Success 200 {object} models.Recommendation
// @Failure 400 {object} httperror.HTTPError
// @Failure 404 {object} httperror.HTTPError
// @Router /api/v1/customers/{id}/recommendations/{friendId} [get]
func (h *Handler) Recommendation(c echo.Context) error {
	ctx := c.Request().Context()

	recommender, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}
	friend, err := utils.ParamID(c, "friendId")
	if err != nil {
		return err
	}

	rec, found, err := h.view.GetRecommendation(ctx, recommender, friend)
	if err != nil {
		return err
	}
	if !found {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "no recommendation from customer %d to customer %d", recommender, friend)
	}
	return c.JSON(http.StatusOK, rec)
}
