// Package ingest holds the write paths: new customers, products, purchases, friendships and
// interest profiles. The ledger is written first and is the only write whose failure aborts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/consolidation"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Ledger interface {
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	InsertCustomer(ctx context.Context, req models.CreateCustomerRequest) (*models.Customer, error)
	InsertProduct(ctx context.Context, req models.CreateProductRequest) (*models.Product, error)
	InsertPurchase(ctx context.Context, customerID, productID int64) (*models.Purchase, error)
}

type Graph interface {
	CreateCustomerNode(ctx context.Context, id int64, taxID, name string) error
	CreateFriendEdge(ctx context.Context, from, to int64) error
	ClearAll(ctx context.Context) error
}

type InterestStore interface {
	Insert(ctx context.Context, profile models.InterestProfile) error
	UpdateInterests(ctx context.Context, customerID int64, interests map[string]any) error
	Get(ctx context.Context, customerID int64) (*models.InterestProfile, error)
	Drop(ctx context.Context) error
}

type ViewStore interface {
	Clear(ctx context.Context) error
	SetStatus(ctx context.Context, status models.RebuildStatus) error
}

type Rebuilder interface {
	Rebuild(ctx context.Context) (*models.RebuildResult, error)
}

type EventPublisher interface {
	PublishPurchaseRegistered(ctx context.Context, purchase models.Purchase) error
}

// Deps are the collaborators of the service. Interests and Events may be nil.
type Deps struct {
	Ledger    Ledger
	Graph     Graph
	Interests InterestStore
	View      ViewStore
	Rebuilder Rebuilder
	Events    EventPublisher
}

// Options control the rebuild that follows a purchase. While another rebuild holds the lock
// the purchase waits RebuildRetryDelay and tries again, up to RebuildAttempts times.
type Options struct {
	RebuildOnPurchase bool
	RebuildRetryDelay time.Duration
	RebuildAttempts   int
}

type Service struct {
	deps   Deps
	opts   Options
	logger ectologger.Logger
}

func NewService(deps Deps, opts Options, logger ectologger.Logger) *Service {
	return &Service{
		deps:   deps,
		opts:   opts,
		logger: logger,
	}
}

var errInterestsDisabled = httperror.NewHTTPError(http.StatusNotImplemented, "interest store is not configured")

// AddCustomer inserts the customer in the ledger, then best-effort creates its interest profile
// and graph node. Secondary failures come back as warnings.
func (s *Service) AddCustomer(ctx context.Context, req models.CreateCustomerRequest) (*models.AddCustomerResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Service.AddCustomer")
	defer span.End()

	customer, err := s.deps.Ledger.InsertCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithContext(ctx).WithField("customer_id", customer.ID)
	result := &models.AddCustomerResult{Customer: *customer}

	if s.deps.Interests != nil {
		profile := models.InterestProfile{
			CustomerID: customer.ID,
			TaxID:      customer.TaxID,
			Name:       customer.Name,
			Interests:  req.Interests,
		}
		if err := s.deps.Interests.Insert(ctx, profile); err != nil {
			log.WithError(err).Warn("Failed to store interest profile")
			result.Warnings = append(result.Warnings, fmt.Sprintf("interest profile not stored: %v", err))
		}
	}

	if err := s.deps.Graph.CreateCustomerNode(ctx, customer.ID, customer.TaxID, customer.Name); err != nil {
		log.WithError(err).Warn("Failed to create graph node")
		result.Warnings = append(result.Warnings, fmt.Sprintf("graph node not created: %v", err))
	}

	log.Info("Customer added")
	return result, nil
}

func (s *Service) AddProduct(ctx context.Context, req models.CreateProductRequest) (*models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Service.AddProduct")
	defer span.End()

	return s.deps.Ledger.InsertProduct(ctx, req)
}

// AddFriendship creates the directed edge customer -> friend.
func (s *Service) AddFriendship(ctx context.Context, req models.CreateFriendshipRequest) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Service.AddFriendship")
	defer span.End()

	if err := s.deps.Graph.CreateFriendEdge(ctx, req.CustomerID, req.FriendID); err != nil {
		return err
	}
	s.logger.WithContext(ctx).WithFields(map[string]any{"customer_id": req.CustomerID, "friend_id": req.FriendID}).Info("Friendship added")
	return nil
}

// RegisterPurchase inserts the purchase, announces it and, when configured, rebuilds the view.
// Once the ledger insert succeeds the purchase is reported as registered; a rebuild that could
// not run is visible in the result only.
func (s *Service) RegisterPurchase(ctx context.Context, req models.CreatePurchaseRequest) (*models.PurchaseResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Service.RegisterPurchase")
	defer span.End()

	purchase, err := s.deps.Ledger.InsertPurchase(ctx, req.CustomerID, req.ProductID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithContext(ctx).WithField("purchase_id", purchase.ID)
	result := &models.PurchaseResult{Purchase: *purchase}

	if s.deps.Events != nil {
		if err := s.deps.Events.PublishPurchaseRegistered(ctx, *purchase); err != nil {
			log.WithError(err).Warn("Failed to publish purchase event")
		}
	}

	if s.opts.RebuildOnPurchase && s.deps.Rebuilder != nil {
		result.Rebuild = s.rebuildAfterPurchase(ctx, log)
	}

	return result, nil
}

// rebuildAfterPurchase waits out a rebuild that is already running, since that one may have
// read the ledger before the purchase landed.
func (s *Service) rebuildAfterPurchase(ctx context.Context, log ectologger.Logger) *models.RebuildResult {
	var rebuild *models.RebuildResult
	err := consolidation.RetryWhileInProgress(ctx, s.opts.RebuildRetryDelay, s.opts.RebuildAttempts, func(ctx context.Context, attempt int) error {
		var err error
		rebuild, err = s.deps.Rebuilder.Rebuild(ctx)
		if errors.Is(err, consolidation.ErrRebuildInProgress) {
			log.WithField("attempt", attempt).Debug("Rebuild already running, waiting to rebuild after purchase")
		}
		return err
	})

	switch {
	case errors.Is(err, consolidation.ErrRebuildInProgress):
		log.Warn("Gave up waiting for the running rebuild, purchase is not in the view yet")
	case err != nil:
		log.WithError(err).Warn("Rebuild after purchase failed")
	}
	return rebuild
}

// UpdateInterests replaces a customer's interests, creating the profile if the customer has none.
func (s *Service) UpdateInterests(ctx context.Context, customerID int64, interests map[string]any) (*models.InterestProfile, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Service.UpdateInterests")
	defer span.End()

	if s.deps.Interests == nil {
		return nil, errInterestsDisabled
	}

	customer, err := s.deps.Ledger.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	err = s.deps.Interests.UpdateInterests(ctx, customerID, interests)
	if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
		err = s.deps.Interests.Insert(ctx, models.InterestProfile{
			CustomerID: customer.ID,
			TaxID:      customer.TaxID,
			Name:       customer.Name,
			Interests:  interests,
		})
	}
	if err != nil {
		return nil, err
	}

	return &models.InterestProfile{
		CustomerID: customer.ID,
		TaxID:      customer.TaxID,
		Name:       customer.Name,
		Interests:  interests,
	}, nil
}

func (s *Service) GetInterests(ctx context.Context, customerID int64) (*models.InterestProfile, error) {
	if s.deps.Interests == nil {
		return nil, errInterestsDisabled
	}

	profile, err := s.deps.Interests.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "interest profile for customer %d not found", customerID)
	}
	return profile, nil
}

// Reset empties the graph, the interest store and the view store. The ledger is left alone;
// its schema is owned by migrations.
func (s *Service) Reset(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Service.Reset")
	defer span.End()

	if err := s.deps.Graph.ClearAll(ctx); err != nil {
		return err
	}
	if s.deps.Interests != nil {
		if err := s.deps.Interests.Drop(ctx); err != nil {
			return err
		}
	}
	if err := s.deps.View.Clear(ctx); err != nil {
		return err
	}
	if err := s.deps.View.SetStatus(ctx, models.RebuildStatusEmpty); err != nil {
		return err
	}

	s.logger.WithContext(ctx).Info("Stores reset")
	return nil
}
