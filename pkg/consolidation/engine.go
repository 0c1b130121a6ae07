// Package consolidation rebuilds the consolidated view store from the ledger and the social graph.
package consolidation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	clovercontext "github.com/Ramsey-B/clover/pkg/context"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/recommendation"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Ledger is the read side of the customer ledger the rebuild needs.
type Ledger interface {
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	ListPurchases(ctx context.Context) ([]models.PurchaseRecord, error)
}

// Graph returns a customer's direct friends.
type Graph interface {
	ListFriends(ctx context.Context, customerID int64) ([]models.FriendRef, error)
}

// ViewStore is the write side of the consolidated view.
type ViewStore interface {
	Clear(ctx context.Context) error
	SetStatus(ctx context.Context, status models.RebuildStatus) error
	PutCustomers(ctx context.Context, customers []models.Customer) error
	PutPurchases(ctx context.Context, purchases []models.ConsolidatedPurchase) error
	PutFriendList(ctx context.Context, customerID int64, friends []models.FriendRef) error
	PutRecommendation(ctx context.Context, rec models.Recommendation) error
}

type Engine struct {
	ledger      Ledger
	graph       Graph
	store       ViewStore
	recommender *recommendation.Engine
	workers     int
	logger      ectologger.Logger
	now         func() time.Time
}

func NewEngine(ledger Ledger, graph Graph, store ViewStore, workers int, logger ectologger.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		ledger:      ledger,
		graph:       graph,
		store:       store,
		recommender: recommendation.NewEngine(store, workers, logger),
		workers:     workers,
		logger:      logger,
		now:         time.Now,
	}
}

// rebuildRun carries the mutable state of one Rebuild call.
type rebuildRun struct {
	mu     sync.Mutex
	result *models.RebuildResult
	edges  [][]models.FriendEdge
}

func (r *rebuildRun) skip(key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Skipped = append(r.result.Skipped, clovererrors.NewRowFailure(key, err))
}

// Rebuild clears the view store and repopulates it in order: customers, purchases, friend lists,
// recommendations. Row-level failures are skipped and reported in the result. The returned
// error is non-nil only when the rebuild was aborted; in that case the view store is either
// untouched or marked incomplete.
func (e *Engine) Rebuild(ctx context.Context) (*models.RebuildResult, error) {
	ctx = clovercontext.SetRebuildID(ctx, uuid.New().String())
	ctx, span := tracing.StartSpan(ctx, "consolidation.Engine.Rebuild")
	defer span.End()

	log := e.logger.WithContext(ctx).WithField("rebuild_id", clovercontext.GetRebuildID(ctx))
	run := &rebuildRun{result: &models.RebuildResult{StartedAt: e.now()}}

	// Listing customers before the clear means a ledger outage leaves the previous snapshot intact.
	customers, err := e.ledger.ListCustomers(ctx)
	if err != nil {
		return e.abort(ctx, run, false, fmt.Errorf("failed to list customers: %w", err))
	}

	if err := e.store.SetStatus(ctx, models.RebuildStatusRebuilding); err != nil {
		return e.abort(ctx, run, false, fmt.Errorf("failed to mark rebuild start: %w", err))
	}
	if err := e.store.Clear(ctx); err != nil {
		return e.abort(ctx, run, true, fmt.Errorf("failed to clear view store: %w", err))
	}

	if err := e.store.PutCustomers(ctx, customers); err != nil {
		return e.abort(ctx, run, true, fmt.Errorf("failed to store customers: %w", err))
	}
	run.result.Customers = len(customers)
	log.WithField("customers", len(customers)).Debug("Stored customers")

	if err := ctx.Err(); err != nil {
		return e.abort(ctx, run, true, err)
	}

	purchases, purchasesOK := e.syncPurchases(ctx, run)
	log.WithField("purchases", run.result.Purchases).Debug("Stored purchases")

	if err := e.syncFriendLists(ctx, run, customers); err != nil {
		return e.abort(ctx, run, true, err)
	}
	log.WithField("friend_lists", run.result.FriendLists).Debug("Stored friend lists")

	if purchasesOK {
		edges := make([]models.FriendEdge, 0)
		for _, perCustomer := range run.edges {
			edges = append(edges, perCustomer...)
		}

		published, err := e.recommender.Publish(ctx, recommendation.PurchasedSets(purchases), edges)
		if published != nil {
			run.result.Recommendations = published.Written
			run.result.Skipped = append(run.result.Skipped, published.Failures...)
		}
		if err != nil {
			return e.abort(ctx, run, true, err)
		}
	} else {
		log.Warn("Skipping recommendations because purchases could not be listed")
	}

	return e.finish(ctx, run)
}

// syncPurchases resolves every purchase and stores the valid ones. ok is false when the purchase
// list itself could not be read, in which case recommendations cannot be computed.
func (e *Engine) syncPurchases(ctx context.Context, run *rebuildRun) ([]models.ConsolidatedPurchase, bool) {
	records, err := e.ledger.ListPurchases(ctx)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to list purchases")
		run.skip("purchases", err)
		return nil, false
	}

	valid := make([]models.ConsolidatedPurchase, 0, len(records))
	for _, r := range records {
		if r.CustomerName == nil || r.ProductName == nil {
			integrityErr := &clovererrors.IntegrityError{
				PurchaseID:      r.ID,
				CustomerID:      r.CustomerID,
				ProductID:       r.ProductID,
				MissingCustomer: r.CustomerName == nil,
				MissingProduct:  r.ProductName == nil,
			}
			e.logger.WithContext(ctx).WithError(integrityErr).WithField("purchase_id", r.ID).Warn("Skipping purchase with dangling reference")
			run.skip(fmt.Sprintf("purchase:%d", r.ID), integrityErr)
			continue
		}

		p := models.ConsolidatedPurchase{
			ID:           r.ID,
			CustomerID:   r.CustomerID,
			CustomerName: *r.CustomerName,
			ProductName:  *r.ProductName,
			PurchasedAt:  r.PurchasedAt,
		}
		if r.Price != nil {
			p.Price = *r.Price
		}
		valid = append(valid, p)
	}

	if err := e.store.PutPurchases(ctx, valid); err != nil {
		run.skip("purchases", err)
		return valid, true
	}
	run.result.Purchases = len(valid)
	return valid, true
}

// syncFriendLists fetches and stores every customer's friend list on the worker pool. Each
// worker writes only its own customer's key. Only cancellation is returned as an error.
func (e *Engine) syncFriendLists(ctx context.Context, run *rebuildRun, customers []models.Customer) error {
	ctx, span := tracing.StartSpan(ctx, "consolidation.Engine.syncFriendLists")
	defer span.End()

	run.edges = make([][]models.FriendEdge, len(customers))

	var g errgroup.Group
	g.SetLimit(e.workers)

	for i, c := range customers {
		if ctx.Err() != nil {
			break
		}
		i, c := i, c
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			key := fmt.Sprintf("friends:%d", c.ID)

			friends, err := e.graph.ListFriends(ctx, c.ID)
			if err != nil {
				e.logger.WithContext(ctx).WithError(err).WithField("customer_id", c.ID).Warn("Skipping friend list")
				run.skip(key, err)
				return nil
			}
			if err := e.store.PutFriendList(ctx, c.ID, friends); err != nil {
				run.skip(key, err)
				return nil
			}

			edges := make([]models.FriendEdge, len(friends))
			for j, f := range friends {
				edges[j] = models.FriendEdge{CustomerID: c.ID, FriendID: f.ID}
			}

			run.mu.Lock()
			run.edges[i] = edges
			run.result.FriendLists++
			run.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

func (e *Engine) finish(ctx context.Context, run *rebuildRun) (*models.RebuildResult, error) {
	status := models.RebuildStatusReady
	if len(run.result.Skipped) > 0 {
		status = models.RebuildStatusIncomplete
	}

	if err := e.store.SetStatus(ctx, status); err != nil {
		run.skip("rebuild:status", err)
	}

	run.result.Outcome = models.RebuildSucceeded
	if len(run.result.Skipped) > 0 {
		run.result.Outcome = models.RebuildPartial
	}
	run.result.FinishedAt = e.now()

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"rebuild_id":      clovercontext.GetRebuildID(ctx),
		"outcome":         run.result.Outcome,
		"customers":       run.result.Customers,
		"purchases":       run.result.Purchases,
		"friend_lists":    run.result.FriendLists,
		"recommendations": run.result.Recommendations,
		"skipped":         run.result.SkippedCount(),
		"duration":        run.result.FinishedAt.Sub(run.result.StartedAt),
	}).Info("Rebuild finished")

	return run.result, nil
}

// abort ends the rebuild. When the store was already touched it is marked incomplete, using a
// context that survives cancellation of ctx.
func (e *Engine) abort(ctx context.Context, run *rebuildRun, touched bool, err error) (*models.RebuildResult, error) {
	log := e.logger.WithContext(ctx).WithField("rebuild_id", clovercontext.GetRebuildID(ctx)).WithError(err)

	if touched {
		if markErr := e.store.SetStatus(context.WithoutCancel(ctx), models.RebuildStatusIncomplete); markErr != nil {
			log.WithField("mark_error", markErr.Error()).Error("Failed to mark view store incomplete")
		}
	}

	run.result.Outcome = models.RebuildAborted
	run.result.Error = err.Error()
	run.result.FinishedAt = e.now()
	log.Error("Rebuild aborted")

	return run.result, err
}
