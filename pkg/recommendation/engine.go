// Package recommendation computes, for each directed friendship edge, the products the
// recommender bought that the friend has not.
package recommendation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Writer stores one recommendation list.
type Writer interface {
	PutRecommendation(ctx context.Context, rec models.Recommendation) error
}

// PublishResult reports how many edges were written and which ones failed.
type PublishResult struct {
	Written  int
	Failures []clovererrors.RowFailure
}

type Engine struct {
	store   Writer
	workers int
	logger  ectologger.Logger
}

func NewEngine(store Writer, workers int, logger ectologger.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		store:   store,
		workers: workers,
		logger:  logger,
	}
}

// PurchasedSets groups product names by customer, most recent purchase first. A product bought
// more than once keeps the position of its most recent purchase. Names match exactly.
func PurchasedSets(purchases []models.ConsolidatedPurchase) map[int64][]string {
	ordered := make([]models.ConsolidatedPurchase, len(purchases))
	copy(ordered, purchases)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PurchasedAt.After(ordered[j].PurchasedAt)
	})

	sets := make(map[int64][]string)
	seen := make(map[int64]map[string]bool)
	for _, p := range ordered {
		if seen[p.CustomerID] == nil {
			seen[p.CustomerID] = make(map[string]bool)
		}
		if seen[p.CustomerID][p.ProductName] {
			continue
		}
		seen[p.CustomerID][p.ProductName] = true
		sets[p.CustomerID] = append(sets[p.CustomerID], p.ProductName)
	}
	return sets
}

// Recommend returns purchased(recommender) minus purchased(friend), in the recommender's order.
// A self-edge always yields an empty list.
func Recommend(purchased map[int64][]string, recommender, friend int64) models.Recommendation {
	owned := make(map[string]bool, len(purchased[friend]))
	for _, name := range purchased[friend] {
		owned[name] = true
	}

	products := []string{}
	for _, name := range purchased[recommender] {
		if !owned[name] {
			products = append(products, name)
		}
	}

	return models.Recommendation{
		RecommenderID:         recommender,
		FriendID:              friend,
		Products:              products,
		RecommenderHasHistory: len(purchased[recommender]) > 0,
	}
}

// DedupeEdges drops repeated edges, keeping first-seen order.
func DedupeEdges(edges []models.FriendEdge) []models.FriendEdge {
	seen := make(map[models.FriendEdge]bool, len(edges))
	out := make([]models.FriendEdge, 0, len(edges))
	for _, e := range edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// Publish computes and stores one list per distinct edge on a bounded worker pool. A failed
// write is recorded and does not stop the others. Cancelling ctx stops scheduling new edges
// and returns ctx.Err() along with what was written so far.
func (e *Engine) Publish(ctx context.Context, purchased map[int64][]string, edges []models.FriendEdge) (*PublishResult, error) {
	ctx, span := tracing.StartSpan(ctx, "recommendation.Engine.Publish")
	defer span.End()

	edges = DedupeEdges(edges)
	result := &PublishResult{}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.workers)

	for _, edge := range edges {
		if ctx.Err() != nil {
			break
		}
		edge := edge
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rec := Recommend(purchased, edge.CustomerID, edge.FriendID)
			err := e.store.PutRecommendation(ctx, rec)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				key := fmt.Sprintf("recommendations:%d:%d", edge.CustomerID, edge.FriendID)
				e.logger.WithContext(ctx).WithError(err).WithField("key", key).Warn("Skipping recommendation")
				result.Failures = append(result.Failures, clovererrors.NewRowFailure(key, err))
				return nil
			}
			result.Written++
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(result.Failures, func(i, j int) bool { return result.Failures[i].Key < result.Failures[j].Key })

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
