package viewstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	storeName     = "viewstore"
	scanBatchSize = 500

	customersKey = "customers"
	purchasesKey = "purchases"
	statusKey    = "rebuild:status"
)

// Store reads and writes the consolidated view under a key prefix.
//
// Layout (relative to the prefix):
//
//	customer:{id}                         hash
//	customers                             list of customer ids, ledger order
//	purchase:{id}                         hash
//	purchases                             list of purchase ids, most recent first
//	friends:{customerId}                  list of JSON friend refs
//	recommendations:{recommender}:{friend} list of product names
//	recommendation_meta:{recommender}:{friend} hash {has_history}
//	recommended_to:{friend}               set of recommender ids
//	rebuild:status                        string
type Store struct {
	client *Client
	prefix string
	logger ectologger.Logger
}

func NewStore(client *Client, prefix string, logger ectologger.Logger) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *Store) key(parts ...any) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += fmt.Sprint(p)
	}
	return k
}

func (s *Store) customerKey(id int64) string { return s.key("customer", id) }
func (s *Store) purchaseKey(id int64) string { return s.key("purchase", id) }
func (s *Store) friendsKey(id int64) string  { return s.key("friends", id) }

func (s *Store) recommendationKey(recommender, friend int64) string {
	return s.key("recommendations", recommender, friend)
}

func (s *Store) recommendationMetaKey(recommender, friend int64) string {
	return s.key("recommendation_meta", recommender, friend)
}

func (s *Store) recommendedToKey(friend int64) string {
	return s.key("recommended_to", friend)
}

func (s *Store) fail(ctx context.Context, op, key string, err error) error {
	s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"op": op, "key": key}).Error("View store operation failed")
	return clovererrors.NewConnectivityError(storeName, op, key, err)
}

// Clear deletes every key under the prefix except the rebuild status marker.
func (s *Store) Clear(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "viewstore.Store.Clear")
	defer span.End()

	rdb := s.client.rdb
	status := s.key(statusKey)
	deleted := 0

	var cursor uint64
	for {
		keys, next, err := rdb.Scan(ctx, cursor, s.prefix+"*", scanBatchSize).Result()
		if err != nil {
			return s.fail(ctx, "clear", s.prefix+"*", err)
		}

		batch := make([]string, 0, len(keys))
		for _, k := range keys {
			if k != status {
				batch = append(batch, k)
			}
		}
		if len(batch) > 0 {
			if err := rdb.Del(ctx, batch...).Err(); err != nil {
				return s.fail(ctx, "clear", s.prefix+"*", err)
			}
			deleted += len(batch)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	s.logger.WithContext(ctx).WithField("deleted", deleted).Debug("Cleared view store")
	return nil
}

func (s *Store) SetStatus(ctx context.Context, status models.RebuildStatus) error {
	if err := s.client.rdb.Set(ctx, s.key(statusKey), string(status), 0).Err(); err != nil {
		return s.fail(ctx, "set_status", s.key(statusKey), err)
	}
	return nil
}

// GetStatus returns RebuildStatusEmpty when no rebuild has ever run.
func (s *Store) GetStatus(ctx context.Context) (models.RebuildStatus, error) {
	status, err := s.client.rdb.Get(ctx, s.key(statusKey)).Result()
	if errors.Is(err, redis.Nil) {
		return models.RebuildStatusEmpty, nil
	}
	if err != nil {
		return models.RebuildStatusEmpty, s.fail(ctx, "get_status", s.key(statusKey), err)
	}
	return models.RebuildStatus(status), nil
}

// PutCustomers stores every customer hash and replaces the customer index in one transaction.
func (s *Store) PutCustomers(ctx context.Context, customers []models.Customer) error {
	ctx, span := tracing.StartSpan(ctx, "viewstore.Store.PutCustomers")
	defer span.End()

	_, err := s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(customersKey))
		for _, c := range customers {
			pipe.HSet(ctx, s.customerKey(c.ID), map[string]any{
				"id":      c.ID,
				"tax_id":  c.TaxID,
				"name":    c.Name,
				"email":   c.Email,
				"address": c.Address,
				"city":    c.City,
				"region":  c.Region,
			})
			pipe.RPush(ctx, s.key(customersKey), c.ID)
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, "put_customers", s.key(customersKey), err)
	}
	return nil
}

// PutPurchases stores every purchase hash and replaces the purchase index in one transaction.
func (s *Store) PutPurchases(ctx context.Context, purchases []models.ConsolidatedPurchase) error {
	ctx, span := tracing.StartSpan(ctx, "viewstore.Store.PutPurchases")
	defer span.End()

	_, err := s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(purchasesKey))
		for _, p := range purchases {
			pipe.HSet(ctx, s.purchaseKey(p.ID), map[string]any{
				"id":            p.ID,
				"customer_id":   p.CustomerID,
				"customer_name": p.CustomerName,
				"product_name":  p.ProductName,
				"price":         strconv.FormatFloat(p.Price, 'f', -1, 64),
				"timestamp":     p.PurchasedAt.UTC().Format(time.RFC3339Nano),
			})
			pipe.RPush(ctx, s.key(purchasesKey), p.ID)
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, "put_purchases", s.key(purchasesKey), err)
	}
	return nil
}

// PutFriendList replaces the friend list of customerID. An empty list leaves no key behind.
func (s *Store) PutFriendList(ctx context.Context, customerID int64, friends []models.FriendRef) error {
	key := s.friendsKey(customerID)

	values := make([]any, 0, len(friends))
	for _, f := range friends {
		raw, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("failed to encode friend %d: %w", f.ID, err)
		}
		values = append(values, string(raw))
	}

	_, err := s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, "put_friend_list", key, err)
	}
	return nil
}

// PutRecommendation stores the list for one directed edge and indexes it under the friend.
func (s *Store) PutRecommendation(ctx context.Context, rec models.Recommendation) error {
	key := s.recommendationKey(rec.RecommenderID, rec.FriendID)

	_, err := s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(rec.Products) > 0 {
			values := make([]any, len(rec.Products))
			for i, p := range rec.Products {
				values[i] = p
			}
			pipe.RPush(ctx, key, values...)
		}
		pipe.HSet(ctx, s.recommendationMetaKey(rec.RecommenderID, rec.FriendID), "has_history", strconv.FormatBool(rec.RecommenderHasHistory))
		pipe.SAdd(ctx, s.recommendedToKey(rec.FriendID), rec.RecommenderID)
		return nil
	})
	if err != nil {
		return s.fail(ctx, "put_recommendation", key, err)
	}
	return nil
}

// GetCustomers returns customers in ledger order.
func (s *Store) GetCustomers(ctx context.Context) ([]models.Customer, error) {
	ids, err := s.client.rdb.LRange(ctx, s.key(customersKey), 0, -1).Result()
	if err != nil {
		return nil, s.fail(ctx, "get_customers", s.key(customersKey), err)
	}

	hashes, err := s.hashes(ctx, ids, "customer")
	if err != nil {
		return nil, s.fail(ctx, "get_customers", s.key(customersKey), err)
	}

	customers := make([]models.Customer, 0, len(hashes))
	for _, h := range hashes {
		id, _ := strconv.ParseInt(h["id"], 10, 64)
		customers = append(customers, models.Customer{
			ID:      id,
			TaxID:   h["tax_id"],
			Name:    h["name"],
			Email:   h["email"],
			Address: h["address"],
			City:    h["city"],
			Region:  h["region"],
		})
	}
	return customers, nil
}

// GetPurchases returns purchases most recent first.
func (s *Store) GetPurchases(ctx context.Context) ([]models.ConsolidatedPurchase, error) {
	ids, err := s.client.rdb.LRange(ctx, s.key(purchasesKey), 0, -1).Result()
	if err != nil {
		return nil, s.fail(ctx, "get_purchases", s.key(purchasesKey), err)
	}

	hashes, err := s.hashes(ctx, ids, "purchase")
	if err != nil {
		return nil, s.fail(ctx, "get_purchases", s.key(purchasesKey), err)
	}

	purchases := make([]models.ConsolidatedPurchase, 0, len(hashes))
	for _, h := range hashes {
		id, _ := strconv.ParseInt(h["id"], 10, 64)
		customerID, _ := strconv.ParseInt(h["customer_id"], 10, 64)
		price, _ := strconv.ParseFloat(h["price"], 64)
		ts, _ := time.Parse(time.RFC3339Nano, h["timestamp"])
		purchases = append(purchases, models.ConsolidatedPurchase{
			ID:           id,
			CustomerID:   customerID,
			CustomerName: h["customer_name"],
			ProductName:  h["product_name"],
			Price:        price,
			PurchasedAt:  ts,
		})
	}
	return purchases, nil
}

// hashes fetches kind:{id} for every id, skipping ids whose hash is gone.
func (s *Store) hashes(ctx context.Context, ids []string, kind string) ([]map[string]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := s.client.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.key(kind, id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]map[string]string, 0, len(cmds))
	for _, cmd := range cmds {
		if h := cmd.Val(); len(h) > 0 {
			out = append(out, h)
		}
	}
	return out, nil
}

// GetFriendList returns an empty list when the customer has no friends stored.
func (s *Store) GetFriendList(ctx context.Context, customerID int64) ([]models.FriendRef, error) {
	key := s.friendsKey(customerID)
	raw, err := s.client.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, s.fail(ctx, "get_friend_list", key, err)
	}

	friends := make([]models.FriendRef, 0, len(raw))
	for _, r := range raw {
		var f models.FriendRef
		if err := json.Unmarshal([]byte(r), &f); err != nil {
			return nil, fmt.Errorf("failed to decode friend list %s: %w", key, err)
		}
		friends = append(friends, f)
	}
	return friends, nil
}

// GetRecommendation returns the list recommender -> friend. found is false when the edge was
// never written, which is distinct from an empty list.
func (s *Store) GetRecommendation(ctx context.Context, recommender, friend int64) (*models.Recommendation, bool, error) {
	key := s.recommendationKey(recommender, friend)

	var products *redis.StringSliceCmd
	var hasHistory *redis.StringCmd
	_, err := s.client.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		products = pipe.LRange(ctx, key, 0, -1)
		hasHistory = pipe.HGet(ctx, s.recommendationMetaKey(recommender, friend), "has_history")
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, s.fail(ctx, "get_recommendation", key, err)
	}

	meta, err := hasHistory.Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.fail(ctx, "get_recommendation", key, err)
	}

	history, _ := strconv.ParseBool(meta)
	return &models.Recommendation{
		RecommenderID:         recommender,
		FriendID:              friend,
		Products:              append([]string{}, products.Val()...),
		RecommenderHasHistory: history,
	}, true, nil
}

// GetRecommendationsFor returns every recommendation filed for friend, one per recommender,
// ordered by recommender id.
func (s *Store) GetRecommendationsFor(ctx context.Context, friend int64) ([]models.Recommendation, error) {
	key := s.recommendedToKey(friend)
	members, err := s.client.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, s.fail(ctx, "get_recommendations_for", key, err)
	}

	recommenders := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		recommenders = append(recommenders, id)
	}
	sort.Slice(recommenders, func(i, j int) bool { return recommenders[i] < recommenders[j] })

	recs := make([]models.Recommendation, 0, len(recommenders))
	for _, r := range recommenders {
		rec, found, err := s.GetRecommendation(ctx, r, friend)
		if err != nil {
			return nil, err
		}
		if found {
			recs = append(recs, *rec)
		}
	}
	return recs, nil
}

// Consolidated reads the whole view. Recommendations are grouped by recommender, one entry per
// distinct friend in that recommender's friend list.
func (s *Store) Consolidated(ctx context.Context) (*models.ConsolidatedView, error) {
	ctx, span := tracing.StartSpan(ctx, "viewstore.Store.Consolidated")
	defer span.End()

	status, err := s.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.GetCustomers(ctx)
	if err != nil {
		return nil, err
	}
	purchases, err := s.GetPurchases(ctx)
	if err != nil {
		return nil, err
	}

	view := &models.ConsolidatedView{
		Status:          status,
		Customers:       customers,
		Purchases:       purchases,
		Friends:         make(map[int64][]models.FriendRef, len(customers)),
		Recommendations: make(map[int64][]models.Recommendation, len(customers)),
	}

	for _, c := range customers {
		friends, err := s.GetFriendList(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		view.Friends[c.ID] = friends

		seen := make(map[int64]bool, len(friends))
		recs := []models.Recommendation{}
		for _, f := range friends {
			if seen[f.ID] {
				continue
			}
			seen[f.ID] = true
			rec, found, err := s.GetRecommendation(ctx, c.ID, f.ID)
			if err != nil {
				return nil, err
			}
			if found {
				recs = append(recs, *rec)
			}
		}
		view.Recommendations[c.ID] = recs
	}

	return view, nil
}
