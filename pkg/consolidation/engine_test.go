package consolidation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/viewstore"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }

type fakeLedger struct {
	customers    []models.Customer
	purchases    []models.PurchaseRecord
	customersErr error
	purchasesErr error
}

func (l *fakeLedger) ListCustomers(context.Context) ([]models.Customer, error) {
	return l.customers, l.customersErr
}

func (l *fakeLedger) ListPurchases(context.Context) ([]models.PurchaseRecord, error) {
	return l.purchases, l.purchasesErr
}

type fakeGraph struct {
	friends map[int64][]models.FriendRef
	failFor map[int64]error
	onList  func(customerID int64)
}

func (g *fakeGraph) ListFriends(_ context.Context, customerID int64) ([]models.FriendRef, error) {
	if g.onList != nil {
		g.onList(customerID)
	}
	if err := g.failFor[customerID]; err != nil {
		return nil, err
	}
	return g.friends[customerID], nil
}

type fakeStore struct {
	mu              sync.Mutex
	statuses        []models.RebuildStatus
	clears          int
	customers       []models.Customer
	purchases       []models.ConsolidatedPurchase
	friends         map[int64][]models.FriendRef
	recommendations map[models.FriendEdge]models.Recommendation

	clearErr        error
	putCustomersErr error
	putFriendErr    map[int64]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		friends:         map[int64][]models.FriendRef{},
		recommendations: map[models.FriendEdge]models.Recommendation{},
		putFriendErr:    map[int64]error{},
	}
}

func (s *fakeStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	if s.clearErr != nil {
		return s.clearErr
	}
	s.customers = nil
	s.purchases = nil
	s.friends = map[int64][]models.FriendRef{}
	s.recommendations = map[models.FriendEdge]models.Recommendation{}
	return nil
}

func (s *fakeStore) SetStatus(_ context.Context, status models.RebuildStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) PutCustomers(_ context.Context, customers []models.Customer) error {
	if s.putCustomersErr != nil {
		return s.putCustomersErr
	}
	s.customers = customers
	return nil
}

func (s *fakeStore) PutPurchases(_ context.Context, purchases []models.ConsolidatedPurchase) error {
	s.purchases = purchases
	return nil
}

func (s *fakeStore) PutFriendList(_ context.Context, customerID int64, friends []models.FriendRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putFriendErr[customerID]; err != nil {
		return err
	}
	s.friends[customerID] = friends
	return nil
}

func (s *fakeStore) PutRecommendation(_ context.Context, rec models.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendations[models.FriendEdge{CustomerID: rec.RecommenderID, FriendID: rec.FriendID}] = rec
	return nil
}

func (s *fakeStore) lastStatus() models.RebuildStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return models.RebuildStatusEmpty
	}
	return s.statuses[len(s.statuses)-1]
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// sampleSources builds A(1) bought Laptop and Mouse, B(2) bought Mouse, C(3) bought nothing,
// D(4) bought Book, with edges A->B and C->D.
func sampleSources() (*fakeLedger, *fakeGraph) {
	ledger := &fakeLedger{
		customers: []models.Customer{
			{ID: 1, TaxID: "1", Name: "A"},
			{ID: 2, TaxID: "2", Name: "B"},
			{ID: 3, TaxID: "3", Name: "C"},
			{ID: 4, TaxID: "4", Name: "D"},
		},
		purchases: []models.PurchaseRecord{
			{ID: 13, CustomerID: 4, ProductID: 30, CustomerName: strPtr("D"), ProductName: strPtr("Book"), Price: floatPtr(40), PurchasedAt: t0.Add(3 * time.Hour)},
			{ID: 12, CustomerID: 1, ProductID: 10, CustomerName: strPtr("A"), ProductName: strPtr("Laptop"), Price: floatPtr(3000), PurchasedAt: t0.Add(2 * time.Hour)},
			{ID: 11, CustomerID: 2, ProductID: 20, CustomerName: strPtr("B"), ProductName: strPtr("Mouse"), Price: floatPtr(50), PurchasedAt: t0.Add(time.Hour)},
			{ID: 10, CustomerID: 1, ProductID: 20, CustomerName: strPtr("A"), ProductName: strPtr("Mouse"), Price: floatPtr(50), PurchasedAt: t0},
		},
	}
	graph := &fakeGraph{friends: map[int64][]models.FriendRef{
		1: {{ID: 2, TaxID: "2", Name: "B"}},
		3: {{ID: 4, TaxID: "4", Name: "D"}},
	}}
	return ledger, graph
}

func TestRebuild_Succeeds(t *testing.T) {
	ledger, graph := sampleSources()
	store := newFakeStore()
	engine := NewEngine(ledger, graph, store, 4, testLogger())

	result, err := engine.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RebuildSucceeded, result.Outcome)
	assert.Equal(t, 4, result.Customers)
	assert.Equal(t, 4, result.Purchases)
	assert.Equal(t, 4, result.FriendLists)
	assert.Equal(t, 2, result.Recommendations)
	assert.Empty(t, result.Skipped)
	assert.NoError(t, result.Err())

	assert.Equal(t, []models.RebuildStatus{models.RebuildStatusRebuilding, models.RebuildStatusReady}, store.statuses)
	assert.Equal(t, 1, store.clears)
	assert.Equal(t, "Laptop", store.purchases[1].ProductName)
	assert.Equal(t, float64(3000), store.purchases[1].Price)

	ab := store.recommendations[models.FriendEdge{CustomerID: 1, FriendID: 2}]
	assert.Equal(t, []string{"Laptop"}, ab.Products)
	assert.True(t, ab.RecommenderHasHistory)

	cd := store.recommendations[models.FriendEdge{CustomerID: 3, FriendID: 4}]
	assert.Empty(t, cd.Products)
	assert.False(t, cd.RecommenderHasHistory)
}

func TestRebuild_DanglingProductIsSkipped(t *testing.T) {
	ledger, graph := sampleSources()
	ledger.purchases = append(ledger.purchases, models.PurchaseRecord{
		ID: 99, CustomerID: 2, ProductID: 404, CustomerName: strPtr("B"), PurchasedAt: t0.Add(-time.Hour),
	})
	store := newFakeStore()
	engine := NewEngine(ledger, graph, store, 2, testLogger())

	result, err := engine.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RebuildPartial, result.Outcome)
	assert.Equal(t, 4, result.Purchases)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "purchase:99", result.Skipped[0].Key)
	assert.Equal(t, clovererrors.KindIntegrity, result.Skipped[0].Kind)

	var integrityErr *clovererrors.IntegrityError
	require.True(t, errors.As(result.Err(), &integrityErr))
	assert.True(t, integrityErr.MissingProduct)
	assert.False(t, integrityErr.MissingCustomer)

	assert.Len(t, store.purchases, 4)
	assert.Equal(t, models.RebuildStatusIncomplete, store.lastStatus())
}

func TestRebuild_ZeroCustomersIsNotAnError(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(&fakeLedger{}, &fakeGraph{}, store, 2, testLogger())

	result, err := engine.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RebuildSucceeded, result.Outcome)
	assert.Zero(t, result.Customers)
	assert.Zero(t, result.Recommendations)
	assert.Equal(t, models.RebuildStatusReady, store.lastStatus())
}

func TestRebuild_CustomerListFailureLeavesStoreUntouched(t *testing.T) {
	ledger, graph := sampleSources()
	ledger.customersErr = clovererrors.NewConnectivityError("ledger", "list_customers", "", errors.New("connection refused"))
	store := newFakeStore()
	engine := NewEngine(ledger, graph, store, 2, testLogger())

	result, err := engine.Rebuild(context.Background())
	require.Error(t, err)
	assert.Equal(t, clovererrors.KindConnectivity, clovererrors.KindOf(err))
	assert.Equal(t, models.RebuildAborted, result.Outcome)
	assert.NotEmpty(t, result.Error)
	assert.Zero(t, store.clears)
	assert.Empty(t, store.statuses)
}

func TestRebuild_ClearFailureAborts(t *testing.T) {
	ledger, graph := sampleSources()
	store := newFakeStore()
	store.clearErr = errors.New("READONLY")
	engine := NewEngine(ledger, graph, store, 2, testLogger())

	result, err := engine.Rebuild(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.RebuildAborted, result.Outcome)
	assert.Nil(t, store.customers)
	assert.Equal(t, models.RebuildStatusIncomplete, store.lastStatus())
}

func TestRebuild_StoreCustomersFailureAborts(t *testing.T) {
	ledger, graph := sampleSources()
	store := newFakeStore()
	store.putCustomersErr = errors.New("OOM")
	engine := NewEngine(ledger, graph, store, 2, testLogger())

	result, err := engine.Rebuild(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.RebuildAborted, result.Outcome)
	assert.Empty(t, store.recommendations)
	assert.Equal(t, models.RebuildStatusIncomplete, store.lastStatus())
}

func TestRebuild_FriendListFailureIsIsolated(t *testing.T) {
	ledger, graph := sampleSources()
	graph.failFor = map[int64]error{3: errors.New("graph timeout")}
	store := newFakeStore()
	engine := NewEngine(ledger, graph, store, 2, testLogger())

	result, err := engine.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RebuildPartial, result.Outcome)
	assert.Equal(t, 3, result.FriendLists)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "friends:3", result.Skipped[0].Key)

	var partial *clovererrors.PartialSyncError
	require.True(t, errors.As(result.Err(), &partial))
	assert.Equal(t, clovererrors.KindPartialSync, clovererrors.KindOf(result.Err()))

	assert.Contains(t, store.recommendations, models.FriendEdge{CustomerID: 1, FriendID: 2})
	assert.NotContains(t, store.recommendations, models.FriendEdge{CustomerID: 3, FriendID: 4})
}

func TestRebuild_FriendListWriteFailureIsIsolated(t *testing.T) {
	ledger, graph := sampleSources()
	store := newFakeStore()
	store.putFriendErr[1] = errors.New("write failed")
	engine := NewEngine(ledger, graph, store, 2, testLogger())

	result, err := engine.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RebuildPartial, result.Outcome)
	assert.Equal(t, 3, result.FriendLists)
	assert.Equal(t, 1, result.Recommendations)
}

func TestRebuild_PurchaseListFailureSkipsRecommendations(t *testing.T) {
	ledger, graph := sampleSources()
	ledger.purchasesErr = errors.New("statement timeout")
	store := newFakeStore()
	engine := NewEngine(ledger, graph, store, 2, testLogger())

	result, err := engine.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RebuildPartial, result.Outcome)
	assert.Equal(t, 4, result.FriendLists)
	assert.Zero(t, result.Recommendations)
	assert.Empty(t, store.recommendations)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "purchases", result.Skipped[0].Key)
}

func TestRebuild_CancellationMarksIncomplete(t *testing.T) {
	ledger, graph := sampleSources()
	ctx, cancel := context.WithCancel(context.Background())
	graph.onList = func(int64) { cancel() }
	store := newFakeStore()
	engine := NewEngine(ledger, graph, store, 1, testLogger())

	result, err := engine.Rebuild(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.RebuildAborted, result.Outcome)
	assert.Empty(t, store.recommendations)
	assert.Equal(t, models.RebuildStatusIncomplete, store.lastStatus())
}

func TestRebuild_SharedTargetKeepsBothLists(t *testing.T) {
	ledger := &fakeLedger{
		customers: []models.Customer{{ID: 5, Name: "E"}, {ID: 6, Name: "F"}, {ID: 7, Name: "G"}},
		purchases: []models.PurchaseRecord{
			{ID: 1, CustomerID: 5, CustomerName: strPtr("E"), ProductName: strPtr("Book"), PurchasedAt: t0},
			{ID: 2, CustomerID: 6, CustomerName: strPtr("F"), ProductName: strPtr("Pen"), PurchasedAt: t0},
		},
	}
	graph := &fakeGraph{friends: map[int64][]models.FriendRef{
		5: {{ID: 7, Name: "G"}},
		6: {{ID: 7, Name: "G"}},
	}}
	store := newFakeStore()

	_, err := NewEngine(ledger, graph, store, 2, testLogger()).Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Book"}, store.recommendations[models.FriendEdge{CustomerID: 5, FriendID: 7}].Products)
	assert.Equal(t, []string{"Pen"}, store.recommendations[models.FriendEdge{CustomerID: 6, FriendID: 7}].Products)
}

func newRedisStore(t *testing.T) (*viewstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return viewstore.NewStore(viewstore.NewClientFromRedis(rdb, testLogger()), "clover:", testLogger()), mr
}

func TestRebuild_IdempotentOverUnchangedSources(t *testing.T) {
	ledger, graph := sampleSources()
	store, mr := newRedisStore(t)
	engine := NewEngine(ledger, graph, store, 4, testLogger())
	ctx := context.Background()

	_, err := engine.Rebuild(ctx)
	require.NoError(t, err)
	firstKeys := mr.Keys()
	firstView, err := store.Consolidated(ctx)
	require.NoError(t, err)

	_, err = engine.Rebuild(ctx)
	require.NoError(t, err)
	secondView, err := store.Consolidated(ctx)
	require.NoError(t, err)

	assert.Equal(t, firstKeys, mr.Keys())
	assert.Equal(t, firstView, secondView)
	assert.Equal(t, models.RebuildStatusReady, secondView.Status)

	rec, found, err := store.GetRecommendation(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"Laptop"}, rec.Products)
}

func TestRebuild_RemovesStaleEntries(t *testing.T) {
	ledger, graph := sampleSources()
	store, mr := newRedisStore(t)
	engine := NewEngine(ledger, graph, store, 2, testLogger())
	ctx := context.Background()

	_, err := engine.Rebuild(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists("clover:customer:4"))

	ledger.customers = ledger.customers[:3]
	delete(graph.friends, 3)
	_, err = engine.Rebuild(ctx)
	require.NoError(t, err)

	assert.False(t, mr.Exists("clover:customer:4"))
	assert.False(t, mr.Exists("clover:recommendations:3:4"))
}
