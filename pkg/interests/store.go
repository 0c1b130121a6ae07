// Package interests stores free-form customer interest profiles in MongoDB. Profiles are not
// part of the consolidated view.
package interests

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const storeName = "interests"

// Connect opens a MongoDB client and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, clovererrors.NewConnectivityError(storeName, "connect", "", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, clovererrors.NewConnectivityError(storeName, "ping", "", err)
	}
	return client, nil
}

// Collection opens name with embedded documents decoded as maps, so interests round-trip as JSON objects.
func Collection(client *mongo.Client, database, name string) *mongo.Collection {
	return client.Database(database).Collection(name,
		options.Collection().SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true}))
}

type Store struct {
	coll   *mongo.Collection
	logger ectologger.Logger
}

func NewStore(coll *mongo.Collection, logger ectologger.Logger) *Store {
	return &Store{
		coll:   coll,
		logger: logger,
	}
}

func (s *Store) fail(ctx context.Context, op string, customerID int64, err error) error {
	key := ""
	if customerID != 0 {
		key = strconv.FormatInt(customerID, 10)
	}
	s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"op": op, "key": key}).Error("Interest store operation failed")
	return clovererrors.NewConnectivityError(storeName, op, key, err)
}

// EnsureIndexes creates the unique customer_id index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "customer_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return s.fail(ctx, "ensure_indexes", 0, err)
	}
	return nil
}

// Insert stores a new profile. A second profile for the same customer is a 409.
func (s *Store) Insert(ctx context.Context, profile models.InterestProfile) error {
	ctx, span := tracing.StartSpan(ctx, "interests.Store.Insert")
	defer span.End()

	if profile.Interests == nil {
		profile.Interests = map[string]any{}
	}
	if _, err := s.coll.InsertOne(ctx, profile); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return httperror.NewHTTPErrorf(http.StatusConflict, "interest profile for customer %d already exists", profile.CustomerID)
		}
		return s.fail(ctx, "insert", profile.CustomerID, err)
	}
	return nil
}

// UpdateInterests replaces the interests of an existing profile, 404 when there is none.
func (s *Store) UpdateInterests(ctx context.Context, customerID int64, interests map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "interests.Store.UpdateInterests")
	defer span.End()

	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "customer_id", Value: customerID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "interests", Value: interests}}}},
	)
	if err != nil {
		return s.fail(ctx, "update_interests", customerID, err)
	}
	if res.MatchedCount == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "interest profile for customer %d not found", customerID)
	}
	return nil
}

// Get returns nil, nil when the customer has no profile.
func (s *Store) Get(ctx context.Context, customerID int64) (*models.InterestProfile, error) {
	ctx, span := tracing.StartSpan(ctx, "interests.Store.Get")
	defer span.End()

	var profile models.InterestProfile
	err := s.coll.FindOne(ctx, bson.D{{Key: "customer_id", Value: customerID}}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail(ctx, "get", customerID, err)
	}
	return &profile, nil
}

// List returns every profile ordered by customer id.
func (s *Store) List(ctx context.Context) ([]models.InterestProfile, error) {
	ctx, span := tracing.StartSpan(ctx, "interests.Store.List")
	defer span.End()

	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "customer_id", Value: 1}}))
	if err != nil {
		return nil, s.fail(ctx, "list", 0, err)
	}

	profiles := []models.InterestProfile{}
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, s.fail(ctx, "list", 0, err)
	}
	return profiles, nil
}

// Drop removes the whole collection.
func (s *Store) Drop(ctx context.Context) error {
	if err := s.coll.Drop(ctx); err != nil {
		return s.fail(ctx, "drop", 0, err)
	}
	return nil
}
