package graph

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	storeName        = "graph"
	customerLabel    = "Customer"
	friendsRelType   = "FRIENDS_WITH"
	errNoCustomerMsg = "customer %d or %d not found in graph"
)

// FriendService reads and writes directed friendship edges between customer nodes.
type FriendService struct {
	client *Client
	logger ectologger.Logger
}

func NewFriendService(client *Client, logger ectologger.Logger) *FriendService {
	return &FriendService{
		client: client,
		logger: logger,
	}
}

// ListFriends returns the direct (one hop, outgoing) friends of customerID. Duplicate edges
// yield duplicate entries and a self-edge yields the customer itself.
func (s *FriendService) ListFriends(ctx context.Context, customerID int64) ([]models.FriendRef, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.FriendService.ListFriends")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (c:%s {id: $id})-[:%s]->(f:%s)
		RETURN f.id AS id, f.tax_id AS tax_id, f.name AS name
		ORDER BY f.id
	`, customerLabel, friendsRelType, customerLabel)

	res, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{"id": customerID})
		if err != nil {
			return nil, err
		}
		friends := []models.FriendRef{}
		for result.Next(ctx) {
			friends = append(friends, friendFromRecord(result.Record()))
		}
		return friends, result.Err()
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("customer_id", customerID).Error("Failed to list friends")
		return nil, clovererrors.NewConnectivityError(storeName, "list_friends", strconv.FormatInt(customerID, 10), err)
	}
	return res.([]models.FriendRef), nil
}

// CreateCustomerNode upserts the customer node so repeated ingestion does not duplicate it.
func (s *FriendService) CreateCustomerNode(ctx context.Context, id int64, taxID, name string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.FriendService.CreateCustomerNode")
	defer span.End()

	cypher := fmt.Sprintf(`
		MERGE (c:%s {id: $id})
		SET c.tax_id = $tax_id, c.name = $name
	`, customerLabel)

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":     id,
			"tax_id": taxID,
			"name":   name,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("customer_id", id).Error("Failed to create customer node")
		return clovererrors.NewConnectivityError(storeName, "create_customer_node", strconv.FormatInt(id, 10), err)
	}
	return nil
}

// CreateFriendEdge adds a directed edge from -> to. Edges are not deduplicated.
func (s *FriendService) CreateFriendEdge(ctx context.Context, from, to int64) error {
	ctx, span := tracing.StartSpan(ctx, "graph.FriendService.CreateFriendEdge")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (a:%s {id: $from})
		MATCH (b:%s {id: $to})
		CREATE (a)-[:%s]->(b)
		RETURN count(*) AS created
	`, customerLabel, customerLabel, friendsRelType)

	res, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{"from": from, "to": to})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return int64(0), result.Err()
		}
		created, _ := result.Record().Get("created")
		count, _ := created.(int64)
		return count, nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from": from, "to": to}).Error("Failed to create friend edge")
		return clovererrors.NewConnectivityError(storeName, "create_friend_edge", fmt.Sprintf("%d->%d", from, to), err)
	}
	if res.(int64) == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, errNoCustomerMsg, from, to)
	}
	return nil
}

// ClearAll removes every customer node and its edges.
func (s *FriendService) ClearAll(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "graph.FriendService.ClearAll")
	defer span.End()

	cypher := fmt.Sprintf("MATCH (c:%s) DETACH DELETE c", customerLabel)

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, nil)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to clear graph")
		return clovererrors.NewConnectivityError(storeName, "clear_all", "", err)
	}
	return nil
}

// Ping checks the graph connection.
func (s *FriendService) Ping(ctx context.Context) error {
	if err := s.client.VerifyConnectivity(ctx); err != nil {
		return clovererrors.NewConnectivityError(storeName, "ping", "", err)
	}
	return nil
}

func friendFromRecord(record *neo4j.Record) models.FriendRef {
	var friend models.FriendRef
	if v, ok := record.Get("id"); ok {
		friend.ID, _ = v.(int64)
	}
	if v, ok := record.Get("tax_id"); ok {
		friend.TaxID, _ = v.(string)
	}
	if v, ok := record.Get("name"); ok {
		friend.Name, _ = v.(string)
	}
	return friend
}
