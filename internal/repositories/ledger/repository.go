package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	storeName = "ledger"

	uniqueViolation = pq.ErrorCode("23505")
)

var customerColumns = []string{
	"id",
	"tax_id",
	"name",
	"COALESCE(address, '') AS address",
	"COALESCE(city, '') AS city",
	"COALESCE(region, '') AS region",
	"COALESCE(email, '') AS email",
}

var productColumns = []string{
	"id",
	"name",
	"COALESCE(price, 0) AS price",
	"COALESCE(quantity, 0) AS quantity",
	"COALESCE(category, '') AS category",
}

// Repository reads and writes the customer ledger. It is the source of truth for customers,
// products and purchases.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) connErr(ctx context.Context, op, key string, err error) error {
	r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"op": op, "key": key}).Error("Ledger operation failed")
	return clovererrors.NewConnectivityError(storeName, op, key, err)
}

// ListCustomers returns every customer ordered by id.
func (r *Repository) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.ListCustomers")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(customerColumns...)
	sb.From("customers")
	sb.OrderBy("id")

	query, args := sb.Build()
	customers := []models.Customer{}
	if err := r.db.SelectContext(ctx, &customers, query, args...); err != nil {
		return nil, r.connErr(ctx, "list_customers", "", err)
	}
	return customers, nil
}

// ListProducts returns every product ordered by id.
func (r *Repository) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.ListProducts")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(productColumns...)
	sb.From("products")
	sb.OrderBy("id")

	query, args := sb.Build()
	products := []models.Product{}
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, r.connErr(ctx, "list_products", "", err)
	}
	return products, nil
}

// ListPurchases returns every purchase joined to its customer and product, most recent first.
// Rows whose references do not resolve are still returned, with nil names.
func (r *Repository) ListPurchases(ctx context.Context) ([]models.PurchaseRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.ListPurchases")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(
		"p.id AS id",
		"p.customer_id AS customer_id",
		"p.product_id AS product_id",
		"c.name AS customer_name",
		"pr.name AS product_name",
		"pr.price AS price",
		"p.purchased_at AS purchased_at",
	)
	sb.From("purchases p")
	sb.LeftJoin("customers c", "c.id = p.customer_id")
	sb.LeftJoin("products pr", "pr.id = p.product_id")
	sb.OrderBy("p.purchased_at DESC", "p.id DESC")

	query, args := sb.Build()
	purchases := []models.PurchaseRecord{}
	if err := r.db.SelectContext(ctx, &purchases, query, args...); err != nil {
		return nil, r.connErr(ctx, "list_purchases", "", err)
	}
	return purchases, nil
}

// GetCustomer returns a 404 HTTP error when the customer does not exist.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.GetCustomer")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(customerColumns...)
	sb.From("customers")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var customer models.Customer
	if err := r.db.GetContext(ctx, &customer, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "customer %d not found", id)
		}
		return nil, r.connErr(ctx, "get_customer", strconv.FormatInt(id, 10), err)
	}
	return &customer, nil
}

// GetCustomerByTaxID returns nil, nil when no customer has the tax id.
func (r *Repository) GetCustomerByTaxID(ctx context.Context, taxID string) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.GetCustomerByTaxID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(customerColumns...)
	sb.From("customers")
	sb.Where(sb.Equal("tax_id", taxID))

	query, args := sb.Build()
	var customer models.Customer
	if err := r.db.GetContext(ctx, &customer, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, r.connErr(ctx, "get_customer_by_tax_id", taxID, err)
	}
	return &customer, nil
}

// GetProduct returns a 404 HTTP error when the product does not exist.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.GetProduct")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(productColumns...)
	sb.From("products")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var product models.Product
	if err := r.db.GetContext(ctx, &product, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "product %d not found", id)
		}
		return nil, r.connErr(ctx, "get_product", strconv.FormatInt(id, 10), err)
	}
	return &product, nil
}

// InsertCustomer stores a new customer. A duplicate tax id is a 409.
func (r *Repository) InsertCustomer(ctx context.Context, req models.CreateCustomerRequest) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.InsertCustomer")
	defer span.End()

	customer := models.Customer{
		TaxID:   req.TaxID,
		Name:    req.Name,
		Address: req.Address,
		City:    req.City,
		Region:  req.Region,
		Email:   req.Email,
	}

	ib := database.NewInsertBuilder().
		InsertInto("customers").
		Cols("tax_id", "name", "address", "city", "region", "email").
		Values(customer.TaxID, customer.Name, customer.Address, customer.City, customer.Region, customer.Email).
		Returning("id")

	query, args := ib.Build()
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&customer.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict, "customer with tax id %s already exists", req.TaxID)
		}
		return nil, r.connErr(ctx, "insert_customer", req.TaxID, err)
	}

	r.logger.WithContext(ctx).WithField("customer_id", customer.ID).Debug("Inserted customer")
	return &customer, nil
}

func (r *Repository) InsertProduct(ctx context.Context, req models.CreateProductRequest) (*models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.InsertProduct")
	defer span.End()

	product := models.Product{
		Name:     req.Name,
		Price:    req.Price,
		Quantity: req.Quantity,
		Category: req.Category,
	}

	ib := database.NewInsertBuilder().
		InsertInto("products").
		Cols("name", "price", "quantity", "category").
		Values(product.Name, product.Price, product.Quantity, product.Category).
		Returning("id")

	query, args := ib.Build()
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&product.ID); err != nil {
		return nil, r.connErr(ctx, "insert_product", req.Name, err)
	}

	r.logger.WithContext(ctx).WithField("product_id", product.ID).Debug("Inserted product")
	return &product, nil
}

// InsertPurchase records a purchase after checking, in the same transaction, that both references
// exist. A missing reference is returned as an IntegrityError and nothing is written.
func (r *Repository) InsertPurchase(ctx context.Context, customerID, productID int64) (*models.Purchase, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.InsertPurchase")
	defer span.End()

	key := fmt.Sprintf("%d:%d", customerID, productID)

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, r.connErr(ctx, "insert_purchase", key, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	customerExists, err := exists(ctx, tx, "customers", customerID)
	if err != nil {
		return nil, r.connErr(ctx, "insert_purchase", key, err)
	}
	productExists, err := exists(ctx, tx, "products", productID)
	if err != nil {
		return nil, r.connErr(ctx, "insert_purchase", key, err)
	}
	if !customerExists || !productExists {
		return nil, &clovererrors.IntegrityError{
			CustomerID:      customerID,
			ProductID:       productID,
			MissingCustomer: !customerExists,
			MissingProduct:  !productExists,
		}
	}

	ib := database.NewInsertBuilder().
		InsertInto("purchases").
		Cols("customer_id", "product_id").
		Values(customerID, productID).
		Returning("id", "purchased_at")

	query, args := ib.Build()
	purchase := models.Purchase{CustomerID: customerID, ProductID: productID}
	if err := tx.QueryRowxContext(ctx, query, args...).Scan(&purchase.ID, &purchase.PurchasedAt); err != nil {
		return nil, r.connErr(ctx, "insert_purchase", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, r.connErr(ctx, "insert_purchase", key, err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"purchase_id": purchase.ID,
		"customer_id": customerID,
		"product_id":  productID,
	}).Debug("Inserted purchase")
	return &purchase, nil
}

// SalesSummary totals purchases per customer, biggest spenders first.
// Customers without purchases are listed with zero totals.
func (r *Repository) SalesSummary(ctx context.Context) (*models.SalesSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.SalesSummary")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"c.id AS customer_id",
		"c.name AS name",
		"COUNT(p.id) AS purchases",
		"COALESCE(SUM(pr.price), 0) AS total_spent",
	)
	sb.From("customers c")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "purchases p", "p.customer_id = c.id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "products pr", "pr.id = p.product_id")
	sb.GroupBy("c.id", "c.name")
	sb.OrderBy("total_spent DESC", "c.id")

	query, args := sb.Build()
	rows := []models.CustomerSpend{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, r.connErr(ctx, "sales_summary", "", err)
	}

	summary := &models.SalesSummary{Customers: rows}
	for _, row := range rows {
		summary.TotalRevenue += row.TotalSpent
	}
	return summary, nil
}

// Ping checks the ledger connection.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return clovererrors.NewConnectivityError(storeName, "ping", "", err)
	}
	return nil
}

func exists(ctx context.Context, tx database.Tx, table string, id int64) (bool, error) {
	var found bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", table)
	if err := tx.GetContext(ctx, &found, query, id); err != nil {
		return false, err
	}
	return found, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
