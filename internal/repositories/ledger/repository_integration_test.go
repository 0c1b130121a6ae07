package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

// newIntegrationRepository connects to the ledger named by DB_* and applies the migrations.
func newIntegrationRepository(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	host := os.Getenv("DB_HOST")
	if host == "" {
		t.Skip("DB_HOST not set")
	}

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "clover"
	}
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, envOr("DB_PORT", "5432"), os.Getenv("DB_USER_NAME"), os.Getenv("DB_PASSWORD"), dbName)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sqlxDB, err := database.Connect(ctx, dsn, database.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlxDB.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: filepath.Join("..", "..", "..", "db", "pg"),
	})
	require.NoError(t, migrations.MigratePostgres(sqlxDB.DB, dbName))

	return NewRepository(database.NewDatabaseInstance(sqlxDB, logger), logger)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func uniqueTaxID() string {
	return fmt.Sprintf("%011d", time.Now().UnixNano()%100000000000)
}

func TestRepository_PurchaseLifecycle(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()

	customer, err := repo.InsertCustomer(ctx, models.CreateCustomerRequest{TaxID: uniqueTaxID(), Name: "Ana"})
	require.NoError(t, err)
	product, err := repo.InsertProduct(ctx, models.CreateProductRequest{Name: "Laptop", Price: 1200})
	require.NoError(t, err)

	purchase, err := repo.InsertPurchase(ctx, customer.ID, product.ID)
	require.NoError(t, err)
	assert.NotZero(t, purchase.ID)
	assert.False(t, purchase.PurchasedAt.IsZero())

	purchases, err := repo.ListPurchases(ctx)
	require.NoError(t, err)

	var found *models.PurchaseRecord
	for i := range purchases {
		if purchases[i].ID == purchase.ID {
			found = &purchases[i]
		}
	}
	require.NotNil(t, found)
	require.NotNil(t, found.CustomerName)
	require.NotNil(t, found.ProductName)
	assert.Equal(t, "Ana", *found.CustomerName)
	assert.Equal(t, "Laptop", *found.ProductName)

	byTax, err := repo.GetCustomerByTaxID(ctx, customer.TaxID)
	require.NoError(t, err)
	require.NotNil(t, byTax)
	assert.Equal(t, customer.ID, byTax.ID)
}

func TestRepository_InsertPurchaseMissingProduct(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()

	customer, err := repo.InsertCustomer(ctx, models.CreateCustomerRequest{TaxID: uniqueTaxID(), Name: "Bia"})
	require.NoError(t, err)

	_, err = repo.InsertPurchase(ctx, customer.ID, -1)
	require.Error(t, err)
	assert.Equal(t, clovererrors.KindIntegrity, clovererrors.KindOf(err))
}

func TestRepository_DuplicateTaxID(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()

	req := models.CreateCustomerRequest{TaxID: uniqueTaxID(), Name: "Caio"}
	_, err := repo.InsertCustomer(ctx, req)
	require.NoError(t, err)

	_, err = repo.InsertCustomer(ctx, req)
	require.Error(t, err)
	assert.Equal(t, 409, httperror.GetStatusCode(err))
}

func TestRepository_GetCustomerNotFound(t *testing.T) {
	repo := newIntegrationRepository(t)

	_, err := repo.GetCustomer(context.Background(), -1)
	require.Error(t, err)
	assert.Equal(t, 404, httperror.GetStatusCode(err))
}

func TestRepository_SalesSummaryListsCustomersWithoutPurchases(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()

	buyer, err := repo.InsertCustomer(ctx, models.CreateCustomerRequest{TaxID: uniqueTaxID(), Name: "Davi"})
	require.NoError(t, err)
	idle, err := repo.InsertCustomer(ctx, models.CreateCustomerRequest{TaxID: uniqueTaxID(), Name: "Eva"})
	require.NoError(t, err)
	product, err := repo.InsertProduct(ctx, models.CreateProductRequest{Name: "Headset", Price: 300})
	require.NoError(t, err)
	_, err = repo.InsertPurchase(ctx, buyer.ID, product.ID)
	require.NoError(t, err)

	summary, err := repo.SalesSummary(ctx)
	require.NoError(t, err)

	rows := map[int64]models.CustomerSpend{}
	for _, row := range summary.Customers {
		rows[row.CustomerID] = row
	}

	require.Contains(t, rows, buyer.ID)
	assert.Equal(t, 1, rows[buyer.ID].Purchases)
	assert.InDelta(t, 300, rows[buyer.ID].TotalSpent, 0.001)

	require.Contains(t, rows, idle.ID)
	assert.Equal(t, "Eva", rows[idle.ID].Name)
	assert.Equal(t, 0, rows[idle.ID].Purchases)
	assert.Zero(t, rows[idle.ID].TotalSpent)
}
