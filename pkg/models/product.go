package models

import "time"

type Product struct {
	ID       int64   `json:"id" db:"id"`
	Name     string  `json:"name" db:"name"`
	Price    float64 `json:"price" db:"price"`
	Quantity int     `json:"quantity" db:"quantity"`
	Category string  `json:"category" db:"category"`
}

type CreateProductRequest struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Price    float64 `json:"price" validate:"gte=0"`
	Quantity int     `json:"quantity" validate:"gte=0"`
	Category string  `json:"category" validate:"max=100"`
}

// Purchase is a raw ledger purchase row.
type Purchase struct {
	ID          int64     `json:"id" db:"id"`
	CustomerID  int64     `json:"customer_id" db:"customer_id"`
	ProductID   int64     `json:"product_id" db:"product_id"`
	PurchasedAt time.Time `json:"purchased_at" db:"purchased_at"`
}

type CreatePurchaseRequest struct {
	CustomerID int64 `json:"customer_id" validate:"required"`
	ProductID  int64 `json:"product_id" validate:"required"`
}

// PurchaseRecord is a purchase joined with its customer and product at read time.
// CustomerName, ProductName and Price are nil when the reference does not resolve.
type PurchaseRecord struct {
	ID           int64     `db:"id"`
	CustomerID   int64     `db:"customer_id"`
	ProductID    int64     `db:"product_id"`
	CustomerName *string   `db:"customer_name"`
	ProductName  *string   `db:"product_name"`
	Price        *float64  `db:"price"`
	PurchasedAt  time.Time `db:"purchased_at"`
}

// ConsolidatedPurchase is the denormalized purchase written to the view store.
type ConsolidatedPurchase struct {
	ID           int64     `json:"id"`
	CustomerID   int64     `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	ProductName  string    `json:"product_name"`
	Price        float64   `json:"price"`
	PurchasedAt  time.Time `json:"timestamp"`
}

// PurchaseResult is returned by the ingestion path after registering a purchase.
type PurchaseResult struct {
	Purchase Purchase       `json:"purchase"`
	Rebuild  *RebuildResult `json:"rebuild,omitempty"`
}
