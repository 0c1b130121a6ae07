package models

// InterestProfile is a free-form customer interest document kept in the document store.
type InterestProfile struct {
	CustomerID int64          `json:"customer_id" bson:"customer_id"`
	TaxID      string         `json:"tax_id" bson:"tax_id"`
	Name       string         `json:"name" bson:"name"`
	Interests  map[string]any `json:"interests" bson:"interests"`
}

type UpdateInterestsRequest struct {
	Interests map[string]any `json:"interests" validate:"required"`
}

// CustomerSpend is one row of the sales summary.
type CustomerSpend struct {
	CustomerID int64   `json:"customer_id" db:"customer_id"`
	Name       string  `json:"name" db:"name"`
	Purchases  int     `json:"purchases" db:"purchases"`
	TotalSpent float64 `json:"total_spent" db:"total_spent"`
}

type SalesSummary struct {
	TotalRevenue float64         `json:"total_revenue"`
	Customers    []CustomerSpend `json:"customers"`
}
