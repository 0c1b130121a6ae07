package models

// Customer is a ledger customer. The ledger is the source of truth; the view store holds a copy.
type Customer struct {
	ID      int64  `json:"id" db:"id"`
	TaxID   string `json:"tax_id" db:"tax_id"`
	Name    string `json:"name" db:"name"`
	Address string `json:"address" db:"address"`
	City    string `json:"city" db:"city"`
	Region  string `json:"region" db:"region"`
	Email   string `json:"email" db:"email"`
}

// CreateCustomerRequest is the ingestion payload for a new customer
type CreateCustomerRequest struct {
	TaxID     string         `json:"tax_id" validate:"required,max=11"`
	Name      string         `json:"name" validate:"required,max=255"`
	Address   string         `json:"address" validate:"max=255"`
	City      string         `json:"city" validate:"max=100"`
	Region    string         `json:"region" validate:"max=2"`
	Email     string         `json:"email" validate:"omitempty,email,max=255"`
	Interests map[string]any `json:"interests,omitempty"`
}

// AddCustomerResult reports which secondary stores accepted the new customer.
// The ledger insert always succeeded when a result is returned.
type AddCustomerResult struct {
	Customer Customer `json:"customer"`
	Warnings []string `json:"warnings,omitempty"`
}

// FriendRef is a customer reference as returned by the graph and stored in a friend list.
type FriendRef struct {
	ID    int64  `json:"id"`
	TaxID string `json:"tax_id"`
	Name  string `json:"name"`
}

// FriendEdge is a directed friendship (CustomerID -> FriendID).
type FriendEdge struct {
	CustomerID int64 `json:"customer_id"`
	FriendID   int64 `json:"friend_id"`
}

// CreateFriendshipRequest creates a directed edge in the graph
type CreateFriendshipRequest struct {
	CustomerID int64 `json:"customer_id" validate:"required"`
	FriendID   int64 `json:"friend_id" validate:"required"`
}
