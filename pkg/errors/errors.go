// Package errors defines the failure taxonomy shared by the ledger, graph and view store
// accessors and by the rebuild pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// Kind classifies a failure so callers can branch on it without parsing messages.
type Kind string

const (
	KindUnknown       Kind = "unknown"
	KindConnectivity  Kind = "connectivity"
	KindIntegrity     Kind = "integrity"
	KindPartialSync   Kind = "partial_sync"
	KindConfiguration Kind = "configuration"
)

// ConnectivityError is returned when a store could not be reached or rejected an operation.
type ConnectivityError struct {
	Store string
	Op    string
	Key   string
	Err   error
}

func NewConnectivityError(store, op, key string, err error) *ConnectivityError {
	return &ConnectivityError{Store: store, Op: op, Key: key, Err: err}
}

func (e *ConnectivityError) Error() string {
	msg := fmt.Sprintf("%s: %s failed", e.Store, e.Op)
	if e.Key != "" {
		msg += fmt.Sprintf(" for %s", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IntegrityError marks a purchase whose customer or product reference does not resolve.
type IntegrityError struct {
	PurchaseID      int64
	CustomerID      int64
	ProductID       int64
	MissingCustomer bool
	MissingProduct  bool
}

func (e *IntegrityError) Error() string {
	missing := []string{}
	if e.MissingCustomer {
		missing = append(missing, fmt.Sprintf("customer %d", e.CustomerID))
	}
	if e.MissingProduct {
		missing = append(missing, fmt.Sprintf("product %d", e.ProductID))
	}
	return fmt.Sprintf("purchase %d references missing %s", e.PurchaseID, strings.Join(missing, " and "))
}

// RowFailure is a single record that the rebuild skipped.
type RowFailure struct {
	Kind   Kind   `json:"kind"`
	Key    string `json:"key"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// NewRowFailure classifies err and attaches the view store key it was writing or resolving.
func NewRowFailure(key string, err error) RowFailure {
	failure := RowFailure{Kind: KindOf(err), Key: key, Err: err}
	if err != nil {
		failure.Reason = err.Error()
	}
	return failure
}

// PartialSyncError is reported when a rebuild finished but skipped one or more rows.
type PartialSyncError struct {
	Failures []RowFailure
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("rebuild completed with %d skipped rows", len(e.Failures))
}

// Unwrap exposes the individual row errors to errors.Is/As.
func (e *PartialSyncError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// ConfigurationError is returned at startup when a required setting is missing.
type ConfigurationError struct {
	Field   string
	Message string
}

func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Message)
}

// KindOf returns the taxonomy kind of err, looking through wrapped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var integrityErr *IntegrityError
	var partialErr *PartialSyncError
	var configErr *ConfigurationError
	var connErr *ConnectivityError

	// a PartialSyncError wraps its row errors, so it has to be matched before them
	switch {
	case stderrors.As(err, &partialErr):
		return KindPartialSync
	case stderrors.As(err, &integrityErr):
		return KindIntegrity
	case stderrors.As(err, &configErr):
		return KindConfiguration
	case stderrors.As(err, &connErr):
		return KindConnectivity
	default:
		return KindUnknown
	}
}

// ToHTTPError maps a taxonomy error onto an ectoerror HTTP error. Errors that already carry
// an HTTP status are returned unchanged.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}
	if httperror.IsHTTPError(err) {
		return err
	}

	switch KindOf(err) {
	case KindConnectivity:
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case KindIntegrity:
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case KindConfiguration:
		return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
