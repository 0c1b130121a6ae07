package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectivityError(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewConnectivityError("viewstore", "put_friend_list", "clover:friends:7", cause)

	assert.Equal(t, "viewstore: put_friend_list failed for clover:friends:7: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ledger: ping failed", NewConnectivityError("ledger", "ping", "", nil).Error())
}

func TestIntegrityError(t *testing.T) {
	err := &IntegrityError{PurchaseID: 3, CustomerID: 1, ProductID: 9, MissingProduct: true}
	assert.Equal(t, "purchase 3 references missing product 9", err.Error())

	both := &IntegrityError{PurchaseID: 4, CustomerID: 2, ProductID: 8, MissingCustomer: true, MissingProduct: true}
	assert.Equal(t, "purchase 4 references missing customer 2 and product 8", both.Error())
}

func TestKindOf(t *testing.T) {
	conn := NewConnectivityError("graph", "list_friends", "1", stderrors.New("timeout"))
	integrity := &IntegrityError{PurchaseID: 1, MissingCustomer: true}

	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindConnectivity, KindOf(conn))
	assert.Equal(t, KindConnectivity, KindOf(fmt.Errorf("wrapped: %w", conn)))
	assert.Equal(t, KindIntegrity, KindOf(integrity))
	assert.Equal(t, KindConfiguration, KindOf(NewConfigurationError("DB_HOST", "required")))
	assert.Equal(t, KindUnknown, KindOf(stderrors.New("boom")))

	partial := &PartialSyncError{Failures: []RowFailure{NewRowFailure("purchase:1", integrity)}}
	assert.Equal(t, KindPartialSync, KindOf(partial))
}

func TestPartialSyncErrorUnwrap(t *testing.T) {
	conn := NewConnectivityError("viewstore", "put_recommendation", "k", stderrors.New("down"))
	integrity := &IntegrityError{PurchaseID: 5, MissingProduct: true}
	err := &PartialSyncError{Failures: []RowFailure{
		NewRowFailure("recommendations:1:2", conn),
		NewRowFailure("purchase:5", integrity),
	}}

	assert.Equal(t, "rebuild completed with 2 skipped rows", err.Error())
	assert.ErrorIs(t, err, conn)

	var target *IntegrityError
	require.True(t, stderrors.As(err, &target))
	assert.Equal(t, int64(5), target.PurchaseID)
}

func TestNewRowFailure(t *testing.T) {
	failure := NewRowFailure("friends:3", NewConnectivityError("graph", "list_friends", "3", stderrors.New("timeout")))
	assert.Equal(t, KindConnectivity, failure.Kind)
	assert.Equal(t, "friends:3", failure.Key)
	assert.Contains(t, failure.Reason, "timeout")
}

func TestToHTTPError(t *testing.T) {
	assert.Nil(t, ToHTTPError(nil))

	tests := []struct {
		err    error
		status int
	}{
		{NewConnectivityError("ledger", "list_customers", "", stderrors.New("down")), http.StatusServiceUnavailable},
		{&IntegrityError{PurchaseID: 1, MissingProduct: true}, http.StatusUnprocessableEntity},
		{NewConfigurationError("DB_HOST", "required"), http.StatusInternalServerError},
		{stderrors.New("boom"), http.StatusInternalServerError},
		{httperror.NewHTTPError(http.StatusNotFound, "missing"), http.StatusNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, httperror.GetStatusCode(ToHTTPError(tt.err)), tt.err.Error())
	}
}
