package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError_PassesThroughDomainErrors(t *testing.T) {
	err := NewNoActiveTicket("nothing in progress")
	converted := ToDomainError(err)
	assert.Equal(t, "NO_ACTIVE_TICKET", converted.Code)
	assert.Equal(t, http.StatusConflict, converted.HTTPStatus)
}

func TestToDomainError_MapsMissingRows(t *testing.T) {
	converted := ToDomainError(fmt.Errorf("lookup: %w", pgx.ErrNoRows))
	assert.Equal(t, "NOT_FOUND", converted.Code)
}

func TestToDomainError_WrapsUnknownErrors(t *testing.T) {
	converted := ToDomainError(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", converted.Code)
	assert.Equal(t, http.StatusInternalServerError, converted.HTTPStatus)
}

func TestIsCode(t *testing.T) {
	err := NewAlreadyClaimed("BH-20240101-0001", "agent-1")
	assert.True(t, IsCode(err, "ALREADY_CLAIMED"))
	assert.False(t, IsCode(err, "NOT_FOUND"))
	assert.False(t, IsCode(errors.New("plain"), "ALREADY_CLAIMED"))

	wrapped := fmt.Errorf("while claiming: %w", err)
	assert.True(t, IsCode(wrapped, "ALREADY_CLAIMED"))
}

func TestDeliveryFailedRetainsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDeliveryFailed("user-1", cause)

	var domainErr *DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "DELIVERY_FAILED", domainErr.Code)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "user-1", domainErr.Details["recipient_id"])
}
