package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

// NewAlreadyClaimed reports the losing side of a claim race. Not an
// operator-attention condition, only caller feedback.
func NewAlreadyClaimed(ticketNumber string, claimantID string) error {
	return NewDomainError("ALREADY_CLAIMED",
		fmt.Sprintf("ticket %s is already being handled by another agent", ticketNumber),
		http.StatusConflict,
		map[string]any{"ticket_number": ticketNumber, "claimant_id": claimantID})
}

func NewNotAuthorizedToClaim(message string) error {
	return NewDomainError("NOT_AUTHORIZED_TO_CLAIM", message, http.StatusForbidden, nil)
}

func NewNotAuthorizedToClose(message string) error {
	return NewDomainError("NOT_AUTHORIZED_TO_CLOSE", message, http.StatusForbidden, nil)
}

// NewNoActiveTicket reports a relay or close with no matching
// IN_PROGRESS ticket for the caller.
func NewNoActiveTicket(message string) error {
	return NewDomainError("NO_ACTIVE_TICKET", message, http.StatusConflict, nil)
}

// NewDeliveryFailed wraps an outbound send failure. State changes that
// preceded the send are never rolled back on this error.
func NewDeliveryFailed(recipientID string, err error) error {
	return &DomainError{
		Code:       "DELIVERY_FAILED",
		Message:    "could not deliver message to counterpart",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"recipient_id": recipientID},
		Err:        err,
	}
}

func NewUnsupportedContent(kind string) error {
	return NewDomainError("UNSUPPORTED_CONTENT",
		fmt.Sprintf("content kind %s has no forwarding mapping", kind),
		http.StatusUnprocessableEntity,
		map[string]any{"kind": kind})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// IsCode reports whether err carries the given domain error code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
