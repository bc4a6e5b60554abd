// Package apperror holds the domain error taxonomy shared by the order and
// payment workflows. Every error a caller can recover from at the request
// boundary is an *Error with a Kind; anything else is treated as internal.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindForbidden         Kind = "FORBIDDEN"
	KindValidation        Kind = "VALIDATION_ERROR"
	KindPaymentGateway    Kind = "PAYMENT_GATEWAY_ERROR"
	KindConflict          Kind = "CONFLICT"
	KindUnauthorized      Kind = "UNAUTHORIZED"
)

// GatewayFailure distinguishes why a payment gateway call did not succeed.
type GatewayFailure string

const (
	GatewayTimeout     GatewayFailure = "timeout"
	GatewayRejected    GatewayFailure = "rejected"
	GatewayUnavailable GatewayFailure = "unavailable"
)

type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to the status code written at the request boundary.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientStock, KindInvalidTransition, KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindPaymentGateway:
		return http.StatusBadGateway
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func InsufficientStock(productID string, available, requested int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", productID, available, requested),
		Details: map[string]any{
			"productId": productID,
			"available": available,
			"requested": requested,
		},
	}
}

func InvalidTransition(entity, from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		Details: map[string]any{"from": from, "to": to},
	}
}

func PaymentGateway(gateway string, failure GatewayFailure, err error) *Error {
	return &Error{
		Kind:    KindPaymentGateway,
		Message: fmt.Sprintf("payment gateway %s: %s", gateway, failure),
		Details: map[string]any{"gateway": gateway, "failure": string(failure)},
		Err:     err,
	}
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// GatewayFailureOf returns the gateway failure class carried by err, if any.
func GatewayFailureOf(err error) (GatewayFailure, bool) {
	appErr, ok := As(err)
	if !ok || appErr.Kind != KindPaymentGateway {
		return "", false
	}
	failure, ok := appErr.Details["failure"].(string)
	return GatewayFailure(failure), ok
}
