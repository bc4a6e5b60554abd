package client

import (
	"context"
	"errors"
	"net"
	"net/url"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/model"

	"github.com/shopspring/decimal"
)

type CaptureOutcome string

const (
	CaptureCaptured CaptureOutcome = "captured"
	// CapturePending means the gateway has not settled the charge yet, for
	// example a PayPal order the buyer did not approve.
	CapturePending  CaptureOutcome = "pending"
	CaptureRejected CaptureOutcome = "rejected"
)

type ChargeRequest struct {
	Reference string
	Amount    decimal.Decimal
	Currency  string
}

type Charge struct {
	Handle      string
	ClientToken string
}

type CaptureRequest struct {
	Handle          string
	ConfirmationRef string
	Amount          decimal.Decimal
	Currency        string
}

type CaptureResult struct {
	Outcome        CaptureOutcome
	TransactionRef string
	Reason         string
}

type RefundRequest struct {
	TransactionRef string
	Amount         decimal.Decimal
	Currency       string
	Reason         string
}

type RefundResult struct {
	RefundRef string
}

// PaymentGateway is the remote payment capability. Failures are returned as
// apperror PaymentGateway errors classified timeout, rejected or unavailable.
type PaymentGateway interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// GatewayRegistry routes payment methods to gateways.
type GatewayRegistry struct {
	byMethod map[model.PaymentMethod]PaymentGateway
	byName   map[string]PaymentGateway
}

func NewGatewayRegistry() *GatewayRegistry {
	return &GatewayRegistry{
		byMethod: make(map[model.PaymentMethod]PaymentGateway),
		byName:   make(map[string]PaymentGateway),
	}
}

func (r *GatewayRegistry) Register(gateway PaymentGateway, methods ...model.PaymentMethod) {
	r.byName[gateway.Name()] = gateway
	for _, m := range methods {
		r.byMethod[m] = gateway
	}
}

func (r *GatewayRegistry) ForMethod(method model.PaymentMethod) (PaymentGateway, error) {
	gateway, ok := r.byMethod[method]
	if !ok {
		return nil, apperror.Validation("payment method %q is not available", method)
	}
	return gateway, nil
}

func (r *GatewayRegistry) Supports(method model.PaymentMethod) bool {
	_, ok := r.byMethod[method]
	return ok
}

func (r *GatewayRegistry) ByName(name string) (PaymentGateway, error) {
	gateway, ok := r.byName[name]
	if !ok {
		return nil, apperror.PaymentGateway(name, apperror.GatewayUnavailable, errors.New("gateway not configured"))
	}
	return gateway, nil
}

// classifyTransportError maps a failed round trip to timeout or unavailable.
func classifyTransportError(gateway string, err error) error {
	if isTimeout(err) {
		return apperror.PaymentGateway(gateway, apperror.GatewayTimeout, err)
	}
	return apperror.PaymentGateway(gateway, apperror.GatewayUnavailable, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func isTransport(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr)
}
