package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/config"

	"github.com/braintree-go/braintree-go"
	"github.com/shopspring/decimal"
)

const BraintreeGatewayName = "braintree"

// BraintreeGateway charges cards. CreateCharge hands the payer a client
// token for the drop-in UI, Capture settles the nonce it produced.
type BraintreeGateway struct {
	gateway *braintree.Braintree
}

func NewBraintreeGateway(cfg config.Braintree, timeout time.Duration) *BraintreeGateway {
	env := braintree.Sandbox
	switch {
	case cfg.Environment == "production":
		env = braintree.Production
	case strings.HasPrefix(cfg.Environment, "http://"), strings.HasPrefix(cfg.Environment, "https://"):
		// a base URL, for a local stub
		env = braintree.NewEnvironment(cfg.Environment)
	}

	gateway := braintree.New(
		env,
		cfg.MerchantID,
		cfg.PublicKey,
		cfg.PrivateKey,
	)
	gateway.HttpClient = &http.Client{Timeout: timeout}

	return &BraintreeGateway{
		gateway: gateway,
	}
}

func (c *BraintreeGateway) Name() string { return BraintreeGatewayName }

func (c *BraintreeGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	token, err := c.gateway.ClientToken().Generate(ctx)
	if err != nil {
		return nil, c.classify(err)
	}

	return &Charge{
		Handle:      req.Reference,
		ClientToken: token,
	}, nil
}

// Capture runs a sale for the nonce in ConfirmationRef and submits it for
// settlement immediately.
func (c *BraintreeGateway) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	if req.ConfirmationRef == "" {
		return &CaptureResult{Outcome: CapturePending, Reason: "payment method nonce not supplied"}, nil
	}

	tx, err := c.gateway.Transaction().Create(ctx, &braintree.TransactionRequest{
		Type:               "sale",
		Amount:             toBraintreeDecimal(req.Amount),
		PaymentMethodNonce: req.ConfirmationRef,
		OrderId:            req.Handle,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: true, // Captures the funds immediately
		},
	})
	if err != nil {
		return nil, c.classify(err)
	}

	switch tx.Status {
	case braintree.TransactionStatusSubmittedForSettlement,
		braintree.TransactionStatusSettling,
		braintree.TransactionStatusSettled:
		return &CaptureResult{Outcome: CaptureCaptured, TransactionRef: tx.Id}, nil
	case braintree.TransactionStatusProcessorDeclined,
		braintree.TransactionStatusGatewayRejected,
		braintree.TransactionStatusFailed:
		return &CaptureResult{
			Outcome:        CaptureRejected,
			TransactionRef: tx.Id,
			Reason:         fmt.Sprintf("transaction %s: %s", tx.Status, tx.ProcessorResponseText),
		}, nil
	default:
		return &CaptureResult{Outcome: CapturePending, TransactionRef: tx.Id, Reason: string(tx.Status)}, nil
	}
}

// Refund refunds a settling or settled transaction. Braintree refuses to
// refund a transaction that has not started settling, so those are voided,
// which only works for the full amount.
func (c *BraintreeGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	tx, err := c.gateway.Transaction().Find(ctx, req.TransactionRef)
	if err != nil {
		return nil, c.classify(err)
	}

	switch tx.Status {
	case braintree.TransactionStatusAuthorized,
		braintree.TransactionStatusSubmittedForSettlement:
		if tx.Amount != nil && req.Amount.LessThan(fromBraintreeDecimal(tx.Amount)) {
			return nil, apperror.PaymentGateway(BraintreeGatewayName, apperror.GatewayRejected,
				fmt.Errorf("transaction %s is not settled yet, only the full amount can be returned", tx.Id))
		}
		voided, err := c.gateway.Transaction().Void(ctx, tx.Id)
		if err != nil {
			return nil, c.classify(err)
		}
		return &RefundResult{RefundRef: voided.Id}, nil
	}

	refund, err := c.gateway.Transaction().Refund(ctx, req.TransactionRef, toBraintreeDecimal(req.Amount))
	if err != nil {
		return nil, c.classify(err)
	}

	return &RefundResult{RefundRef: refund.Id}, nil
}

// classify treats anything that is not a transport failure as an API
// answer refusing the request.
func (c *BraintreeGateway) classify(err error) error {
	if isTimeout(err) {
		return apperror.PaymentGateway(BraintreeGatewayName, apperror.GatewayTimeout, err)
	}
	if isTransport(err) {
		return apperror.PaymentGateway(BraintreeGatewayName, apperror.GatewayUnavailable, err)
	}
	return apperror.PaymentGateway(BraintreeGatewayName, apperror.GatewayRejected, err)
}

func fromBraintreeDecimal(amount *braintree.Decimal) decimal.Decimal {
	return decimal.New(amount.Unscaled, -int32(amount.Scale))
}

// Braintree expects NewDecimal(unscaled, scale): "50.00" -> NewDecimal(5000, 2)
func toBraintreeDecimal(amount decimal.Decimal) *braintree.Decimal {
	return braintree.NewDecimal(amount.Round(2).Shift(2).IntPart(), 2)
}
