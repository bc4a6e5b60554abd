package client

import (
	"context"
	"errors"
	"time"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/metrics"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerGateway bounds every call with a timeout and trips a circuit
// breaker on timeouts and unavailability. Rejections are answers from a
// healthy gateway and do not count as failures.
type BreakerGateway struct {
	next    PaymentGateway
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewBreakerGateway(next PaymentGateway, timeout time.Duration) *BreakerGateway {
	name := next.Name()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // Max requests allowed in half-open state
		Interval:    15 * time.Second, // Window to track failures
		Timeout:     30 * time.Second, // Time to wait before half-open
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			failure, ok := apperror.GatewayFailureOf(err)
			return ok && failure == apperror.GatewayRejected
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(stateValue(to))

			log.WithFields(log.Fields{
				"gateway": cbName,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("gateway circuit breaker state changed")
		},
	})

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &BreakerGateway{
		next:    next,
		cb:      cb,
		timeout: timeout,
	}
}

func (b *BreakerGateway) Name() string { return b.next.Name() }

func (b *BreakerGateway) State() gobreaker.State { return b.cb.State() }

func (b *BreakerGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	return execute(ctx, b, func(ctx context.Context) (*Charge, error) {
		return b.next.CreateCharge(ctx, req)
	})
}

func (b *BreakerGateway) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	return execute(ctx, b, func(ctx context.Context) (*CaptureResult, error) {
		return b.next.Capture(ctx, req)
	})
}

func (b *BreakerGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return execute(ctx, b, func(ctx context.Context) (*RefundResult, error) {
		return b.next.Refund(ctx, req)
	})
}

func execute[T any](ctx context.Context, b *BreakerGateway, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	res, err := b.cb.Execute(func() (interface{}, error) {
		v, err := fn(ctx)
		if err != nil && !isGatewayError(err) {
			err = classifyTransportError(b.Name(), err)
		}
		return v, err
	})

	var zero T
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, apperror.PaymentGateway(b.Name(), apperror.GatewayUnavailable, err)
		}
		if failure, _ := apperror.GatewayFailureOf(err); failure != apperror.GatewayRejected {
			metrics.CircuitBreakerFailures.WithLabelValues(b.Name()).Inc()
		}
		return zero, err
	}

	v, _ := res.(T)
	return v, nil
}

func isGatewayError(err error) bool {
	return apperror.Is(err, apperror.KindPaymentGateway)
}

// stateValue returns numeric value for the state (0=closed, 1=open, 2=half-open)
func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
