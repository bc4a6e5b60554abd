package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/config"
	"ecommerce-order-service/internal/model"

	"github.com/go-resty/resty/v2"
)

const PaypalGatewayName = "paypal"

type PaypalGateway struct {
	http      *resty.Client
	clientID  string
	secret    string
	webhookID string
	returnURL string
	cancelURL string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func NewPaypalGateway(cfg config.Paypal, timeout time.Duration) *PaypalGateway {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseApiURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &PaypalGateway{
		http:      httpClient,
		clientID:  cfg.ClientID,
		secret:    cfg.ClientSecret,
		webhookID: cfg.WebhookID,
		returnURL: cfg.ReturnURL,
		cancelURL: cfg.CancelURL,
	}
}

func (c *PaypalGateway) Name() string { return PaypalGatewayName }

// token returns a cached OAuth token, refreshed a minute before expiry.
func (c *PaypalGateway) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.secret).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&res).
		Post("/v1/oauth2/token")
	if err != nil {
		return "", classifyTransportError(PaypalGatewayName, err)
	}
	if resp.IsError() {
		return "", c.statusError(resp, nil)
	}

	c.accessToken = res.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(res.ExpiresIn)*time.Second - time.Minute)

	return c.accessToken, nil
}

func (c *PaypalGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []model.PurchaseUnit{
			{
				ReferenceID: req.Reference,
				CustomID:    req.Reference,
				Amount: &model.Amount{
					Currency: req.Currency,
					Value:    req.Amount.StringFixed(2),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": c.returnURL,
			"cancel_url": c.cancelURL,
		},
	}

	var result model.PaypalResult
	var perr model.PaypalError
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("PayPal-Request-Id", "charge-"+req.Reference).
		SetBody(payload).
		SetResult(&result).
		SetError(&perr).
		Post("/v2/checkout/orders")
	if err != nil {
		return nil, classifyTransportError(PaypalGatewayName, err)
	}
	if resp.IsError() {
		return nil, c.statusError(resp, &perr)
	}

	return &Charge{
		Handle:      result.ID,
		ClientToken: extractApproveURL(result.Links),
	}, nil
}

// Capture captures an approved checkout order. An order the buyer has not
// approved yet is reported as pending, not as an error.
func (c *PaypalGateway) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var result model.PaypalResult
	var perr model.PaypalError
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("PayPal-Request-Id", "capture-"+req.Handle).
		SetResult(&result).
		SetError(&perr).
		Post(fmt.Sprintf("/v2/checkout/orders/%s/capture", req.Handle))
	if err != nil {
		return nil, classifyTransportError(PaypalGatewayName, err)
	}

	if resp.StatusCode() == http.StatusUnprocessableEntity {
		switch perr.Name {
		case "ORDER_NOT_APPROVED":
			return &CaptureResult{Outcome: CapturePending, Reason: "order not approved by payer"}, nil
		case "ORDER_ALREADY_CAPTURED":
			return c.lookupCapture(ctx, token, req.Handle)
		case "INSTRUMENT_DECLINED":
			return &CaptureResult{Outcome: CaptureRejected, Reason: perr.Message}, nil
		}
	}
	if resp.IsError() {
		return nil, c.statusError(resp, &perr)
	}

	return captureResultFrom(&result), nil
}

func (c *PaypalGateway) lookupCapture(ctx context.Context, token, handle string) (*CaptureResult, error) {
	var result model.PaypalResult
	var perr model.PaypalError
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&result).
		SetError(&perr).
		Get(fmt.Sprintf("/v2/checkout/orders/%s", handle))
	if err != nil {
		return nil, classifyTransportError(PaypalGatewayName, err)
	}
	if resp.IsError() {
		return nil, c.statusError(resp, &perr)
	}

	return captureResultFrom(&result), nil
}

func captureResultFrom(result *model.PaypalResult) *CaptureResult {
	var capture *model.Capture
	for i := range result.PurchaseUnits {
		captures := result.PurchaseUnits[i].Payments.Captures
		if len(captures) > 0 {
			capture = &captures[0]
			break
		}
	}

	if capture == nil {
		return &CaptureResult{Outcome: CapturePending, Reason: "order status " + result.Status}
	}

	switch capture.Status {
	case "COMPLETED":
		return &CaptureResult{Outcome: CaptureCaptured, TransactionRef: capture.ID}
	case "DECLINED", "FAILED":
		return &CaptureResult{Outcome: CaptureRejected, TransactionRef: capture.ID, Reason: "capture " + capture.Status}
	default:
		return &CaptureResult{Outcome: CapturePending, TransactionRef: capture.ID, Reason: "capture " + capture.Status}
	}
}

func (c *PaypalGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"amount": model.Amount{
			Currency: req.Currency,
			Value:    req.Amount.StringFixed(2),
		},
	}
	if req.Reason != "" {
		payload["note_to_payer"] = req.Reason
	}

	var refund model.PaypalRefund
	var perr model.PaypalError
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(payload).
		SetResult(&refund).
		SetError(&perr).
		Post(fmt.Sprintf("/v2/payments/captures/%s/refund", req.TransactionRef))
	if err != nil {
		return nil, classifyTransportError(PaypalGatewayName, err)
	}
	if resp.IsError() {
		return nil, c.statusError(resp, &perr)
	}

	if refund.Status == "FAILED" || refund.Status == "CANCELLED" {
		return nil, apperror.PaymentGateway(PaypalGatewayName, apperror.GatewayRejected,
			fmt.Errorf("refund %s %s", refund.ID, refund.Status))
	}

	return &RefundResult{RefundRef: refund.ID}, nil
}

// VerifyWebhookSignature asks PayPal to verify a webhook delivery.
func (c *PaypalGateway) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error {
	if c.webhookID == "" {
		return apperror.Unauthorized("webhook verification is not configured")
	}

	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"auth_algo":         headers.Get("PAYPAL-AUTH-ALGO"),
		"cert_url":          headers.Get("PAYPAL-CERT-URL"),
		"transmission_id":   headers.Get("PAYPAL-TRANSMISSION-ID"),
		"transmission_sig":  headers.Get("PAYPAL-TRANSMISSION-SIG"),
		"transmission_time": headers.Get("PAYPAL-TRANSMISSION-TIME"),
		"webhook_id":        c.webhookID,
		"webhook_event":     json.RawMessage(body),
	}

	var res struct {
		VerificationStatus string `json:"verification_status"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(payload).
		SetResult(&res).
		Post("/v1/notifications/verify-webhook-signature")
	if err != nil {
		return classifyTransportError(PaypalGatewayName, err)
	}
	if resp.IsError() {
		return c.statusError(resp, nil)
	}

	if res.VerificationStatus != "SUCCESS" {
		return apperror.Unauthorized("invalid webhook signature")
	}

	return nil
}

// statusError classifies a non-2xx answer: 5xx and 429 are retryable
// unavailability, other 4xx are rejections.
func (c *PaypalGateway) statusError(resp *resty.Response, perr *model.PaypalError) error {
	detail := resp.String()
	if perr != nil && perr.Name != "" {
		detail = fmt.Sprintf("%s: %s (debug_id %s)", perr.Name, perr.Message, perr.DebugID)
	}
	err := fmt.Errorf("paypal error %d: %s", resp.StatusCode(), detail)

	if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
		return apperror.PaymentGateway(PaypalGatewayName, apperror.GatewayUnavailable, err)
	}
	return apperror.PaymentGateway(PaypalGatewayName, apperror.GatewayRejected, err)
}

func extractApproveURL(links []model.PaypalLink) string {
	for _, link := range links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}
