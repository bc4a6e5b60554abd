package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/dto"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handle(t *testing.T, err error) (*httptest.ResponseRecorder, dto.ErrorResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	rec := httptest.NewRecorder()

	HTTPErrorHandler(err, e.NewContext(req, rec))

	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHTTPErrorHandlerMapsKinds(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperror.NotFound("order %s not found", "o-1"), http.StatusNotFound},
		{apperror.InsufficientStock("p-1", 2, 5), http.StatusBadRequest},
		{apperror.InvalidTransition("order", "paid", "cancelled"), http.StatusBadRequest},
		{apperror.Validation("bad"), http.StatusBadRequest},
		{apperror.Forbidden("nope"), http.StatusForbidden},
		{apperror.Conflict("dup"), http.StatusConflict},
		{apperror.Unauthorized("who"), http.StatusUnauthorized},
		{apperror.PaymentGateway("paypal", apperror.GatewayTimeout, errors.New("deadline")), http.StatusBadGateway},
		{fmt.Errorf("handle webhook: %w", apperror.NotFound("payment missing")), http.StatusNotFound},
	}
	for _, tc := range cases {
		rec, body := handle(t, tc.err)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.Equal(t, tc.code, body.StatusCode)
		assert.Equal(t, "/api/orders", body.Path)
		assert.NotEmpty(t, body.Timestamp)
	}
}

func TestHTTPErrorHandlerCarriesDetails(t *testing.T) {
	_, body := handle(t, apperror.InsufficientStock("p-1", 2, 5))
	assert.EqualValues(t, 2, body.Details["available"])
	assert.EqualValues(t, 5, body.Details["requested"])
	assert.Equal(t, "p-1", body.Details["productId"])
}

func TestHTTPErrorHandlerMasksUnknownErrors(t *testing.T) {
	rec, body := handle(t, errors.New("dial tcp 10.0.0.3:3306: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, internalErrorMessage, body.Error)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}

func TestHTTPErrorHandlerKeepsEchoErrors(t *testing.T) {
	rec, body := handle(t, echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method not allowed", body.Error)
}

func TestHTTPErrorHandlerSkipsCommittedResponses(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, c.String(http.StatusOK, "done"))

	HTTPErrorHandler(errors.New("late failure"), c)
	assert.Equal(t, "done", rec.Body.String())
}

func TestRequestValidatorReportsJSONFieldNames(t *testing.T) {
	v := NewRequestValidator()

	err := v.Validate(&dto.CreateOrderRequest{
		Items:         []dto.OrderItem{{ProductID: "p-1", Quantity: 0}},
		PaymentMethod: "barter",
	})
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindValidation, appErr.Kind)

	fields := appErr.Details["fields"].(map[string]any)
	assert.Equal(t, "required", fields["items[0].quantity"])
	assert.Equal(t, "oneof", fields["paymentMethod"])
	assert.Equal(t, "required", fields["shippingAddress"])

	assert.NoError(t, v.Validate(&dto.CreateOrderRequest{
		Items:           []dto.OrderItem{{ProductID: "p-1", Quantity: 1}},
		PaymentMethod:   "card",
		ShippingAddress: "1 Main St",
	}))
}
