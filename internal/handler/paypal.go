package handler

import (
	"fmt"
	"io"
	"net/http"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/service"

	"github.com/labstack/echo/v4"
)

type PaypalHandler struct {
	paymentService service.PaymentService
}

func NewPaypalHandler(paymentService service.PaymentService) *PaypalHandler {
	return &PaypalHandler{
		paymentService: paymentService,
	}
}

// HandleReturn is the PayPal return URL. PayPal appends the approved order
// id as ?token=.
func (h *PaypalHandler) HandleReturn(c echo.Context) error {
	ctx := c.Request().Context()

	payment, err := h.paymentService.ConfirmPaypalReturn(ctx, c.QueryParam("token"))
	if err != nil {
		return err
	}

	html := fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<meta charset="utf-8">
		<title>Payment Processing</title>
		<style>
			body {
				font-family: Arial, sans-serif;
				text-align: center;
				margin-top: 80px;
			}
		</style>
	</head>
	<body>
		<h2>Payment approved</h2>
		<p>Payment %s is %s.</p>
	</body>
	</html>
	`, payment.ID, payment.Status)

	return c.HTML(http.StatusOK, html)
}

func (h *PaypalHandler) PayPalWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperror.Validation("read webhook body")
	}

	err = h.paymentService.HandlePaypalWebhook(ctx, c.Request().Header, body)
	if err != nil {
		return fmt.Errorf("handle webhook: %w", err)
	}

	return c.NoContent(http.StatusOK)
}
