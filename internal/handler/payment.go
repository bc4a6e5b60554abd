package handler

import (
	"net/http"

	"ecommerce-order-service/internal/dto"
	"ecommerce-order-service/internal/middleware"
	"ecommerce-order-service/internal/service"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) CreateIntent(c echo.Context) error {
	ctx := c.Request().Context()

	requester, err := middleware.Requester(c)
	if err != nil {
		return err
	}

	var req dto.CreatePaymentIntentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	payment, err := h.paymentService.CreateIntent(ctx, req.OrderID, requester)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, dto.NewPaymentResponse(payment))
}

func (h *PaymentHandler) ProcessPayment(c echo.Context) error {
	ctx := c.Request().Context()

	requester, err := middleware.Requester(c)
	if err != nil {
		return err
	}

	var req dto.ProcessPaymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	payment, err := h.paymentService.Confirm(ctx, req.PaymentID, req.ConfirmationRef, requester)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewPaymentResponse(payment))
}

func (h *PaymentHandler) RefundPayment(c echo.Context) error {
	ctx := c.Request().Context()

	requester, err := middleware.Requester(c)
	if err != nil {
		return err
	}

	var req dto.RefundPaymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	payment, err := h.paymentService.Refund(ctx, c.Param("id"), service.RefundInput{
		Amount: req.Amount,
		Reason: req.Reason,
	}, requester)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewPaymentResponse(payment))
}

func (h *PaymentHandler) GetMyPayments(c echo.Context) error {
	ctx := c.Request().Context()

	customerID, err := middleware.CustomerID(c)
	if err != nil {
		return err
	}
	page, err := pageFromQuery(c)
	if err != nil {
		return err
	}

	payments, err := h.paymentService.ListByCustomer(ctx, customerID, page)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewPaymentResponses(payments))
}

func (h *PaymentHandler) GetPayment(c echo.Context) error {
	ctx := c.Request().Context()

	requester, err := middleware.Requester(c)
	if err != nil {
		return err
	}

	payment, err := h.paymentService.Get(ctx, c.Param("id"), requester)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewPaymentResponse(payment))
}
