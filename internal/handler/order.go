package handler

import (
	"net/http"

	"ecommerce-order-service/internal/dto"
	"ecommerce-order-service/internal/middleware"
	"ecommerce-order-service/internal/model"
	"ecommerce-order-service/internal/repository"
	"ecommerce-order-service/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	customerID, err := middleware.CustomerID(c)
	if err != nil {
		return err
	}

	var req dto.CreateOrderRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	in := service.CreateOrderInput{
		Items:           make([]service.CreateOrderItem, 0, len(req.Items)),
		PaymentMethod:   model.PaymentMethod(req.PaymentMethod),
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		CustomerNotes:   req.CustomerNotes,
		CouponCode:      req.CouponCode,
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, service.CreateOrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	order, err := h.orderService.Create(ctx, customerID, in)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, dto.NewOrderResponse(order))
}

func (h *OrderHandler) GetMyOrders(c echo.Context) error {
	ctx := c.Request().Context()

	customerID, err := middleware.CustomerID(c)
	if err != nil {
		return err
	}
	page, err := pageFromQuery(c)
	if err != nil {
		return err
	}

	orders, err := h.orderService.ListByCustomer(ctx, customerID, page)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderResponses(orders))
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()

	page, err := pageFromQuery(c)
	if err != nil {
		return err
	}

	orders, err := h.orderService.ListAll(ctx, repository.OrderFilter{
		Status:     model.OrderStatus(c.QueryParam("status")),
		CustomerID: c.QueryParam("customerId"),
		Page:       page,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderResponses(orders))
}

func (h *OrderHandler) GetStats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.orderService.Stats(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderStatsResponse(stats))
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()

	requester, err := middleware.Requester(c)
	if err != nil {
		return err
	}

	order, err := h.orderService.Get(ctx, c.Param("id"), requester)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderResponse(order))
}

func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.UpdateOrderStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	in := service.UpdateStatusInput{AdminNotes: req.AdminNotes}
	if req.Status != nil {
		status := model.OrderStatus(*req.Status)
		in.Status = &status
	}
	if req.PaymentStatus != nil {
		paymentStatus := model.OrderPaymentStatus(*req.PaymentStatus)
		in.PaymentStatus = &paymentStatus
	}

	order, err := h.orderService.UpdateStatus(ctx, c.Param("id"), in)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderResponse(order))
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()

	requester, err := middleware.Requester(c)
	if err != nil {
		return err
	}

	order, err := h.orderService.Cancel(ctx, c.Param("id"), requester)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderResponse(order))
}
