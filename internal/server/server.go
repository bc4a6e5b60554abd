package server

import (
	"context"
	"net/http"

	"ecommerce-order-service/internal/handler"
	"ecommerce-order-service/internal/metrics"
	authmw "ecommerce-order-service/internal/middleware"
	"ecommerce-order-service/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Server struct {
	echo           *echo.Echo
	jwtSecret      string
	orderHandler   *handler.OrderHandler
	paymentHandler *handler.PaymentHandler
	paypalHandler  *handler.PaypalHandler
	healthHandler  *handler.HealthHandler
}

func NewServer(jwtSecret string, db *gorm.DB, orderService service.OrderService, paymentService service.PaymentService) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler
	e.Validator = handler.NewRequestValidator()

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(log.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"remote_ip":  v.RemoteIP,
				"request_id": v.RequestID,
			}).Info("request")
			return nil
		},
	}))
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(metrics.Middleware())

	s := &Server{
		echo:           e,
		jwtSecret:      jwtSecret,
		orderHandler:   handler.NewOrderHandler(orderService),
		paymentHandler: handler.NewPaymentHandler(paymentService),
		paypalHandler:  handler.NewPaypalHandler(paymentService),
		healthHandler:  handler.NewHealthHandler(db),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.GET("/health", s.healthHandler.Health)

	// -------- paypal callbacks, authenticated by paypal itself --------
	paypal := api.Group("/paypal")
	paypal.GET("/return", s.paypalHandler.HandleReturn)
	paypal.POST("/webhook", s.paypalHandler.PayPalWebhook)

	auth := authmw.JWTAuth(s.jwtSecret)
	adminOnly := authmw.RequireRole(authmw.RoleAdmin)

	// -------- orders --------
	orders := api.Group("/orders", auth)
	orders.POST("", s.orderHandler.CreateOrder)
	orders.GET("", s.orderHandler.ListOrders, adminOnly)
	orders.GET("/my-orders", s.orderHandler.GetMyOrders)
	orders.GET("/stats", s.orderHandler.GetStats, adminOnly)
	orders.GET("/:id", s.orderHandler.GetOrder)
	orders.PUT("/:id/status", s.orderHandler.UpdateStatus, adminOnly)
	orders.PUT("/:id/cancel", s.orderHandler.CancelOrder)

	// -------- payments --------
	payments := api.Group("/payments", auth)
	payments.POST("/create-intent", s.paymentHandler.CreateIntent)
	payments.POST("/process", s.paymentHandler.ProcessPayment)
	payments.PUT("/:id/refund", s.paymentHandler.RefundPayment)
	payments.GET("/my-payments", s.paymentHandler.GetMyPayments)
	payments.GET("/:id", s.paymentHandler.GetPayment)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
