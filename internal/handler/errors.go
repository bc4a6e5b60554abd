package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/dto"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const internalErrorMessage = "Internal server error"

// HTTPErrorHandler writes every error as {statusCode, timestamp, path, error}.
// Errors outside the domain taxonomy are logged and masked as a generic 500.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	req := c.Request()
	resp := dto.ErrorResponse{
		StatusCode: http.StatusInternalServerError,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       req.URL.Path,
		Error:      internalErrorMessage,
	}

	logger := log.WithFields(log.Fields{
		"method": req.Method,
		"path":   req.URL.Path,
	})

	var httpErr *echo.HTTPError
	if appErr, ok := apperror.As(err); ok {
		resp.StatusCode = appErr.HTTPStatus()
		resp.Error = appErr.Message
		resp.Details = appErr.Details
		if appErr.Kind == apperror.KindPaymentGateway {
			logger.WithError(err).Warn("payment gateway error")
		}
	} else if errors.As(err, &httpErr) {
		resp.StatusCode = httpErr.Code
		resp.Error = fmt.Sprint(httpErr.Message)
	} else {
		logger.WithError(err).Error("unhandled error")
	}

	var writeErr error
	if req.Method == http.MethodHead {
		writeErr = c.NoContent(resp.StatusCode)
	} else {
		writeErr = c.JSON(resp.StatusCode, resp)
	}
	if writeErr != nil {
		logger.WithError(writeErr).Error("write error response")
	}
}
