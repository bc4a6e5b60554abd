package handler

import (
	"strconv"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/repository"

	"github.com/labstack/echo/v4"
)

func pageFromQuery(c echo.Context) (repository.Page, error) {
	var page repository.Page

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return page, apperror.Validation("limit must be a non-negative integer")
		}
		page.Limit = limit
	}
	if raw := c.QueryParam("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return page, apperror.Validation("offset must be a non-negative integer")
		}
		page.Offset = offset
	}

	return page, nil
}
