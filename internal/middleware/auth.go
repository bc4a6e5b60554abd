package middleware

import (
	"errors"
	"strings"
	"time"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin    = "admin"
	RoleVendor   = "vendor"
	RoleCustomer = "customer"
)

const claimsContextKey = "auth_claims"

// Claims is the bearer token payload. Subject is the user id.
type Claims struct {
	CustomerID string `json:"customer_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Requester turns the token into the caller identity the services check
// ownership against.
func (c *Claims) Requester() service.Requester {
	if c.Role == RoleAdmin {
		return service.Requester{CustomerID: c.CustomerID, Admin: true}
	}
	return service.CustomerRequester(c.CustomerID)
}

// IssueToken signs claims with HS256. Used by tooling and tests.
func IssueToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// JWTAuth rejects requests without a valid HS256 bearer token.
func JWTAuth(secret string) echo.MiddlewareFunc {
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return apperror.Unauthorized("missing bearer token")
			}

			claims := &Claims{}
			_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, keyFunc,
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					return apperror.Unauthorized("token expired")
				}
				return apperror.Unauthorized("invalid token")
			}
			if claims.Subject == "" {
				return apperror.Unauthorized("token has no subject")
			}

			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

// RequireRole lets through only tokens carrying one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFrom(c)
			if !ok {
				return apperror.Unauthorized("missing bearer token")
			}
			for _, role := range roles {
				if claims.Role == role {
					return next(c)
				}
			}
			return apperror.Forbidden("role %q may not access this resource", claims.Role)
		}
	}
}

func ClaimsFrom(c echo.Context) (*Claims, bool) {
	claims, ok := c.Get(claimsContextKey).(*Claims)
	return claims, ok
}

// CustomerID returns the customer the token acts for, or Forbidden when the
// token is not bound to one.
func CustomerID(c echo.Context) (string, error) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return "", apperror.Unauthorized("missing bearer token")
	}
	if claims.CustomerID == "" {
		return "", apperror.Forbidden("token is not bound to a customer")
	}
	return claims.CustomerID, nil
}

func Requester(c echo.Context) (service.Requester, error) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return service.Requester{}, apperror.Unauthorized("missing bearer token")
	}
	return claims.Requester(), nil
}
