package auth

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ApproverKeyAuth requires "Authorization: Bearer <approver token>".
func ApproverKeyAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return RoleFor(token, key).IsApprover(), nil
		},
		ErrorHandler: func(error, echo.Context) error {
			return echo.ErrUnauthorized
		},
	})
}
