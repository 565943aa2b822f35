package middleware

import (
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// AppClaims is the token payload minted by the auth service. The core only
// consumes the already-authenticated actor identity and role.
type AppClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWT returns the echo middleware that verifies bearer tokens and exposes
// userID/userRole on the request context for handlers.
func JWT(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(AppClaims)
		},
		SuccessHandler: func(c echo.Context) {
			token := c.Get("user").(*jwt.Token)
			claims := token.Claims.(*AppClaims)
			c.Set("userID", claims.UserID)
			c.Set("userRole", claims.Role)
		},
	})
}

// ParseToken verifies a raw token string outside the echo middleware chain
// (the websocket endpoint receives its token as a query parameter).
func ParseToken(raw, secret string) (*AppClaims, error) {
	claims := new(AppClaims)
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
