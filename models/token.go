package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims is the payload of an access token issued by the authentication
// service. Only the signature and expiry are checked here; the user_id is
// trusted as-is.
type TokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}
