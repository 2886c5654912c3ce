package services

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IsTokenExpired inspects a JWT's exp claim without verifying the signature.
// Opaque tokens and JWTs without exp report false; only a well-formed JWT
// whose expiry has passed reports true. The server remains the authority,
// this just saves a doomed round trip.
func IsTokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
