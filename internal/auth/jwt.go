package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience is the aud claim every API token must carry.
const Audience = "avatarcast-api"

type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func NewToken(secret, issuer, subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	cl := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  []string{Audience},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, cl)
	return token.SignedString([]byte(secret))
}
