package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownApp   = errors.New("unknown application")
)

// Claims scope a session to one user inside one tenant application.
type Claims struct {
	Username        string `json:"username"`
	ApplicationUUID string `json:"application_uuid"`
	jwt.RegisteredClaims
}

// AppResolver looks up the signing secret of a tenant application. Tokens
// are signed with the application's own master token, so a token from one
// tenant can never validate against another.
type AppResolver interface {
	MasterToken(ctx context.Context, appUUID string) (string, error)
}

// Issue signs a session token for a user of the given application.
func Issue(masterToken, username, appUUID string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Username:        username,
		ApplicationUUID: appUUID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(masterToken))
}

// Verify validates a session token. The application UUID is read from the
// unverified claims first, then the signature is checked against that
// application's master token.
func Verify(ctx context.Context, resolver AppResolver, tokenString string) (*Claims, error) {
	unverified := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	if _, _, err := parser.ParseUnverified(tokenString, unverified); err != nil {
		return nil, ErrInvalidToken
	}
	if unverified.ApplicationUUID == "" {
		return nil, ErrInvalidToken
	}

	secret, err := resolver.MasterToken(ctx, unverified.ApplicationUUID)
	if err != nil {
		return nil, ErrUnknownApp
	}

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
