// Package auth carries the gateway-asserted caller identity through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultCallerHeader = "X-User-Id"
	ClaimsHeader        = "X-Caller-Claims"
)

// Caller is the trusted identity of the user making a request.
type Caller struct {
	UserID string
	// Verified is true when a signed claims token backed the asserted id.
	Verified bool
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the request's caller, if one was attached.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && c.UserID != ""
}

// CallerClaims is the payload of an X-Caller-Claims token.
type CallerClaims struct {
	jwt.RegisteredClaims
}

var (
	ErrInvalidClaims   = errors.New("invalid caller claims")
	ErrSubjectMismatch = errors.New("caller claims subject does not match asserted user id")
)

// SignCallerClaims issues a short-lived HS256 token asserting userID.
func SignCallerClaims(secret []byte, userID string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", jwt.ErrInvalidKey
	}
	now := time.Now()
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyCallerClaims checks the token signature and that its subject is userID.
func VerifyCallerClaims(secret []byte, tokenString, userID string) error {
	claims := &CallerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	if !token.Valid {
		return ErrInvalidClaims
	}
	if claims.Subject != userID {
		return ErrSubjectMismatch
	}
	return nil
}
