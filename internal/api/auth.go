package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// Session management is owned by an external collaborator; this file only
// verifies the tokens it mints and resolves the calling worker id.

const (
	tokenCookieKey = "token"
	workerIdClaim  = "worker-id"
)

type contextKey string

const workerIdKey contextKey = "worker-id"

func WithWorkerId(ctx context.Context, workerId uuid.UUID) context.Context {
	return context.WithValue(ctx, workerIdKey, workerId)
}

func WorkerId(ctx context.Context) (uuid.UUID, bool) {
	workerId, ok := ctx.Value(workerIdKey).(uuid.UUID)

	return workerId, ok
}

// tokenFromRequest accepts a bearer header (CLI collaborators) or the
// session cookie (browser collaborators).
func tokenFromRequest(r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return "", fmt.Errorf("malformed authorization header")
		}
		return token, nil
	}

	tokenCookie, err := r.Cookie(tokenCookieKey)
	if err != nil {
		return "", fmt.Errorf("get cookie: %w", err)
	}

	return tokenCookie.Value, nil
}

func (s *ChatApp) extractWorkerIdFromToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid token claims")
	}

	rawId, ok := claims[workerIdClaim].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid worker id claim")
	}

	workerId, err := uuid.Parse(rawId)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse worker id claim: %w", err)
	}

	return workerId, nil
}
