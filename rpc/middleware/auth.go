// Package middleware holds the chi-compatible HTTP middleware the task
// market gateway composes onto its routes: bearer authentication and
// per-principal throttling.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type contextKey string

// ContextKeyCaller holds the bech32 address string extracted from the
// token's "sub" claim; handlers use it as the effective msg.sender for
// every engine call so a caller can never act on another address's behalf.
const ContextKeyCaller contextKey = "taskmarket.caller"

// AuthConfig configures the bearer authenticator.
type AuthConfig struct {
	HMACSecret string
	ClockSkew  time.Duration
}

// Authenticator validates HS256 bearer tokens and injects the caller
// address into the request context.
type Authenticator struct {
	secret    []byte
	clockSkew time.Duration
}

// NewAuthenticator constructs an Authenticator from cfg.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &Authenticator{secret: []byte(strings.TrimSpace(cfg.HMACSecret)), clockSkew: skew}
}

// Middleware enforces a valid bearer token on every request it wraps.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		caller, err := a.callerFromToken(tokenString)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) callerFromToken(tokenString string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.clockSkew))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("claims not map")
	}
	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return "", errors.New("missing sub claim")
	}
	if exp, ok := claims["exp"].(float64); ok && int64(exp) < time.Now().Unix() {
		return "", errors.New("token expired")
	}
	return sub, nil
}

// CallerFromContext extracts the authenticated caller address string, or
// "" if the request was never authenticated.
func CallerFromContext(ctx context.Context) string {
	caller, _ := ctx.Value(ContextKeyCaller).(string)
	return caller
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
