// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserIDKey is the context key for user ID.
	UserIDKey ContextKey = "user_id"
)

// Claims represents JWT claims. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

var errMissingToken = errors.New("missing token")

// Auth creates JWT authentication middleware that rejects anonymous callers.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			tokenString, ok := bearer(authHeader)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := ParseToken(jwtSecret, tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth authenticates the caller when a token is presented, either
// as a bearer header or as the `token` query parameter. Anonymous requests
// pass through; a presented but invalid token is rejected.
func OptionalAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := tokenFrom(r)
			if errors.Is(err, errMissingToken) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := ParseToken(jwtSecret, tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func tokenFrom(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		tok, ok := bearer(h)
		if !ok {
			return "", errors.New("malformed authorization header")
		}
		return tok, nil
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, nil
	}
	return "", errMissingToken
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ParseToken validates an HMAC-signed token and returns its claims. Tokens
// without a subject are rejected.
func ParseToken(jwtSecret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenRequiredClaimMissing
	}
	return claims, nil
}

// IssueToken signs an HS256 token for userID that expires after ttl.
func IssueToken(jwtSecret, userID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	if meta, ok := ctx.Value(requestMetaKey).(*requestMeta); ok {
		meta.userID = claims.Subject
	}
	return context.WithValue(ctx, UserIDKey, claims.Subject)
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

