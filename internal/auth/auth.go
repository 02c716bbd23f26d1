// Package auth resolves the calling user from a bearer token or, in development,
// from identity headers set by a trusted proxy.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"simplepaes/pkg/types"
)

type contextKey string

const userKey contextKey = "user"

// Development identity headers, used only when no JWT secret is configured
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// Claims are the identity provider's token claims. Subject carries the user ID.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 tokens issued by the identity provider
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator. An empty secret switches to header identity.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// TokenMode reports whether bearer tokens are required
func (a *Authenticator) TokenMode() bool {
	return len(a.secret) > 0
}

// GenerateToken signs a token for user, used by the seed command and tests
func (a *Authenticator) GenerateToken(user types.UserRef, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name: user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses a token and returns the user it identifies
func (a *Authenticator) ValidateToken(tokenString string) (types.UserRef, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return types.UserRef{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !types.IsValidUserID(claims.Subject) {
		return types.UserRef{}, ErrInvalidToken
	}
	return types.UserRef{ID: claims.Subject, DisplayName: claims.Name}, nil
}

// Identify resolves the caller of r. The token may also travel in the "token"
// query parameter since browsers cannot set headers on websocket upgrades.
func (a *Authenticator) Identify(r *http.Request) (types.UserRef, error) {
	if a.TokenMode() {
		token := extractBearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			return types.UserRef{}, ErrMissingIdentity
		}
		return a.ValidateToken(token)
	}

	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		return types.UserRef{}, ErrMissingIdentity
	}
	user := types.UserRef{ID: userID, DisplayName: r.Header.Get(HeaderUserName)}
	if err := user.Validate(); err != nil {
		return types.UserRef{}, err
	}
	return user, nil
}

// Middleware attaches the caller to the request context when one is present.
// Anonymous requests pass through; handlers that need a user use RequireUser.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := a.Identify(r); err == nil {
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without a verified caller
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		_, err := a.Identify(r)
		if err == nil {
			err = ErrMissingIdentity
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	})
}

// WithUser stores user in ctx
func WithUser(ctx context.Context, user types.UserRef) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// FromContext returns the caller stored by Middleware
func FromContext(ctx context.Context) (types.UserRef, bool) {
	user, ok := ctx.Value(userKey).(types.UserRef)
	return user, ok
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
