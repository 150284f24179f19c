// Package auth turns bearer tokens into the host identity used by session commands.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const hostKey ctxKey = 1

// ErrNoSecret is returned when signing or verifying without a configured key.
// HS256 accepts an empty key, which would let anyone mint host tokens.
var ErrNoSecret = errors.New("auth: jwt secret is not configured")

// Verifier signs and checks HS256 host tokens; the subject claim is the host ID.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign issues a token for hostID valid for ttl.
func (v *Verifier) Sign(hostID string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   hostID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Parse validates tok and returns its subject.
func (v *Verifier) Parse(tok string) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	claims := &jwt.RegisteredClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !t.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

// Middleware attaches the host ID to the request context when a valid bearer token is present.
// Requests without one pass through anonymously; players never authenticate.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := bearerToken(r); tok != "" {
			if hostID, err := v.Parse(tok); err == nil {
				r = r.WithContext(WithHostID(r.Context(), hostID))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken reads the Authorization header, falling back to the access_token query
// parameter because browsers cannot set headers on websocket upgrades.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

func WithHostID(ctx context.Context, hostID string) context.Context {
	return context.WithValue(ctx, hostKey, hostID)
}

// HostID returns the caller identity, or "" for anonymous requests.
func HostID(ctx context.Context) string {
	id, _ := ctx.Value(hostKey).(string)
	return id
}
