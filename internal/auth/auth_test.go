package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestSignAndParse(t *testing.T) {
	v := NewVerifier("secret")
	tok, err := v.Sign("host-1", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sub, err := v.Parse(tok)
	if err != nil || sub != "host-1" {
		t.Fatalf("parse: %q %v", sub, err)
	}

	if _, err := NewVerifier("other").Parse(tok); err == nil {
		t.Fatalf("expected signature mismatch")
	}
	expired, _ := v.Sign("host-1", -time.Minute)
	if _, err := v.Parse(expired); err == nil {
		t.Fatalf("expected expired token to fail")
	}
	if _, err := v.Parse("not-a-token"); err == nil {
		t.Fatalf("expected garbage to fail")
	}
}

func TestEmptySecretIsRefused(t *testing.T) {
	empty := NewVerifier("")
	if _, err := empty.Sign("someone-elses-host", time.Hour); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("sign: expected ErrNoSecret, got %v", err)
	}

	// A token forged with an empty key must not authenticate anyone.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "someone-elses-host",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte{})
	if err != nil {
		t.Fatalf("forge: %v", err)
	}
	if sub, err := empty.Parse(forged); !errors.Is(err, ErrNoSecret) || sub != "" {
		t.Fatalf("parse: expected ErrNoSecret, got %q %v", sub, err)
	}

	var seen string
	h := empty.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = HostID(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+forged)
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen != "" {
		t.Fatalf("forged token authenticated %q", seen)
	}
}

func TestMiddlewareAttachesHostID(t *testing.T) {
	v := NewVerifier("secret")
	tok, _ := v.Sign("host-1", time.Hour)

	var seen string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = HostID(r.Context())
	}))

	cases := []struct {
		name string
		req  func() *http.Request
		want string
	}{
		{"header", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer "+tok)
			return r
		}, "host-1"},
		{"query", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/?access_token="+tok, nil)
		}, "host-1"},
		{"anonymous", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/", nil)
		}, ""},
		{"invalid token", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer broken")
			return r
		}, ""},
	}
	for _, tc := range cases {
		seen = "unset"
		h.ServeHTTP(httptest.NewRecorder(), tc.req())
		if seen != tc.want {
			t.Fatalf("%s: host id %q, want %q", tc.name, seen, tc.want)
		}
	}
}
