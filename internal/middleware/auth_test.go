package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func validClaims(sub string) Claims {
	return Claims{
		Email: sub + "@lab.example",
		Role:  "researcher",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestParseToken(t *testing.T) {
	id, err := ParseToken(signToken(t, jwt.SigningMethodHS256, secret, validClaims("u-1")), secret)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u-1", Email: "u-1@lab.example", Role: "researcher"}, id)
}

func TestParseToken_Rejects(t *testing.T) {
	expired := validClaims("u-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims("u-1")
	noExpiry.ExpiresAt = nil

	noSubject := validClaims("")

	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims("u-1")),
		"wrong alg":    signToken(t, jwt.SigningMethodHS512, secret, validClaims("u-1")),
		"expired":      signToken(t, jwt.SigningMethodHS256, secret, expired),
		"no expiry":    signToken(t, jwt.SigningMethodHS256, secret, noExpiry),
		"no subject":   signToken(t, jwt.SigningMethodHS256, secret, noSubject),
		"garbage":      "not.a.jwt",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(raw, secret)
			assert.Error(t, err)
		})
	}
}

func TestJWTAuth(t *testing.T) {
	var seen Identity
	h := JWTAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		seen = id
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"ok", "Bearer " + signToken(t, jwt.SigningMethodHS256, secret, validClaims("u-7")), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/analyses", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Equal(t, "u-7", seen.UserID)
}

func TestEngineToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	guarded := EngineToken("s3cret")(ok)
	for header, want := range map[string]int{"s3cret": http.StatusOK, "wrong": http.StatusUnauthorized, "": http.StatusUnauthorized} {
		req := httptest.NewRequest(http.MethodPost, "/v1/engine/analyses/x/activity", nil)
		req.Header.Set("X-Engine-Token", header)
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "header %q", header)
	}

	// no configured token locks the routes
	open := EngineToken("")(ok)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityFrom_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := IdentityFrom(req.Context())
	assert.False(t, ok)

	_, ok = IdentityFrom(WithIdentity(req.Context(), Identity{}))
	assert.False(t, ok)
}
