package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(2, 0)
	defer rl.Close()

	h := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(user, addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if user != "" {
			req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: user}))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("u-1", "10.0.0.1:5000"))
	assert.Equal(t, http.StatusOK, call("u-1", "10.0.0.2:5000"))
	assert.Equal(t, http.StatusTooManyRequests, call("u-1", "10.0.0.3:5000"), "bucket follows the user")
	assert.Equal(t, http.StatusOK, call("u-2", "10.0.0.1:5000"))

	assert.Equal(t, http.StatusOK, call("", "192.168.1.9:1234"))
	assert.Equal(t, http.StatusOK, call("", "192.168.1.9:4321"))
	assert.Equal(t, http.StatusTooManyRequests, call("", "192.168.1.9:9999"))
}

func TestRateLimiter_CloseTwice(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Close()
	rl.Close()
}

func TestHealthHandler(t *testing.T) {
	healthy := CheckerFunc(func(context.Context) error { return nil })
	broken := CheckerFunc(func(context.Context) error { return errors.New("bucket missing") })

	rec := httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"database": healthy})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"database": healthy, "object_storage": broken})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "healthy", body.Checks["database"].Status)
	assert.Equal(t, "bucket missing", body.Checks["object_storage"].Message)
}

func TestReadinessAndLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadinessHandler(CheckerFunc(func(context.Context) error { return errors.New("down") }))(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestValidators(t *testing.T) {
	assert.NoError(t, ValidateID("id", "6f1c2a4e-8a3b-4c1d-9e2f-0a1b2c3d4e5f"))
	assert.Error(t, ValidateID("id", ""))
	assert.Error(t, ValidateID("id", "42"))

	assert.Equal(t, "hello world", SanitizeString("  hello\x00 world\x07 "))
	assert.Equal(t, "a\tb\nc", SanitizeString("a\tb\nc"))

	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(1000))
	assert.Equal(t, 30, ValidateLimit(30))

	assert.Equal(t, 5, QueryInt("", 5))
	assert.Equal(t, 5, QueryInt("x", 5))
	assert.Equal(t, 7, QueryInt("7", 5))

	v, err := QueryFloat("72.5")
	require.NoError(t, err)
	assert.Equal(t, 72.5, v)
	_, err = QueryFloat("high")
	assert.Error(t, err)
}
