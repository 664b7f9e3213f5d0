package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/honus/comwechat/internal/healthcheck"
)

type fixedChecker string

func (f fixedChecker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	return []healthcheck.CheckResult{{ID: "fixed", Type: "fixed", Status: string(f)}}
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status string
		want   int
	}{
		{healthcheck.StatusOK, http.StatusOK},
		{healthcheck.StatusWarn, http.StatusOK},
		{healthcheck.StatusError, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		e := echo.New()
		NewHealthHandler(fixedChecker(tc.status)).Register(e)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, tc.want, rec.Code, tc.status)
		assert.Contains(t, rec.Body.String(), `"status":"`+tc.status+`"`)
	}
}

func TestPingHandler(t *testing.T) {
	t.Parallel()

	e := echo.New()
	NewPingHandler(nil).Register(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
