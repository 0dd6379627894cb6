package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyFailedIsTooManyRequests(t *testing.T) {
	t.Parallel()

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/predict/species", http.NoBody), httptest.NewRecorder())

	err := identifyFailed(c, echo.ErrForbidden)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusTooManyRequests, he.Code)
	assert.Equal(t, "rate limit exceeded", he.Message)
}

func TestRateLimitDeniesBurstOverflow(t *testing.T) {
	t.Parallel()

	denied := 0
	e := echo.New()
	e.Use(NewRateLimit(RateLimitConfig{RPS: 0.001, Burst: 1, OnDeny: func() { denied++ }}))
	e.POST("/predict/species", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	codes := make([]int, 0, 2)
	for range 2 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/predict/species", http.NoBody)
		req.RemoteAddr = "192.0.2.10:4242"
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, denied)
}
