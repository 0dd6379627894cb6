package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/observability/metrics"
)

// ErrorKindKey is the echo context key a handler sets to the error kind of
// a failed request it rendered itself.
const ErrorKindKey = "error_kind"

// NewHTTPMetrics records request counts, latency, response size and
// in-flight requests. The route pattern is used as the path label.
func NewHTTPMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			m.RequestStarted()
			defer m.RequestFinished()

			start := time.Now()
			err := next(c)

			method := c.Request().Method
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}

			status := c.Response().Status
			errorType, _ := c.Get(ErrorKindKey).(string)
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
				errorType = "http_" + strconv.Itoa(status)
			}

			m.RecordHTTPRequest(method, path, status, time.Since(start).Seconds())
			m.RecordHTTPResponseSize(method, path, c.Response().Size)
			if errorType != "" {
				m.RecordHTTPRequestError(method, path, errorType)
			}
			return err
		}
	}
}
