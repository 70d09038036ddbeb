package loggingmw

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/Skotchmaster/vending_machine/pkg/logging"
)

// RequestLogger puts a request-scoped logger into the request context and
// writes one summary line per request. Errors are rendered here through the
// echo error handler so the logged status is the one the client saw.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			l := base.With(
				"method", req.Method,
				"route", c.Path(),
				"url", req.URL.Path,
				"remote_ip", c.RealIP(),
				"user_agent", req.UserAgent(),
			)
			if rid := requestID(c); rid != "" {
				l = l.With("request_id", rid)
				c.Response().Header().Set(echo.HeaderXRequestID, rid)
			}
			if sc := trace.SpanContextFromContext(req.Context()); sc.HasTraceID() {
				l = l.With("trace_id", sc.TraceID().String())
			}

			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), l)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			ms := time.Since(start).Milliseconds()

			switch {
			case status >= 500:
				l.Error("request completed", "status", status, "duration_ms", ms, "error", errString(err))
			case status >= 400:
				l.Warn("request completed", "status", status, "duration_ms", ms)
			default:
				l.Info("request completed", "status", status, "duration_ms", ms, "bytes", c.Response().Size)
			}
			return nil
		}
	}
}

// requestID prefers the id echo's RequestID middleware put on the response.
func requestID(c echo.Context) string {
	if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
		return rid
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
