package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/pkg/logging"
	authmw "github.com/Skotchmaster/vending_machine/pkg/middleware/auth"
)

const activeSessionDetail = "There is already an active session using your account."

type errorBody struct {
	Detail         string `json:"detail"`
	Required       *int   `json:"required,omitempty"`
	Available      *int   `json:"available,omitempty"`
	ActiveSessions bool   `json:"active_sessions,omitempty"`
}

// detail drops the leading "kind: " that domain wrapping adds.
func detail(err, kind error) string {
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}

// toResponse maps a service error to the status and body sent to the client.
func toResponse(err error) (int, errorBody) {
	var (
		stock *domain.InsufficientStockError
		funds *domain.InsufficientFundsError
		he    *echo.HTTPError
	)
	switch {
	case errors.As(err, &he):
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, errorBody{Detail: msg}
	case errors.As(err, &stock):
		return http.StatusBadRequest, errorBody{Detail: stockDetail(stock.Available), Available: &stock.Available}
	case errors.As(err, &funds):
		return http.StatusBadRequest, errorBody{Detail: "Insufficient funds.", Required: &funds.Required, Available: &funds.Available}
	case errors.Is(err, domain.ErrInvalidDenomination):
		return http.StatusBadRequest, errorBody{Detail: "Deposit amount must be one of the following: (5, 10, 20, 50, 100)."}
	case errors.Is(err, domain.ErrTooManySessions):
		return http.StatusBadRequest, errorBody{Detail: activeSessionDetail, ActiveSessions: true}
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusBadRequest, errorBody{Detail: "Product not found."}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorBody{Detail: detail(err, domain.ErrValidation)}
	case errors.Is(err, domain.ErrSessionNotActive):
		return http.StatusUnauthorized, errorBody{Detail: authmw.SessionTerminated}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Detail: "No active account found with the given credentials."}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorBody{Detail: detail(err, domain.ErrForbidden)}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Detail: "Not found."}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, errorBody{Detail: detail(err, domain.ErrConflict)}
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, errorBody{Detail: "Service temporarily unavailable, try again."}
	default:
		return http.StatusInternalServerError, errorBody{Detail: "Internal server error."}
	}
}

func stockDetail(available int) string {
	return "Only " + strconv.Itoa(available) + " items available."
}

// ErrorHandler renders every error as {"detail": ...}. It is installed as
// echo's HTTPErrorHandler.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, body := toResponse(err)
	if code >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("request_failed", "status", code, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("write_error_response", "error", err)
	}
}

// isProductNotFound distinguishes a missing product addressed by URL (404)
// from one named in a purchase body (400).
func isProductNotFound(err error) bool {
	return errors.Is(err, domain.ErrProductNotFound)
}
