package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/vending_machine/internal/service"
	"github.com/Skotchmaster/vending_machine/pkg/logging"
	authmw "github.com/Skotchmaster/vending_machine/pkg/middleware/auth"
)

type VendingHandler struct {
	Vending *service.VendingService
}

func (h *VendingHandler) Deposit(c echo.Context) error {
	var req depositRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	balance, err := h.Vending.Deposit(c.Request().Context(), authmw.UserID(c), req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, depositResponse{Deposit: balance})
}

func (h *VendingHandler) ResetDeposit(c echo.Context) error {
	previous, err := h.Vending.ResetDeposit(c.Request().Context(), authmw.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resetResponse{PreviousDeposit: previous, Deposit: 0})
}

func (h *VendingHandler) Buy(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "vending.buy")

	var req buyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Product == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "product is required")
	}

	receipt, err := h.Vending.Buy(c.Request().Context(), authmw.UserID(c), req.Product, req.Quantity)
	if err != nil {
		return err
	}

	l.Info("purchase_success", "status", 200, "product_id", req.Product, "quantity", receipt.Quantity, "total_spent", receipt.TotalSpent)
	return c.JSON(http.StatusOK, receipt)
}
