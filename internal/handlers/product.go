package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/service"
	"github.com/Skotchmaster/vending_machine/internal/util"
	"github.com/Skotchmaster/vending_machine/pkg/logging"
	authmw "github.com/Skotchmaster/vending_machine/pkg/middleware/auth"
)

type ProductHandler struct {
	Catalog *service.CatalogService
}

func actor(c echo.Context) service.Actor {
	return service.Actor{ID: authmw.UserID(c), Role: domain.Role(authmw.Role(c))}
}

func productID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "Not found.")
	}
	return uint(id), nil
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := productID(c)
	if err != nil {
		return err
	}

	product, err := h.Catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		if isProductNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "Not found.")
		}
		return err
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Catalog.GetProducts(c.Request().Context(), offset, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, productList{Data: items, Meta: util.NewMeta(page, offset, limit, total)})
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "product.create")

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == nil || req.Cost == nil || req.AmountAvailable == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "name, cost and amount_available are required")
	}

	product, err := h.Catalog.CreateProduct(c.Request().Context(), actor(c), service.ProductInput{
		Name:            *req.Name,
		Cost:            *req.Cost,
		AmountAvailable: *req.AmountAvailable,
	})
	if err != nil {
		return err
	}

	l.Info("product_created", "status", 201, "product_id", product.ID)
	return c.JSON(http.StatusCreated, product)
}

// UpdateProduct serves PUT, which replaces every field.
func (h *ProductHandler) UpdateProduct(c echo.Context) error {
	return h.update(c, true)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	return h.update(c, false)
}

func (h *ProductHandler) update(c echo.Context, full bool) error {
	id, err := productID(c)
	if err != nil {
		return err
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if full && (req.Name == nil || req.Cost == nil || req.AmountAvailable == nil) {
		return echo.NewHTTPError(http.StatusBadRequest, "name, cost and amount_available are required")
	}

	product, err := h.Catalog.UpdateProduct(c.Request().Context(), actor(c), id, service.ProductPatch{
		Name:            req.Name,
		Cost:            req.Cost,
		AmountAvailable: req.AmountAvailable,
	})
	if err != nil {
		if isProductNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "Not found.")
		}
		return err
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "product.delete")

	id, err := productID(c)
	if err != nil {
		return err
	}
	if err := h.Catalog.DeleteProduct(c.Request().Context(), actor(c), id); err != nil {
		if isProductNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "Not found.")
		}
		return err
	}

	l.Info("product_deleted", "status", 204, "product_id", id)
	return c.NoContent(http.StatusNoContent)
}
