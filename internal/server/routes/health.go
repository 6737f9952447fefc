package routes

import (
	"context"
	"net/http"

	"github.com/OFFIS-RIT/lexlink/internal/server/middleware"
	"github.com/OFFIS-RIT/lexlink/pkg/store"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports whether the store answers an empty transaction.
func HealthHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	err := app.Store.InTx(c.Request().Context(), func(context.Context, store.Tx) error {
		return nil
	})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
