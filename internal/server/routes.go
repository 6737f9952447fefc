package server

import (
	"github.com/OFFIS-RIT/lexlink/internal/server/middleware"
	"github.com/OFFIS-RIT/lexlink/internal/server/routes"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(e *echo.Echo, gatherer prometheus.Gatherer) {
	e.GET("/healthz", routes.HealthHandler)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	apiRoutes.POST("/linkage", routes.CreateLinkageHandler)
	apiRoutes.GET("/records/:id", routes.GetRecordHandler)
}
