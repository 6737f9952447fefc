package middleware

import (
	"github.com/OFFIS-RIT/lexlink/internal/queue"
	"github.com/OFFIS-RIT/lexlink/pkg/country"
	"github.com/OFFIS-RIT/lexlink/pkg/store"

	"github.com/labstack/echo/v4"
)

type App struct {
	Store    store.LegislationStorage
	Profiles *country.Registry
	// Queue is nil when the process runs without a broker.
	Queue     queue.Channel
	QueueName string
	APIKey    string
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
