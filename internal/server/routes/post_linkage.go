package routes

import (
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/lexlink/internal/pipeline"
	"github.com/OFFIS-RIT/lexlink/internal/queue"
	"github.com/OFFIS-RIT/lexlink/internal/server/middleware"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CreateLinkageHandler enqueues one linkage message per requested country.
// An empty country list selects every configured profile.
func CreateLinkageHandler(c echo.Context) error {
	type linkageBody struct {
		Operation string   `json:"operation" validate:"omitempty,oneof=run resolve reconcile"`
		Countries []string `json:"countries" validate:"dive,len=2,alpha"`
	}
	type linkageResponse struct {
		Operation pipeline.Operation `json:"operation"`
		Messages  []queue.LinkageMsg `json:"messages"`
	}

	app := c.(*middleware.AppContext).App
	if app.Queue == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Queue not configured"})
	}

	data := new(linkageBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	op, err := pipeline.ParseOperation(data.Operation)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	countries, err := app.Profiles.Parse(strings.Join(data.Countries, ","))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	res := linkageResponse{Operation: op, Messages: []queue.LinkageMsg{}}
	for _, ctry := range countries {
		msg, err := queue.NewLinkageMsg(op, ctry)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if err := queue.Enqueue(app.Queue, app.QueueName, msg); err != nil {
			logger.Error("[Server] Failed to enqueue linkage", "country", ctry, "err", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to enqueue"})
		}
		res.Messages = append(res.Messages, msg)
	}

	return c.JSON(http.StatusAccepted, res)
}
