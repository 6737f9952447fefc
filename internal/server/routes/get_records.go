package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/OFFIS-RIT/lexlink/internal/server/middleware"
	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetRecordHandler returns a record with its stored metrics, the edges it
// owns and the edges of other records that target it.
func GetRecordHandler(c echo.Context) error {
	type recordResponse struct {
		Record   common.Record `json:"record"`
		Edges    []common.Edge `json:"edges"`
		Incoming []common.Edge `json:"incoming"`
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid record id"})
	}

	app := c.(*middleware.AppContext).App
	res := recordResponse{Edges: []common.Edge{}, Incoming: []common.Edge{}}
	err = app.Store.InTx(c.Request().Context(), func(ctx context.Context, tx store.Tx) error {
		record, err := tx.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		res.Record = record

		owned, err := tx.EdgesByRecord(ctx, id)
		if err != nil {
			return err
		}
		res.Edges = append(res.Edges, owned...)

		targeting, err := tx.EdgesByTarget(ctx, id)
		if err != nil {
			return err
		}
		for _, e := range targeting {
			if e.RecordID != id {
				res.Incoming = append(res.Incoming, e)
			}
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Record not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, res)
}
