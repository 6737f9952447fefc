package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/lexlink/internal/metrics"
	mid "github.com/OFFIS-RIT/lexlink/internal/server/middleware"
	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/country"
	"github.com/OFFIS-RIT/lexlink/pkg/graph"
	"github.com/OFFIS-RIT/lexlink/pkg/store"
	"github.com/OFFIS-RIT/lexlink/pkg/store/memory"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	keys   []string
	bodies [][]byte
}

func (f *fakeChannel) Publish(_, key string, _, _ bool, msg amqp091.Publishing) error {
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, msg.Body)
	return nil
}

func newTestServer(t *testing.T, ch *fakeChannel) (*echo.Echo, *memory.Store) {
	t.Helper()
	s := memory.New()
	app := &mid.App{
		Store:     s,
		Profiles:  country.Defaults(),
		QueueName: "linkage_queue",
		APIKey:    "secret",
	}
	if ch != nil {
		app.Queue = ch
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RunFinished(graph.RunReport{Country: common.Chile})
	return New(app, reg), s
}

func do(e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

var authorized = map[string]string{"X-API-Key": "secret"}

func TestHealthAndMetrics(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lexlink_runs_total")
}

func TestAuth(t *testing.T) {
	e, _ := newTestServer(t, &fakeChannel{})

	rec := do(e, http.MethodGet, "/api/records/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodGet, "/api/records/1", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodGet, "/api/records/1", "", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateLinkage(t *testing.T) {
	ch := &fakeChannel{}
	e, _ := newTestServer(t, ch)

	rec := do(e, http.MethodPost, "/api/linkage", `{"operation":"reconcile","countries":["cl","JO"]}`, authorized)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"linkage_queue", "linkage_queue"}, ch.keys)

	var first struct {
		Operation string `json:"operation"`
		Country   string `json:"country"`
	}
	require.NoError(t, json.Unmarshal(ch.bodies[0], &first))
	assert.Equal(t, "reconcile", first.Operation)
	assert.Equal(t, "CL", first.Country)

	rec = do(e, http.MethodPost, "/api/linkage", `{}`, authorized)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, ch.keys, 2+len(country.Defaults().Countries()))

	rec = do(e, http.MethodPost, "/api/linkage", `{"countries":["ZZ"]}`, authorized)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/linkage", `{"operation":"drop"}`, authorized)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLinkage_NoQueue(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodPost, "/api/linkage", `{}`, authorized)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetRecord(t *testing.T) {
	e, s := newTestServer(t, nil)

	canonical := "19.880"
	other := "20.000"
	a := common.Record{Country: common.Chile, IdentifierText: "Ley 19.880", CanonicalID: &canonical, Status: common.StatusPassed}
	b := common.Record{Country: common.Chile, IdentifierText: "Ley 20.000", CanonicalID: &other, Status: common.StatusPassed}
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.SaveRecord(ctx, &a); err != nil {
			return err
		}
		if err := tx.SaveRecord(ctx, &b); err != nil {
			return err
		}
		_, err := tx.SaveEdges(ctx, []common.Edge{{
			RecordID:    b.ID,
			Country:     common.Chile,
			SourceLawID: other,
			Role:        common.Modifies,
			TargetLawID: canonical,
			TargetID:    &a.ID,
			DateState:   common.DateAbsent,
		}})
		return err
	}))

	rec := do(e, http.MethodGet, "/api/records/"+strconv.FormatInt(a.ID, 10), "", authorized)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Record   common.Record `json:"record"`
		Edges    []common.Edge `json:"edges"`
		Incoming []common.Edge `json:"incoming"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, a.ID, body.Record.ID)
	assert.Empty(t, body.Edges)
	require.Len(t, body.Incoming, 1)
	assert.Equal(t, b.ID, body.Incoming[0].RecordID)

	rec = do(e, http.MethodGet, "/api/records/abc", "", authorized)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
