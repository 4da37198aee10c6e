package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libroutine/availability"
	"github.com/cyp0633/libroutine/careblock"
	"github.com/cyp0633/libroutine/eventlog"
	"github.com/cyp0633/libroutine/household"
	hhmemory "github.com/cyp0633/libroutine/household/memory"
	"github.com/cyp0633/libroutine/internal/clock"
	"github.com/cyp0633/libroutine/recurrence"
	"github.com/cyp0633/libroutine/transition"
)

type testAPI struct {
	router *gin.Engine
	clock  *clock.Mock
	blocks *careblock.Registry
	sleep  *eventlog.Log
	away   *eventlog.Log
}

// Tuesday 2024-01-02 08:31, Milo has a weekday nursery block
func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewMock(time.Date(2024, 1, 2, 8, 31, 0, 0, time.UTC))
	hh := hhmemory.New()
	hh.PutChild(household.Child{ID: "milo", Name: "Milo"})

	blocks := careblock.NewRegistry(careblock.WithClock(clk))
	blocks.Add(careblock.CareBlock{
		ID:       "nursery",
		Name:     "Nursery",
		ChildIDs: []string{"milo"},
		Category: careblock.Childcare,
		Rule:     recurrence.Rule{Kind: recurrence.Weekdays},
		Start:    recurrence.MustParseClock("08:30"),
		End:      recurrence.MustParseClock("15:00"),
		Active:   true,
	})

	sleep := eventlog.NewLog(eventlog.Sleep, eventlog.WithClock(clk))
	away := eventlog.NewLog(eventlog.Away, eventlog.WithClock(clk))
	detector := transition.New(hh, blocks, sleep, away, transition.WithClock(clk))
	avail := availability.New(hh, blocks, sleep, away,
		availability.WithClock(clk), availability.WithSuppressor(detector))

	srv := New(Deps{
		Household:    hh,
		Blocks:       blocks,
		Sleep:        sleep,
		Away:         away,
		Availability: avail,
		Detector:     detector,
		Clock:        clk,
	})
	return &testAPI{router: srv.Router(), clock: clk, blocks: blocks, sleep: sleep, away: away}
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAvailability(t *testing.T) {
	api := setupTestAPI(t)

	rec := api.do(http.MethodGet, "/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "free", decode[map[string]any](t, rec)["state"])

	rec = api.do(http.MethodGet, "/availability/at?date=2024-01-06&time=10:00", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "parenting", decode[map[string]any](t, rec)["state"], "saturday has no nursery")

	rec = api.do(http.MethodGet, "/availability/at?time=25:99", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/availability/at?date=someday&time=10:00", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCareBlocks(t *testing.T) {
	api := setupTestAPI(t)

	body := `{"name":"Swimming","child_ids":["milo"],"category":"activity","recurrence":{"kind":"weekly","weekday":3},"start":"16:00","end":"17:00","buffer_before":15,"active":true}`
	rec := api.do(http.MethodPost, "/care-blocks", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[careblock.CareBlock](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, time.Wednesday, created.Rule.Weekday)
	assert.Equal(t, "16:00", created.Start.String())

	rec = api.do(http.MethodGet, "/care-blocks/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/care-blocks", "")
	assert.Len(t, decode[[]careblock.CareBlock](t, rec), 2)

	invalid := `{"name":"Backwards","child_ids":["milo"],"category":"activity","recurrence":{"kind":"daily"},"start":"17:00","end":"16:00","active":true}`
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/care-blocks", invalid).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/care-blocks", `{"start":"noon"}`).Code)

	rec = api.do(http.MethodPut, "/care-blocks/"+created.ID, strings.Replace(body, "Swimming", "Diving", 1))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Diving", api.blocks.Get(created.ID).MustGet().Name)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPut, "/care-blocks/missing", body).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/care-blocks/missing", "").Code)
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/care-blocks/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, "/care-blocks/"+created.ID, "").Code)
}

func TestActiveBlocksAndNext(t *testing.T) {
	api := setupTestAPI(t)

	rec := api.do(http.MethodGet, "/care-blocks/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode[[]map[string]any](t, rec)
	require.Len(t, active, 1)
	assert.Equal(t, "nursery", active[0]["id"])
	assert.NotContains(t, active[0], "leave_by")

	rec = api.do(http.MethodGet, "/care-blocks/nursery/next", "")
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[map[string]string](t, rec)
	assert.Equal(t, "2024-01-03T08:30:00Z", next["next"])

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/care-blocks/missing/next", "").Code)
}

func TestCalendar(t *testing.T) {
	api := setupTestAPI(t)

	rec := api.do(http.MethodGet, "/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "BEGIN:VEVENT")
	assert.Contains(t, rec.Body.String(), "SUMMARY:Nursery")
}

func TestSleepLifecycle(t *testing.T) {
	api := setupTestAPI(t)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/children/ghost/sleep/start", `{"sleep_type":"nap"}`).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/children/milo/sleep/start", "").Code)
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/children/milo/sleep/end", "").Code)

	rec := api.do(http.MethodPost, "/children/milo/sleep/start", `{"sleep_type":"nap"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	started := decode[eventlog.Event](t, rec)

	rec = api.do(http.MethodGet, "/children/milo/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[childStatus](t, rec)
	require.NotNil(t, status.Sleep)
	assert.Equal(t, started.ID, status.Sleep.ID)
	assert.Nil(t, status.Away)

	api.clock.Advance(40 * time.Minute)
	rec = api.do(http.MethodPost, "/children/milo/sleep/end", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusBadRequest,
		api.do(http.MethodPatch, "/sleep/"+started.ID, `{"ended_at":"2024-01-01T00:00:00Z"}`).Code)
	rec = api.do(http.MethodPatch, "/sleep/"+started.ID, `{"started_at":"2024-01-02T08:20:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 51*time.Minute, decode[eventlog.Event](t, rec).Duration(api.clock.Now()))

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPatch, "/sleep/missing", `{}`).Code)
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/sleep/"+started.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, "/sleep/"+started.ID, "").Code)
}

func TestAwayLifecycle(t *testing.T) {
	api := setupTestAPI(t)

	rec := api.do(http.MethodPost, "/children/milo/away/start", `{"label":"Grandma"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Grandma", decode[eventlog.Event](t, rec).Label)

	rec = api.do(http.MethodPost, "/children/milo/away/start", "")
	require.Equal(t, http.StatusCreated, rec.Code, "an empty body is fine for away")
	assert.Len(t, api.away.ForChild("milo"), 2)

	assert.Equal(t, http.StatusOK, api.do(http.MethodPost, "/children/milo/away/end", "").Code)
	assert.False(t, api.away.IsActive("milo"))
}

func TestTransitions(t *testing.T) {
	api := setupTestAPI(t)

	rec := api.do(http.MethodGet, "/transitions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = api.do(http.MethodPost, "/transitions/scan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[transition.ScanResult](t, rec)
	require.Len(t, result.Created, 1)
	id := result.Created[0].ID
	assert.True(t, api.away.IsActive("milo"))

	pending := decode[[]transition.PendingTransition](t, api.do(http.MethodGet, "/transitions", ""))
	require.Len(t, pending, 1)

	rec = api.do(http.MethodPost, "/transitions/"+id+"/dismiss", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, transition.Dismissed, decode[transition.PendingTransition](t, rec).Status)
	assert.False(t, api.away.IsActive("milo"))
	assert.Equal(t, "parenting", decode[map[string]any](t, api.do(http.MethodGet, "/availability", ""))["state"])

	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/transitions/"+id+"/confirm", "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/transitions/missing/confirm", "").Code)

	all := decode[[]transition.PendingTransition](t, api.do(http.MethodGet, "/transitions?status=all", ""))
	assert.Len(t, all, 1)
}
