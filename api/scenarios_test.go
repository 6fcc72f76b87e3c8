/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Each scenario loads through the real service and leaves the state its
	description promises. Doubles as an end-to-end check of submit,
	approve and period administration.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/crew-roster/alerts"
	"github.com/warp/crew-roster/conflict"
	"github.com/warp/crew-roster/generic"
	"github.com/warp/crew-roster/notify"
	"github.com/warp/crew-roster/priority"
	"github.com/warp/crew-roster/requests"
	"github.com/warp/crew-roster/roster"
	"github.com/warp/crew-roster/store/sqlite"
)

// setupScenarioHandler uses SQLite and the production minimum of ten.
func setupScenarioHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cal := roster.MustNew(roster.Anchor{Code: "RP12/2025", Start: generic.MustParseDate("2025-10-11")})
	n := 0
	svc := requests.NewService(cal, store, priority.Default(), conflict.NewDetector(nil, nil),
		requests.WithClock(func() time.Time { return time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC) }),
		requests.WithIDs(func() string { n++; return fmt.Sprintf("R-%03d", n) }),
	)
	engine := alerts.NewEngine(cal, store, notify.NewLog(zap.NewNop()))
	return NewHandler(svc, store, engine, WithToday(func() generic.TimePoint { return generic.MustParseDate("2025-11-01") }))
}

func TestScenario_RP01(t *testing.T) {
	// GIVEN the RP01/2026 scenario
	h := setupScenarioHandler(t)
	ctx := context.Background()

	// WHEN loading it
	resp, err := h.loadScenario(ctx, "rp01-2026")
	require.NoError(t, err)

	// THEN 24 pilots and 8 requests exist, one of them approved
	assert.Equal(t, 24, resp.Pilots)
	assert.Equal(t, 8, resp.Requests)

	approved, err := h.Store.ListRequests(ctx, generic.RequestFilter{Statuses: []generic.Status{generic.StatusApproved}})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, generic.PilotID("C-103"), approved[0].PilotID)

	// AND the captain queue follows seniority despite C-103's approved days
	queue, err := h.Service.Queue(ctx, requests.QueueFilter{Rank: generic.RankCaptain, PeriodCode: "RP01/2026"})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	var order []generic.PilotID
	for _, item := range queue[0].Items {
		order = append(order, item.Request.PilotID)
	}
	assert.Equal(t, []generic.PilotID{"C-101", "C-103", "C-105", "C-105", "C-110"}, order)
	assert.Equal(t, 10, queue[0].Items[1].ApprovedDays)

	// AND C-110's flight over Christmas shows the captain shortfall
	var flight requests.QueueItem
	for _, item := range queue[0].Items {
		if item.Request.PilotID == "C-110" {
			flight = item
		}
	}
	require.NotEmpty(t, flight.Conflicts)
	assert.Equal(t, generic.ConflictAvailability, flight.Conflicts[0].Type)
	assert.True(t, flight.CanApprove)
}

func TestScenario_HolidayCrunch(t *testing.T) {
	h := setupScenarioHandler(t)
	ctx := context.Background()

	_, err := h.loadScenario(ctx, "holiday-crunch")
	require.NoError(t, err)

	queue, err := h.Service.Queue(ctx, requests.QueueFilter{Rank: generic.RankCaptain})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Len(t, queue[0].Items, 8)

	// 12 captains, 8 away, minimum 10: 60% short.
	for _, item := range queue[0].Items {
		assert.False(t, item.CanApprove, string(item.Request.PilotID))
		assert.True(t, generic.HasCritical(item.Conflicts))
	}

	// Denying four brings the shortfall to 20% and unblocks the rest.
	for _, item := range queue[0].Items[4:] {
		_, err := h.Service.Deny(ctx, item.Request.ID, "rostering", "holiday cap")
		require.NoError(t, err)
	}
	_, err = h.Service.Approve(ctx, queue[0].Items[0].Request.ID, "rostering")
	require.NoError(t, err)
}

func TestScenario_DeadlineAlerts(t *testing.T) {
	h := setupScenarioHandler(t)
	ctx := context.Background()

	_, err := h.loadScenario(ctx, "deadline-alerts")
	require.NoError(t, err)

	// On 2025-11-01 the RP12 and RP13/2025 deadlines are past, so requests
	// land in RP01/2026 and RP13/2025 is locked.
	locked, err := h.Service.PeriodByCode(ctx, "RP13/2025")
	require.NoError(t, err)
	assert.Equal(t, generic.PeriodLocked, locked.Status)

	pending, err := h.Store.ListRequests(ctx, generic.RequestFilter{PeriodCode: "RP01/2026"})
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	report, err := h.Alerts.Scan(ctx, generic.MustParseDate("2025-11-01"))
	require.NoError(t, err)
	require.Len(t, report.Fired, 1)
	assert.Equal(t, 3, report.Fired[0].Counts.Pending)
}

func TestScenario_ReloadResets(t *testing.T) {
	h := setupScenarioHandler(t)
	ctx := context.Background()

	_, err := h.loadScenario(ctx, "holiday-crunch")
	require.NoError(t, err)
	resp, err := h.loadScenario(ctx, "holiday-crunch")
	require.NoError(t, err)
	assert.Equal(t, 8, resp.Requests)
	assert.Equal(t, "holiday-crunch", h.currentScenario)
}

func TestScenarioEndpoints(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec := api.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	rec = api.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "holiday-crunch"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 24, decode[ScenarioLoadedResponse](t, rec).Pilots)

	rec = api.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "holiday-crunch", decode[ScenarioDTO](t, rec).ID)
}
