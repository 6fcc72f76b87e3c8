/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Period lookup and status administration
- Check / submit / approve / deny through the router
- Error mapping (400, 404, 409)
- Crew roster endpoints
- Alert scan and delivery log
- Rate limiting and access logging through the router
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/crew-roster/alerts"
	"github.com/warp/crew-roster/conflict"
	"github.com/warp/crew-roster/generic"
	"github.com/warp/crew-roster/notify"
	"github.com/warp/crew-roster/priority"
	"github.com/warp/crew-roster/requests"
	"github.com/warp/crew-roster/roster"
	"github.com/warp/crew-roster/store/memory"
)

// =============================================================================
// FIXTURES
// =============================================================================

var testToday = generic.MustParseDate("2025-11-01")

type testAPI struct {
	handler *Handler
	router  http.Handler
	store   *memory.Store
}

// newTestAPI wires the full stack over a memory store with three captains
// and two first officers; minimum crew is two per rank.
func newTestAPI(t *testing.T, cfg RouterConfig) testAPI {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for i := 1; i <= 3; i++ {
		require.NoError(t, store.SavePilot(ctx, generic.Pilot{
			ID: generic.PilotID(fmt.Sprintf("C%d", i)), Name: fmt.Sprintf("Captain %d", i),
			Rank: generic.RankCaptain, Seniority: i, Active: true,
		}))
	}
	for i := 1; i <= 2; i++ {
		require.NoError(t, store.SavePilot(ctx, generic.Pilot{
			ID: generic.PilotID(fmt.Sprintf("F%d", i)), Name: fmt.Sprintf("First Officer %d", i),
			Rank: generic.RankFirstOfficer, Seniority: i, Active: true,
		}))
	}

	cal := roster.MustNew(roster.Anchor{Code: "RP12/2025", Start: generic.MustParseDate("2025-10-11")})
	detector := conflict.NewDetector(map[generic.Rank]int{generic.RankCaptain: 2, generic.RankFirstOfficer: 2}, nil)
	n := 0
	svc := requests.NewService(cal, store, priority.Default(), detector,
		requests.WithClock(func() time.Time { return time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC) }),
		requests.WithIDs(func() string { n++; return fmt.Sprintf("R-%03d", n) }),
	)
	engine := alerts.NewEngine(cal, store, notify.NewLog(zap.NewNop()),
		alerts.WithRecipients([]string{"crew-planning@example.com"}))

	h := NewHandler(svc, store, engine, WithToday(func() generic.TimePoint { return testToday }))
	return testAPI{handler: h, router: NewRouter(h, cfg), store: store}
}

func (a testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
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

func leaveBody(pilot, start, end string) map[string]any {
	return map[string]any{
		"pilot_id":   pilot,
		"category":   "LEAVE",
		"start_date": start,
		"end_date":   end,
		"details":    map[string]any{"leave_type": "ANNUAL"},
	}
}

// =============================================================================
// PERIODS
// =============================================================================

func TestPeriods(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	t.Run("by code", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/periods/RP01/2026", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		p := decode[PeriodDTO](t, rec)
		assert.Equal(t, "RP01/2026", p.Code)
		assert.Equal(t, "2025-12-06", p.StartDate)
		assert.Equal(t, "2026-01-02", p.EndDate)
		assert.Equal(t, "2025-11-15", p.Deadline)
		assert.Equal(t, "OPEN", p.Status)
	})

	t.Run("current for a date", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/periods/current?date=2025-12-25", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "RP01/2026", decode[PeriodDTO](t, rec).Code)
	})

	t.Run("current defaults to today", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/periods/current", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "RP12/2025", decode[PeriodDTO](t, rec).Code)
	})

	t.Run("range", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/api/periods?from=2025-12-01&to=2026-01-10", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		periods := decode[[]PeriodDTO](t, rec)
		require.Len(t, periods, 3)
		assert.Equal(t, "RP13/2025", periods[0].Code)
		assert.Equal(t, "RP01/2026", periods[1].Code)
		assert.Equal(t, "RP02/2026", periods[2].Code)
	})

	t.Run("bad input", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/periods?from=01/12/2025", nil).Code)
		assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/periods?from=2026-01-10&to=2025-12-01", nil).Code)
		assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/periods/XX01/2026", nil).Code)
	})
}

func TestSetPeriodStatus(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	// GIVEN an OPEN period moved to LOCKED
	rec := api.do(t, http.MethodPost, "/api/periods/RP01/2026/status", map[string]string{"status": "LOCKED"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "LOCKED", decode[PeriodDTO](t, rec).Status)

	// WHEN trying to reopen it
	rec = api.do(t, http.MethodPost, "/api/periods/RP01/2026/status", map[string]string{"status": "OPEN"})

	// THEN the backwards move is refused
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode[ErrorResponse](t, rec).Code)

	// AND unknown statuses are a validation error
	rec = api.do(t, http.MethodPost, "/api/periods/RP01/2026/status", map[string]string{"status": "FROZEN"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// AND submissions into the locked period are refused
	rec = api.do(t, http.MethodPost, "/api/requests", leaveBody("C1", "2025-12-10", "2025-12-12"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PERIOD_CLOSED", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// REQUEST WORKFLOW
// =============================================================================

func TestCheckDoesNotStore(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec := api.do(t, http.MethodPost, "/api/requests/check", leaveBody("C2", "2025-12-20", "2025-12-27"))
	require.Equal(t, http.StatusOK, rec.Code)

	a := decode[AssessmentDTO](t, rec)
	assert.Equal(t, "RP01/2026", a.Period.Code)
	assert.Equal(t, "RP01/2026", a.Request.PeriodCode)
	assert.Equal(t, "CAPTAIN", a.Request.Rank)
	assert.Equal(t, 8, a.Request.Days)
	assert.Equal(t, 1, a.PriorityRank)
	assert.True(t, a.CanApprove)
	assert.True(t, a.CrewImpact.Checked)
	assert.Equal(t, 3, a.CrewImpact.CrewSize)

	list := api.do(t, http.MethodGet, "/api/requests", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Empty(t, decode[[]RequestDTO](t, list))
}

func TestSubmitApproveDeny(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	// GIVEN a submitted request
	rec := api.do(t, http.MethodPost, "/api/requests", leaveBody("C2", "2025-12-20", "2025-12-27"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[AssessmentDTO](t, rec).Request.ID
	assert.Equal(t, "R-001", id)

	// AND the identical submission is rejected
	dup := api.do(t, http.MethodPost, "/api/requests", leaveBody("C2", "2025-12-20", "2025-12-27"))
	assert.Equal(t, http.StatusConflict, dup.Code)
	assert.Equal(t, "DUPLICATE", decode[ErrorResponse](t, dup).Code)

	got := api.do(t, http.MethodGet, "/api/requests/"+id, nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "PENDING", decode[RequestDTO](t, got).Status)
	assert.JSONEq(t, `{"leave_type":"ANNUAL"}`, string(decode[RequestDTO](t, got).Details))

	// WHEN approving without naming the approver
	rec = api.do(t, http.MethodPost, "/api/requests/"+id+"/approve", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN approving properly
	rec = api.do(t, http.MethodPost, "/api/requests/"+id+"/approve", map[string]string{"decided_by": "chief-pilot"})
	require.Equal(t, http.StatusOK, rec.Code)
	approved := decode[RequestDTO](t, rec)
	assert.Equal(t, "APPROVED", approved.Status)
	assert.Equal(t, "chief-pilot", approved.DecidedBy)
	assert.NotEmpty(t, approved.DecidedAt)

	// THEN a second decision is an invalid transition
	rec = api.do(t, http.MethodPost, "/api/requests/"+id+"/deny", map[string]string{"decided_by": "chief-pilot"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode[ErrorResponse](t, rec).Code)

	// AND unknown IDs are 404
	rec = api.do(t, http.MethodPost, "/api/requests/R-999/approve", map[string]string{"decided_by": "chief-pilot"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/requests/R-999", nil).Code)
}

func TestDenyRecordsReason(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})
	rec := api.do(t, http.MethodPost, "/api/requests", leaveBody("F1", "2025-12-08", "2025-12-09"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[AssessmentDTO](t, rec).Request.ID

	rec = api.do(t, http.MethodPost, "/api/requests/"+id+"/deny", map[string]string{"decided_by": "rostering", "reason": "training week"})
	require.Equal(t, http.StatusOK, rec.Code)
	denied := decode[RequestDTO](t, rec)
	assert.Equal(t, "DENIED", denied.Status)
	assert.Equal(t, "training week", denied.DenialReason)

	list := api.do(t, http.MethodGet, "/api/requests?status=denied&pilot_id=F1", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[[]RequestDTO](t, list), 1)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/requests?status=LOST", nil).Code)
}

func TestApproveBlockedByCriticalShortage(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	// GIVEN all three captains pending over the same days (minimum two)
	var ids []string
	for _, c := range []string{"C1", "C2", "C3"} {
		rec := api.do(t, http.MethodPost, "/api/requests", leaveBody(c, "2025-12-24", "2025-12-26"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids = append(ids, decode[AssessmentDTO](t, rec).Request.ID)
	}

	// WHEN approving any of them
	rec := api.do(t, http.MethodPost, "/api/requests/"+ids[0]+"/approve", map[string]string{"decided_by": "chief-pilot"})

	// THEN approval is blocked with the conflicts in the details
	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Code    string        `json:"code"`
		Details []ConflictDTO `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "CONFLICT_BLOCKED", body.Code)
	require.NotEmpty(t, body.Details)
	assert.Equal(t, "AVAILABILITY_THRESHOLD", body.Details[0].Type)
	assert.Equal(t, "CRITICAL", body.Details[0].Severity)

	// AND the queue shows the captains ranked by seniority, none approvable
	rec = api.do(t, http.MethodGet, "/api/requests/queue?rank=CPT&period=RP01/2026", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queue := decode[[]QueueCohortDTO](t, rec)
	require.Len(t, queue, 1)
	require.Len(t, queue[0].Items, 3)
	for i, item := range queue[0].Items {
		assert.Equal(t, i+1, item.Position)
		assert.Equal(t, fmt.Sprintf("C%d", i+1), item.Request.PilotID)
		assert.False(t, item.CanApprove)
	}
}

func TestSubmitValidation(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"malformed json", `{"pilot_id":`, ""},
		{"missing pilot", leaveBody("", "2025-12-20", "2025-12-27"), "pilot_id"},
		{"end before start", leaveBody("C1", "2025-12-27", "2025-12-20"), "end_date"},
		{"bad date", leaveBody("C1", "20/12/2025", "2025-12-27"), "start_date"},
		{"unknown pilot", leaveBody("Z9", "2025-12-20", "2025-12-27"), "pilot_id"},
		{"unknown category", map[string]any{"pilot_id": "C1", "category": "SIM", "start_date": "2025-12-20", "end_date": "2025-12-21"}, "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/requests", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, "VALIDATION", resp.Code)
			if tt.field != "" {
				assert.Equal(t, map[string]any{"field": tt.field}, resp.Details)
			}
		})
	}

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/requests/queue?rank=PURSER", nil).Code)
}

// =============================================================================
// PILOTS
// =============================================================================

func TestPilots(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec := api.do(t, http.MethodPost, "/api/pilots", map[string]any{
		"id": "F3", "name": "Mere Parata", "email": "mere@example.com", "rank": "FIRST_OFFICER", "seniority": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[PilotDTO](t, rec)
	require.NotNil(t, p.Active)
	assert.True(t, *p.Active, "active defaults to true")

	rec = api.do(t, http.MethodGet, "/api/pilots?rank=FO", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PilotDTO](t, rec), 3)

	rec = api.do(t, http.MethodPost, "/api/pilots", map[string]any{"id": "F4", "name": "X", "rank": "PURSER", "seniority": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/pilots", map[string]any{"id": "F4", "name": "X", "rank": "FIRST_OFFICER", "seniority": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/pilots", map[string]any{"id": "F4", "name": "X", "rank": "FIRST_OFFICER", "seniority": 4, "email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ALERTS
// =============================================================================

func TestAlertScanAndDeliveries(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})
	ctx := context.Background()
	_, err := api.handler.Service.Submit(ctx, generic.Candidate{
		PilotID: "C1", Details: generic.LeaveDetails{}, Start: generic.MustParseDate("2025-12-10"), End: generic.MustParseDate("2025-12-11"),
	})
	require.NoError(t, err)

	// GIVEN RP01/2026 with its deadline 14 days after 2025-11-01
	rec := api.do(t, http.MethodPost, "/api/admin/alerts/scan", map[string]string{"today": "2025-11-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN the 14-day milestone fires with fresh counts
	report := decode[alerts.ScanReport](t, rec)
	require.Len(t, report.Fired, 1)
	assert.Equal(t, "RP01/2026", report.Fired[0].PeriodCode)
	assert.Equal(t, 14, report.Fired[0].Milestone)
	assert.Equal(t, generic.DeliveryAccepted, report.Fired[0].Outcome)
	assert.Equal(t, 1, report.Fired[0].Counts.Pending)

	// WHEN scanning again without a date (handler today is the same day)
	rec = api.do(t, http.MethodPost, "/api/admin/alerts/scan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[alerts.ScanReport](t, rec).Fired)

	// THEN the delivery log holds the single attempt
	rec = api.do(t, http.MethodGet, "/api/admin/alerts/deliveries?period=RP01/2026", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deliveries := decode[[]DeliveryDTO](t, rec)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "ACCEPTED", deliveries[0].Outcome)
	assert.Equal(t, []string{"crew-planning@example.com"}, deliveries[0].Recipients)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/api/admin/alerts/scan", `{"today":"01/11/2025"}`).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/admin/alerts/deliveries?limit=0", nil).Code)
}

func TestAlertScanUsesScheduler(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})
	sched := alerts.NewScheduler(api.handler.Alerts, zap.NewNop())
	sched.Today = func() generic.TimePoint { return testToday }
	api.handler.Scheduler = sched

	rec := api.do(t, http.MethodPost, "/api/admin/alerts/scan", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	last, _, err := sched.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "2025-11-01", last.Today.String())
}

// =============================================================================
// MIDDLEWARE / ERRORS
// =============================================================================

func TestRouterRateLimit(t *testing.T) {
	api := newTestAPI(t, RouterConfig{Limiter: NewMemoryLimiter(1, time.Minute)})

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/pilots", nil).Code)
	rec := api.do(t, http.MethodGet, "/api/pilots", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Health checks sit outside /api.
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/healthz", nil).Code)
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	api := newTestAPI(t, RouterConfig{Logger: zap.New(core)})

	api.do(t, http.MethodGet, "/api/periods/RP01/2026", nil)
	api.do(t, http.MethodGet, "/api/requests/R-404", nil)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.EqualValues(t, http.StatusOK, entries[0].ContextMap()["status"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.EqualValues(t, http.StatusNotFound, entries[1].ContextMap()["status"])
}

func TestWriteDomainError_Internal(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := &Handler{logger: zap.New(core)}

	rec := httptest.NewRecorder()
	h.writeDomainError(rec, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "INTERNAL"))
	assert.Equal(t, 1, logs.Len())
}
