/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Pre-built crew rosters and request sets for demos and manual testing.
	Every request goes through the request service, so scores, periods and
	conflicts are the real ones.

AVAILABLE SCENARIOS:

	rp01-2026:       Christmas bid round for RP01/2026 with one earlier
	                 approval, an overlap and a LOW availability warning
	holiday-crunch:  Eight captains ask for Christmas; approvals blocked
	                 by a CRITICAL availability conflict
	deadline-alerts: Pending requests in the next period with a deadline
	                 ahead, the period before it LOCKED

HOW SCENARIOS WORK:
 1. Reset the store
 2. Save the crew roster
 3. Submit requests through the service
 4. Approve or deny where the story needs it

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "rp01-2026"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/crew-roster/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, h *Handler) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "rp01-2026",
			Name:        "RP01/2026 Bid Round",
			Description: "Christmas leave, flight and bid requests for RP01/2026 ranked by seniority",
		},
		load: loadRP01Scenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "holiday-crunch",
			Name:        "Holiday Crunch",
			Description: "Eight captains request 24-26 December; approvals blocked until some are denied",
		},
		load: loadHolidayCrunchScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "deadline-alerts",
			Name:        "Deadline Alerts",
			Description: "Pending requests in the next open period; run an alert scan to see reminders",
		},
		load: loadDeadlineAlertsScenario,
	},
}

// resetter is implemented by every store in this module.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s.ScenarioDTO)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp, err := h.loadScenario(r.Context(), req.ScenarioID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DefaultScenario is seeded by the server's demo mode.
const DefaultScenario = "rp01-2026"

// SeedScenario loads a scenario outside HTTP, e.g. at startup.
func (h *Handler) SeedScenario(ctx context.Context, id string) (ScenarioLoadedResponse, error) {
	return h.loadScenario(ctx, id)
}

func (h *Handler) loadScenario(ctx context.Context, id string) (ScenarioLoadedResponse, error) {
	var found *scenario
	for i := range scenarios {
		if scenarios[i].ID == id {
			found = &scenarios[i]
			break
		}
	}
	if found == nil {
		return ScenarioLoadedResponse{}, &generic.NotFoundError{Kind: "scenario", Key: id}
	}

	rs, ok := h.Store.(resetter)
	if !ok {
		return ScenarioLoadedResponse{}, errors.New("store cannot be reset for scenarios")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := rs.Reset(ctx); err != nil {
		return ScenarioLoadedResponse{}, fmt.Errorf("failed to reset store: %w", err)
	}
	h.currentScenario = ""
	if err := found.load(ctx, h); err != nil {
		return ScenarioLoadedResponse{}, fmt.Errorf("failed to load scenario %s: %w", id, err)
	}
	h.currentScenario = id

	pilots, err := h.Store.ListPilots(ctx, "")
	if err != nil {
		return ScenarioLoadedResponse{}, err
	}
	reqs, err := h.Store.ListRequests(ctx, generic.RequestFilter{})
	if err != nil {
		return ScenarioLoadedResponse{}, err
	}

	h.logger.Info("scenario loaded",
		zap.String("scenario", id),
		zap.Int("pilots", len(pilots)),
		zap.Int("requests", len(reqs)))
	return ScenarioLoadedResponse{Scenario: found.ScenarioDTO, Pilots: len(pilots), Requests: len(reqs)}, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadRP01Scenario: the RP01/2026 (2025-12-06 .. 2026-01-02) bid round.
func loadRP01Scenario(ctx context.Context, h *Handler) error {
	if err := h.seedCrew(ctx, 12, 12); err != nil {
		return err
	}

	// Earlier approved leave in RP13/2025 costs C-103 priority points.
	earlier, err := h.submit(ctx, "C-103", generic.LeaveDetails{LeaveType: "ANNUAL"}, "2025-11-10", "2025-11-19")
	if err != nil {
		return err
	}
	if _, err := h.Service.Approve(ctx, earlier, "crew-planning"); err != nil {
		return err
	}

	pending := []struct {
		pilot      generic.PilotID
		details    generic.Details
		start, end string
	}{
		{"C-101", generic.LeaveBidDetails{Preference: 1, Reason: "New Year"}, "2025-12-29", "2026-01-02"},
		{"C-103", generic.LeaveDetails{LeaveType: "ANNUAL", Reason: "Christmas"}, "2025-12-22", "2025-12-28"},
		{"C-105", generic.LeaveDetails{LeaveType: "ANNUAL"}, "2025-12-20", "2025-12-27"},
		{"C-105", generic.FlightDetails{FlightNumbers: []string{"NZ1", "NZ2"}, Destination: "LAX"}, "2025-12-26", "2025-12-27"},
		{"C-110", generic.FlightDetails{FlightNumbers: []string{"NZ99"}, Destination: "HNL", Reason: "Line check"}, "2025-12-24", "2025-12-26"},
		{"F-204", generic.LeaveDetails{LeaveType: "ANNUAL"}, "2025-12-23", "2025-12-30"},
		{"F-207", generic.LeaveBidDetails{Preference: 2}, "2025-12-08", "2025-12-12"},
	}
	for _, p := range pending {
		if _, err := h.submit(ctx, p.pilot, p.details, p.start, p.end); err != nil {
			return err
		}
	}
	return nil
}

// loadHolidayCrunchScenario: 8 of 12 captains away 24-26 December.
func loadHolidayCrunchScenario(ctx context.Context, h *Handler) error {
	if err := h.seedCrew(ctx, 12, 12); err != nil {
		return err
	}
	for i := 1; i <= 8; i++ {
		pilot := generic.PilotID(fmt.Sprintf("C-%d", 100+i))
		if _, err := h.submit(ctx, pilot, generic.LeaveDetails{LeaveType: "ANNUAL", Reason: "Christmas"}, "2025-12-24", "2025-12-26"); err != nil {
			return err
		}
	}
	return nil
}

// loadDeadlineAlertsScenario: requests in the next period whose deadline
// is still ahead of today; the period before it is LOCKED.
func loadDeadlineAlertsScenario(ctx context.Context, h *Handler) error {
	if err := h.seedCrew(ctx, 12, 12); err != nil {
		return err
	}

	cal := h.Service.Calendar()
	today := h.today()
	target := cal.PeriodFor(today)
	for target.Deadline.Before(today) {
		target = cal.Next(target)
	}
	if _, err := h.Service.SetPeriodStatus(ctx, cal.Previous(target).Code, generic.PeriodLocked); err != nil {
		return err
	}

	start := target.Start
	pending := []struct {
		pilot    generic.PilotID
		details  generic.Details
		from, to int
	}{
		{"C-102", generic.LeaveDetails{LeaveType: "ANNUAL"}, 2, 6},
		{"C-108", generic.LeaveBidDetails{Preference: 1}, 10, 13},
		{"F-203", generic.FlightDetails{FlightNumbers: []string{"NZ5"}}, 4, 5},
	}
	for _, r := range pending {
		if _, err := h.submit(ctx, r.pilot, r.details, start.AddDays(r.from).String(), start.AddDays(r.to).String()); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

var crewNames = []string{
	"Aroha Ngata", "Ben Lindqvist", "Chloe Okafor", "Dev Raman", "Elena Sokolova",
	"Finn O'Brien", "Grace Tanaka", "Hemi Walker", "Isla Moreau", "Jonah Price",
	"Kiri Thompson", "Liam Duarte",
}

// seedCrew saves captains C-101.. and first officers F-201.. with
// seniority following the numbering.
func (h *Handler) seedCrew(ctx context.Context, captains, firstOfficers int) error {
	save := func(prefix int, rank generic.Rank, n int) error {
		for i := 1; i <= n; i++ {
			p := generic.Pilot{
				ID:        generic.PilotID(fmt.Sprintf("%s-%d", rankPrefix(rank), prefix+i)),
				Name:      crewNames[(i-1)%len(crewNames)],
				Rank:      rank,
				Seniority: i,
				Active:    true,
			}
			if err := h.Store.SavePilot(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}
	if err := save(100, generic.RankCaptain, captains); err != nil {
		return err
	}
	return save(200, generic.RankFirstOfficer, firstOfficers)
}

func rankPrefix(r generic.Rank) string {
	if r == generic.RankCaptain {
		return "C"
	}
	return "F"
}

func (h *Handler) submit(ctx context.Context, pilot generic.PilotID, details generic.Details, start, end string) (generic.RequestID, error) {
	a, err := h.Service.Submit(ctx, generic.Candidate{
		PilotID: pilot,
		Details: details,
		Start:   generic.MustParseDate(start),
		End:     generic.MustParseDate(end),
	})
	if err != nil {
		return "", err
	}
	return a.Request.ID, nil
}
