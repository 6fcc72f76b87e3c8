// Package storetest is a conformance suite run against every generic.TxStore
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/crew-roster/generic"
)

// Run executes the suite. newStore must return an empty store per call.
func Run(t *testing.T, newStore func(t *testing.T) generic.TxStore) {
	t.Run("requests", func(t *testing.T) { testRequests(t, newStore(t)) })
	t.Run("filters", func(t *testing.T) { testFilters(t, newStore(t)) })
	t.Run("pilots", func(t *testing.T) { testPilots(t, newStore(t)) })
	t.Run("periods", func(t *testing.T) { testPeriods(t, newStore(t)) })
	t.Run("alerts", func(t *testing.T) { testAlerts(t, newStore(t)) })
	t.Run("tx", func(t *testing.T) { testTx(t, newStore(t)) })
}

func date(s string) generic.TimePoint { return generic.MustParseDate(s) }

func leave(id, pilot, start, end string) generic.Request {
	return generic.Request{
		ID:         generic.RequestID(id),
		PilotID:    generic.PilotID(pilot),
		Rank:       generic.RankCaptain,
		Seniority:  5,
		Details:    generic.LeaveDetails{LeaveType: "ANNUAL"},
		Start:      date(start),
		End:        date(end),
		PeriodCode: "RP02/2026",
		Status:     generic.StatusPending,
	}
}

func testRequests(t *testing.T, s generic.TxStore) {
	ctx := context.Background()

	// GIVEN: A stored request with conflicts and a flight payload
	r := leave("R-1", "P-1", "2026-01-10", "2026-01-15")
	r.Details = generic.FlightDetails{FlightNumbers: []string{"WA101", "WA102"}, Destination: "NRT"}
	r.PriorityScore = 960000
	day := date("2026-01-12")
	r.Conflicts = []generic.Conflict{{
		Type: generic.ConflictAvailability, Severity: generic.SeverityMedium,
		Message: "crew below minimum", Date: &day,
	}}
	require.NoError(t, s.CreateRequest(ctx, r))

	// WHEN: It is read back
	got, err := s.GetRequest(ctx, "R-1")
	require.NoError(t, err)

	// THEN: Every field survives
	assert.Equal(t, r.Details, got.Details)
	assert.Equal(t, generic.CategoryFlight, got.Category())
	assert.True(t, r.Start.Equal(got.Start))
	assert.True(t, r.End.Equal(got.End))
	assert.Equal(t, 960000, got.PriorityScore)
	require.Len(t, got.Conflicts, 1)
	require.NotNil(t, got.Conflicts[0].Date)
	assert.Equal(t, "2026-01-12", got.Conflicts[0].Date.String())

	// Creating the same ID again is a duplicate
	err = s.CreateRequest(ctx, r)
	assert.ErrorIs(t, err, generic.ErrDuplicateSubmission)

	// Decision metadata is updated in place
	now := time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)
	got.Status = generic.StatusApproved
	got.DecidedBy = "chief-pilot"
	got.DecidedAt = &now
	require.NoError(t, s.UpdateRequest(ctx, got))

	after, err := s.GetRequest(ctx, "R-1")
	require.NoError(t, err)
	assert.Equal(t, generic.StatusApproved, after.Status)
	assert.Equal(t, "chief-pilot", after.DecidedBy)
	require.NotNil(t, after.DecidedAt)
	assert.True(t, now.Equal(*after.DecidedAt))

	// Unknown IDs
	_, err = s.GetRequest(ctx, "nope")
	assert.True(t, generic.IsNotFound(err))
	err = s.UpdateRequest(ctx, leave("nope", "P-1", "2026-01-10", "2026-01-10"))
	assert.True(t, generic.IsNotFound(err))
}

func testFilters(t *testing.T, s generic.TxStore) {
	ctx := context.Background()

	// GIVEN: Requests across pilots, ranks, years and statuses
	a := leave("R-a", "P-1", "2026-01-10", "2026-01-15")
	b := leave("R-b", "P-2", "2026-01-14", "2026-01-20")
	b.Status = generic.StatusApproved
	c := leave("R-c", "P-3", "2026-02-01", "2026-02-03")
	c.Rank = generic.RankFirstOfficer
	d := leave("R-d", "P-1", "2025-12-30", "2026-01-02")
	d.Status = generic.StatusDenied
	d.PeriodCode = "RP01/2026"
	for _, r := range []generic.Request{c, b, d, a} {
		require.NoError(t, s.CreateRequest(ctx, r))
	}

	ids := func(rs []generic.Request) []generic.RequestID {
		out := make([]generic.RequestID, len(rs))
		for i, r := range rs {
			out[i] = r.ID
		}
		return out
	}

	all, err := s.ListRequests(ctx, generic.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, []generic.RequestID{"R-d", "R-a", "R-b", "R-c"}, ids(all), "ordered by start date")

	span := generic.DateRange{Start: date("2026-01-13"), End: date("2026-01-14")}
	got, err := s.ListRequests(ctx, generic.RequestFilter{
		Rank:     generic.RankCaptain,
		Statuses: []generic.Status{generic.StatusPending, generic.StatusApproved},
		Overlaps: &span,
	})
	require.NoError(t, err)
	assert.Equal(t, []generic.RequestID{"R-a", "R-b"}, ids(got))

	got, err = s.ListRequests(ctx, generic.RequestFilter{PilotID: "P-1", StartYear: 2025})
	require.NoError(t, err)
	assert.Equal(t, []generic.RequestID{"R-d"}, ids(got))

	got, err = s.ListRequests(ctx, generic.RequestFilter{PeriodCode: "RP02/2026", Rank: generic.RankFirstOfficer})
	require.NoError(t, err)
	assert.Equal(t, []generic.RequestID{"R-c"}, ids(got))
}

func testPilots(t *testing.T, s generic.TxStore) {
	ctx := context.Background()

	pilots := []generic.Pilot{
		{ID: "P-2", Name: "Okafor", Rank: generic.RankCaptain, Seniority: 7, Active: true},
		{ID: "P-1", Name: "Lindqvist", Email: "l@example.com", Rank: generic.RankCaptain, Seniority: 3, Active: true},
		{ID: "P-3", Name: "Moreau", Rank: generic.RankCaptain, Seniority: 9, Active: false},
		{ID: "P-4", Name: "Tanaka", Rank: generic.RankFirstOfficer, Seniority: 1, Active: true},
	}
	for _, p := range pilots {
		require.NoError(t, s.SavePilot(ctx, p))
	}

	got, err := s.GetPilot(ctx, "P-1")
	require.NoError(t, err)
	assert.Equal(t, pilots[1], got)

	captains, err := s.ListPilots(ctx, generic.RankCaptain)
	require.NoError(t, err)
	require.Len(t, captains, 3)
	assert.Equal(t, generic.PilotID("P-1"), captains[0].ID, "most senior first")

	everyone, err := s.ListPilots(ctx, "")
	require.NoError(t, err)
	assert.Len(t, everyone, 4)

	n, err := s.CrewSize(ctx, generic.RankCaptain, generic.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "inactive pilots are not crew")

	// Upsert replaces
	pilots[2].Active = true
	require.NoError(t, s.SavePilot(ctx, pilots[2]))
	n, err = s.CrewSize(ctx, generic.RankCaptain, generic.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = s.GetPilot(ctx, "P-404")
	assert.True(t, generic.IsNotFound(err))
}

func testPeriods(t *testing.T, s generic.TxStore) {
	ctx := context.Background()

	status, stored, err := s.PeriodStatus(ctx, "RP01/2026")
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, generic.PeriodOpen, status)

	require.NoError(t, s.SetPeriodStatus(ctx, "RP01/2026", generic.PeriodLocked))
	require.NoError(t, s.SetPeriodStatus(ctx, "RP01/2026", generic.PeriodPublished))

	status, stored, err = s.PeriodStatus(ctx, "RP01/2026")
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, generic.PeriodPublished, status)
}

func testAlerts(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	first := time.Date(2025, 10, 25, 6, 0, 0, 0, time.UTC)

	claim := func(milestone int, at time.Time) bool {
		t.Helper()
		ok, err := s.ClaimMilestone(ctx, "RP01/2026", milestone, at)
		require.NoError(t, err)
		return ok
	}
	assert.True(t, claim(21, first))
	assert.False(t, claim(21, first.Add(time.Hour)), "second claim loses")
	assert.True(t, claim(14, first.AddDate(0, 0, 7)))

	fired, err := s.FiredMilestones(ctx, "RP01/2026")
	require.NoError(t, err)
	require.Len(t, fired, 2)
	assert.True(t, first.Equal(fired[21]), "first fire time is kept")

	// A released claim can be taken again.
	require.NoError(t, s.ReleaseMilestone(ctx, "RP01/2026", 14))
	fired, err = s.FiredMilestones(ctx, "RP01/2026")
	require.NoError(t, err)
	assert.NotContains(t, fired, 14)
	assert.True(t, claim(14, first.AddDate(0, 0, 8)))

	none, err := s.FiredMilestones(ctx, "RP02/2026")
	require.NoError(t, err)
	assert.Empty(t, none)

	for i, rec := range []generic.DeliveryRecord{
		{ID: "D-1", PeriodCode: "RP01/2026", Milestone: 21, DaysUntil: 21, Outcome: generic.DeliveryDelivered, Recipients: []string{"ops@example.com"}, AttemptedAt: first},
		{ID: "D-2", PeriodCode: "RP01/2026", Milestone: 14, DaysUntil: 14, Outcome: generic.DeliveryFailed, Detail: "timeout", AttemptedAt: first.AddDate(0, 0, 7)},
		{ID: "D-3", PeriodCode: "RP02/2026", Milestone: 21, DaysUntil: 21, Outcome: generic.DeliveryAccepted, AttemptedAt: first.AddDate(0, 0, 8)},
	} {
		require.NoError(t, s.LogDelivery(ctx, rec), "record %d", i)
	}

	recs, err := s.ListDeliveries(ctx, "RP01/2026", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "D-2", recs[0].ID, "newest first")
	assert.Equal(t, generic.DeliveryFailed, recs[0].Outcome)
	assert.Equal(t, "timeout", recs[0].Detail)
	assert.Equal(t, []string{"ops@example.com"}, recs[1].Recipients)

	recs, err = s.ListDeliveries(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "D-3", recs[0].ID)
}

func testTx(t *testing.T, s generic.TxStore) {
	ctx := context.Background()
	boom := errors.New("boom")

	// GIVEN: A transaction that writes and then fails
	err := s.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.CreateRequest(ctx, leave("R-tx", "P-1", "2026-01-10", "2026-01-11")); err != nil {
			return err
		}
		if err := tx.SetPeriodStatus(ctx, "RP02/2026", generic.PeriodLocked); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes
		if _, err := tx.GetRequest(ctx, "R-tx"); err != nil {
			return err
		}
		return boom
	})

	// THEN: Nothing was kept
	assert.ErrorIs(t, err, boom)
	_, err = s.GetRequest(ctx, "R-tx")
	assert.True(t, generic.IsNotFound(err))
	status, _, err := s.PeriodStatus(ctx, "RP02/2026")
	require.NoError(t, err)
	assert.Equal(t, generic.PeriodOpen, status)

	// WHEN: The transaction succeeds
	err = s.WithTx(ctx, func(tx generic.Store) error {
		return tx.CreateRequest(ctx, leave("R-tx", "P-1", "2026-01-10", "2026-01-11"))
	})
	require.NoError(t, err)

	// THEN: The write is visible
	_, err = s.GetRequest(ctx, "R-tx")
	assert.NoError(t, err)
}
