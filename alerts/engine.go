/*
Package alerts fires deadline reminders for roster periods.

PURPOSE:
  Pilots must get their requests in before a roster period's deadline
  (21 days before it starts). The engine is scanned once a day (cron via
  rosterctl, the admin endpoint, or the in-process Scheduler) and sends at
  most one reminder per (period, milestone).

MILESTONES:
  Days before the deadline: 21, 14, 7, 3, 1, 0.

  For each OPEN period whose deadline lies in [today, today+21]:

    days  = deadline - today
    due   = smallest milestone m with days <= m
    fire  = due not fired AND no smaller milestone fired

  A milestone skipped because no scan ran that day is not replayed: the
  next scan fires whatever is due then. Nothing fires after the deadline.

  Example, deadline 2025-11-15:
    2025-10-25 (21 days)  fires 21
    2025-10-26 (20 days)  nothing, 21 already fired
    2025-11-01 (14 days)  fires 14
    2025-11-12 ( 3 days)  fires 3 (7 was missed)
    2025-11-15 ( 0 days)  fires 0
    2025-11-20 (-5 days)  nothing

DELIVERY:
  The (period, milestone) marker is claimed in the store before sending,
  so of several overlapping scans exactly one delivers. Every attempt is
  written to the delivery log. A FAILED delivery releases the claim and
  the next scan retries; DELIVERED or ACCEPTED keep it.

SEE ALSO:
  - notify/notify.go: Notifier implementations
  - alerts/scheduler.go: In-process ticker
*/
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/crew-roster/generic"
	"github.com/warp/crew-roster/notify"
	"github.com/warp/crew-roster/roster"
)

// DefaultMilestones are the reminder offsets in days before a deadline.
var DefaultMilestones = []int{21, 14, 7, 3, 1, 0}

// Store is the persistence the engine needs.
type Store interface {
	generic.RequestStore
	generic.PeriodStore
	generic.AlertStore
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	calendar   *roster.Calendar
	store      Store
	notifier   notify.Notifier
	recipients []string
	milestones []int // ascending
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Engine)

// WithMilestones replaces the default milestones. Negative values are dropped.
func WithMilestones(ms []int) Option {
	return func(e *Engine) {
		var out []int
		seen := make(map[int]bool)
		for _, m := range ms {
			if m >= 0 && !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
		if len(out) > 0 {
			e.milestones = out
		}
	}
}

func WithRecipients(r []string) Option {
	return func(e *Engine) { e.recipients = append([]string(nil), r...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the clock used for fired_at and attempted_at.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(cal *roster.Calendar, store Store, notifier notify.Notifier, opts ...Option) *Engine {
	e := &Engine{
		calendar:   cal,
		store:      store,
		notifier:   notifier,
		milestones: append([]int(nil), DefaultMilestones...),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	sort.Ints(e.milestones)
	return e
}

// Milestones returns the configured milestones, ascending.
func (e *Engine) Milestones() []int {
	return append([]int(nil), e.milestones...)
}

// Horizon is the largest milestone: how far ahead a scan looks.
func (e *Engine) Horizon() int {
	return e.milestones[len(e.milestones)-1]
}

// DueMilestone returns the smallest milestone >= daysUntil.
func (e *Engine) DueMilestone(daysUntil int) (int, bool) {
	if daysUntil < 0 {
		return 0, false
	}
	for _, m := range e.milestones {
		if daysUntil <= m {
			return m, true
		}
	}
	return 0, false
}

// =============================================================================
// SCAN
// =============================================================================

// Firing is one alert attempt made by a scan.
type Firing struct {
	PeriodCode string                  `json:"period_code"`
	Milestone  int                     `json:"milestone"`
	DaysUntil  int                     `json:"days_until"`
	Outcome    generic.DeliveryOutcome `json:"outcome"`
	Detail     string                  `json:"detail,omitempty"`
	DeliveryID string                  `json:"delivery_id"`
	Counts     notify.Counts           `json:"counts"`
}

// ScanReport summarises one scan.
type ScanReport struct {
	Today   generic.TimePoint `json:"today"`
	Checked []string          `json:"checked"` // OPEN periods inside the horizon
	Fired   []Firing          `json:"fired"`
	Failed  []Firing          `json:"failed"`
}

// Scan checks every period whose deadline is within the horizon of today.
// Store errors for one period do not stop the others; they are joined into
// the returned error.
func (e *Engine) Scan(ctx context.Context, today generic.TimePoint) (ScanReport, error) {
	report := ScanReport{Today: today}

	lead := e.calendar.DeadlineLead()
	periods, err := e.calendar.PeriodsBetween(today.AddDays(lead), today.AddDays(lead+e.Horizon()))
	if err != nil {
		return report, err
	}

	var errs []error
	for _, p := range periods {
		days := p.DaysUntilDeadline(today)
		if days < 0 || days > e.Horizon() {
			continue
		}
		firing, open, err := e.scanPeriod(ctx, p, days)
		if err != nil {
			e.logger.Error("alert scan failed for period", zap.String("period", p.Code), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p.Code, err))
			continue
		}
		if open {
			report.Checked = append(report.Checked, p.Code)
		}
		if firing == nil {
			continue
		}
		if firing.Outcome.Advances() {
			report.Fired = append(report.Fired, *firing)
		} else {
			report.Failed = append(report.Failed, *firing)
		}
	}

	e.logger.Info("alert scan complete",
		zap.String("today", today.String()),
		zap.Int("checked", len(report.Checked)),
		zap.Int("fired", len(report.Fired)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, errors.Join(errs...)
}

// scanPeriod handles one period. open is false for periods that are not
// OPEN; firing is nil when nothing was due.
func (e *Engine) scanPeriod(ctx context.Context, p generic.RosterPeriod, days int) (firing *Firing, open bool, err error) {
	status, _, err := e.store.PeriodStatus(ctx, p.Code)
	if err != nil {
		return nil, false, err
	}
	if status != generic.PeriodOpen {
		return nil, false, nil
	}

	due, ok := e.DueMilestone(days)
	if !ok {
		return nil, true, nil
	}
	fired, err := e.store.FiredMilestones(ctx, p.Code)
	if err != nil {
		return nil, true, err
	}
	for m := range fired {
		if m <= due {
			return nil, true, nil
		}
	}

	// Overlapping scans (cron, scheduler, admin endpoint) race here; only
	// the claim winner sends.
	attemptedAt := e.now()
	claimed, err := e.store.ClaimMilestone(ctx, p.Code, due, attemptedAt)
	if err != nil {
		return nil, true, err
	}
	if !claimed {
		return nil, true, nil
	}

	counts, err := e.counts(ctx, p.Code)
	if err != nil {
		return nil, true, e.release(ctx, p.Code, due, err)
	}

	alert := notify.Alert{Period: p, Milestone: due, DaysUntil: days, Counts: counts}
	res, sendErr := e.notifier.Send(ctx, alert, e.recipients)
	if sendErr != nil {
		// An error wins over whatever outcome came with it.
		res.Outcome = generic.DeliveryFailed
		if res.Detail == "" {
			res.Detail = sendErr.Error()
		}
	}
	if res.Outcome == "" {
		res.Outcome = generic.DeliveryFailed
		res.Detail = "notifier reported no outcome"
	}

	if !res.Outcome.Advances() {
		if err := e.release(ctx, p.Code, due, nil); err != nil {
			return nil, true, err
		}
	}

	rec := generic.DeliveryRecord{
		ID:          uuid.NewString(),
		PeriodCode:  p.Code,
		Milestone:   due,
		DaysUntil:   days,
		Outcome:     res.Outcome,
		Detail:      res.Detail,
		Recipients:  e.recipients,
		AttemptedAt: attemptedAt,
	}
	if err := e.store.LogDelivery(ctx, rec); err != nil {
		return nil, true, err
	}

	firing = &Firing{
		PeriodCode: p.Code,
		Milestone:  due,
		DaysUntil:  days,
		Outcome:    res.Outcome,
		Detail:     res.Detail,
		DeliveryID: rec.ID,
		Counts:     counts,
	}

	if !res.Outcome.Advances() {
		e.logger.Warn("deadline alert not delivered, will retry",
			zap.String("period", p.Code),
			zap.Int("milestone", due),
			zap.String("detail", res.Detail),
		)
		return firing, true, nil
	}

	e.logger.Info("deadline alert fired",
		zap.String("period", p.Code),
		zap.Int("milestone", due),
		zap.Int("days_until", days),
		zap.String("outcome", string(res.Outcome)),
	)
	return firing, true, nil
}

// release drops the claim on (code, milestone) so the next scan retries.
// cause, when non-nil, is returned alongside any release failure.
func (e *Engine) release(ctx context.Context, code string, milestone int, cause error) error {
	if err := e.store.ReleaseMilestone(ctx, code, milestone); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// counts aggregates the period's requests at alert time.
func (e *Engine) counts(ctx context.Context, code string) (notify.Counts, error) {
	reqs, err := e.store.ListRequests(ctx, generic.RequestFilter{PeriodCode: code})
	if err != nil {
		return notify.Counts{}, err
	}
	var c notify.Counts
	for _, r := range reqs {
		c.Submitted++
		switch r.Status {
		case generic.StatusPending:
			c.Pending++
		case generic.StatusApproved:
			c.Approved++
		case generic.StatusDenied:
			c.Denied++
		}
	}
	return c, nil
}
