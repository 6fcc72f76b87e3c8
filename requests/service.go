/*
Package requests orchestrates the pilot request workflow.

PURPOSE:
  Ties the calendar, scorer and conflict detector to the store. Every
  operation follows the same data flow:

    candidate ──▶ calendar assigns period ──▶ detector checks siblings
              ──▶ scorer ranks among pending requests of the same rank
                  and period

WORKFLOW:
  Check    assess a candidate without storing anything
  Submit   store a PENDING request; refuses duplicates and closed periods,
           other conflicts are advisory and stored as flags
  Approve  PENDING → APPROVED inside a transaction that re-runs detection
           and aborts on any CRITICAL conflict
  Deny     PENDING → DENIED
  Queue    pending requests ranked per cohort, scores and conflicts
           recomputed on read

CONSISTENCY:
  Submission-time conflicts are a snapshot. Approval is the correctness
  boundary: detection runs again against current data within the same
  transaction that flips the status.

SEE ALSO:
  - roster/calendar.go, priority/scorer.go, conflict/detector.go
  - api/handlers.go: HTTP surface
*/
package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/crew-roster/conflict"
	"github.com/warp/crew-roster/generic"
	"github.com/warp/crew-roster/priority"
	"github.com/warp/crew-roster/roster"
)

// Service implements the request workflow.
type Service struct {
	calendar *roster.Calendar
	store    generic.TxStore
	scorer   *priority.Scorer
	detector *conflict.Detector
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the clock for created/decided timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs replaces uuid generation, for deterministic tests and demos.
func WithIDs(next func() string) Option {
	return func(s *Service) { s.newID = next }
}

func NewService(cal *roster.Calendar, store generic.TxStore, scorer *priority.Scorer, detector *conflict.Detector, opts ...Option) *Service {
	s := &Service{
		calendar: cal,
		store:    store,
		scorer:   scorer,
		detector: detector,
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Service) Calendar() *roster.Calendar { return s.calendar }

// =============================================================================
// ASSESSMENT
// =============================================================================

// Assessment is the answer to "what happens if this request goes in".
type Assessment struct {
	Request       generic.Request
	Period        generic.RosterPeriod
	Conflicts     []generic.Conflict
	Blocking      []generic.Conflict // subset of Conflicts that refuses submission
	CrewImpact    conflict.CrewImpact
	ApprovedDays  int
	PriorityScore int
	PriorityRank  int // 1-based within the rank cohort of the period
	CohortSize    int
	CanApprove    bool
	Degraded      bool
}

// Check assesses a candidate without storing it.
func (s *Service) Check(ctx context.Context, c generic.Candidate) (Assessment, error) {
	req, err := s.prepare(ctx, c)
	if err != nil {
		return Assessment{}, err
	}
	return s.assess(ctx, s.store, req)
}

// prepare resolves the pilot and derives rank, seniority and period.
func (s *Service) prepare(ctx context.Context, c generic.Candidate) (generic.Request, error) {
	if c.PilotID == "" {
		return generic.Request{}, &generic.ValidationError{Field: "pilot_id", Reason: "required"}
	}
	pilot, err := s.store.GetPilot(ctx, c.PilotID)
	if generic.IsNotFound(err) {
		return generic.Request{}, &generic.ValidationError{Field: "pilot_id", Reason: fmt.Sprintf("unknown pilot %q", c.PilotID)}
	}
	if err != nil {
		return generic.Request{}, err
	}
	if !pilot.Active {
		return generic.Request{}, &generic.ValidationError{Field: "pilot_id", Reason: fmt.Sprintf("pilot %q is not active", c.PilotID)}
	}

	req := generic.Request{
		ID:        generic.RequestID(s.newID()),
		PilotID:   pilot.ID,
		Rank:      pilot.Rank,
		Seniority: pilot.Seniority,
		Details:   c.Details,
		Start:     c.Start,
		End:       c.End,
		Status:    generic.StatusPending,
	}
	if err := req.Validate(); err != nil {
		return generic.Request{}, err
	}
	req.PeriodCode = s.calendar.PeriodFor(req.Start).Code
	return req, nil
}

// assess runs detection and ranking for req against the data in st.
func (s *Service) assess(ctx context.Context, st generic.Store, req generic.Request) (Assessment, error) {
	period, err := s.periodWithStatus(ctx, st, s.calendar.PeriodFor(req.Start))
	if err != nil {
		return Assessment{}, err
	}

	span := req.Range()
	siblings, err := st.ListRequests(ctx, generic.RequestFilter{
		Statuses: []generic.Status{generic.StatusPending, generic.StatusApproved},
		Overlaps: &span,
	})
	if err != nil {
		return Assessment{}, err
	}
	result := s.detector.Detect(ctx, req, siblings, st)

	approved, err := s.approvedFor(ctx, st, req.PilotID)
	if err != nil {
		return Assessment{}, err
	}
	approvedDays := priority.ApprovedDays(approved, req.PilotID, req.Start.Year())

	cohort, err := st.ListRequests(ctx, generic.RequestFilter{
		Rank:       req.Rank,
		PeriodCode: req.PeriodCode,
		Statuses:   []generic.Status{generic.StatusPending},
	})
	if err != nil {
		return Assessment{}, err
	}
	entries, err := s.entries(ctx, st, append(withoutID(cohort, req.ID), req))
	if err != nil {
		return Assessment{}, err
	}
	ranked := priority.CohortFor(s.scorer.Rank(entries), req.Rank)

	req.Conflicts = result.Conflicts
	req.PriorityScore = s.scorer.Score(req.Seniority, approvedDays)

	return Assessment{
		Request:       req,
		Period:        period,
		Conflicts:     result.Conflicts,
		Blocking:      result.Blocking(),
		CrewImpact:    result.CrewImpact,
		ApprovedDays:  approvedDays,
		PriorityScore: req.PriorityScore,
		PriorityRank:  ranked.Position(req.ID),
		CohortSize:    len(ranked.Entries),
		CanApprove:    result.CanApprove,
		Degraded:      result.Degraded,
	}, nil
}

// =============================================================================
// SUBMIT / APPROVE / DENY
// =============================================================================

// Submit stores a new PENDING request. Blocking conflicts (duplicates)
// reject it with ErrDuplicateSubmission; everything else is advisory.
func (s *Service) Submit(ctx context.Context, c generic.Candidate) (Assessment, error) {
	req, err := s.prepare(ctx, c)
	if err != nil {
		return Assessment{}, err
	}

	var out Assessment
	err = s.store.WithTx(ctx, func(tx generic.Store) error {
		a, err := s.assess(ctx, tx, req)
		if err != nil {
			return err
		}
		if a.Period.Status != generic.PeriodOpen {
			return fmt.Errorf("%w: %s is %s", generic.ErrPeriodClosed, a.Period.Code, a.Period.Status)
		}
		if len(a.Blocking) > 0 {
			return fmt.Errorf("%w: %s", generic.ErrDuplicateSubmission, a.Blocking[0].Message)
		}

		now := s.now()
		a.Request.CreatedAt = now
		a.Request.UpdatedAt = now
		if err := tx.CreateRequest(ctx, a.Request); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return Assessment{}, err
	}

	s.logger.Info("request submitted",
		zap.String("request_id", string(out.Request.ID)),
		zap.String("pilot_id", string(out.Request.PilotID)),
		zap.String("category", string(out.Request.Category())),
		zap.String("period", out.Request.PeriodCode),
		zap.Int("priority_score", out.PriorityScore),
		zap.Int("conflicts", len(out.Conflicts)),
		zap.Bool("degraded", out.Degraded),
	)
	return out, nil
}

// Approve flips a PENDING request to APPROVED. Detection is re-run inside
// the transaction; a CRITICAL conflict aborts with *generic.ConflictError.
func (s *Service) Approve(ctx context.Context, id generic.RequestID, approver string) (generic.Request, error) {
	var out generic.Request
	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != generic.StatusPending {
			return &generic.TransitionError{Subject: "request", ID: string(id), From: string(req.Status), To: string(generic.StatusApproved)}
		}

		a, err := s.assess(ctx, tx, req)
		if err != nil {
			return err
		}
		if !a.CanApprove {
			return &generic.ConflictError{RequestID: id, Conflicts: a.Conflicts}
		}

		now := s.now()
		req.Status = generic.StatusApproved
		req.Conflicts = a.Conflicts
		req.PriorityScore = a.PriorityScore
		req.DecidedBy = approver
		req.DecidedAt = &now
		req.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		var ce *generic.ConflictError
		if errors.As(err, &ce) {
			s.logger.Warn("approval blocked",
				zap.String("request_id", string(id)),
				zap.String("approver", approver),
				zap.Int("conflicts", len(ce.Conflicts)))
		}
		return generic.Request{}, err
	}

	s.logger.Info("request approved",
		zap.String("request_id", string(id)),
		zap.String("approver", approver))
	return out, nil
}

// Deny flips a PENDING request to DENIED.
func (s *Service) Deny(ctx context.Context, id generic.RequestID, approver, reason string) (generic.Request, error) {
	var out generic.Request
	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != generic.StatusPending {
			return &generic.TransitionError{Subject: "request", ID: string(id), From: string(req.Status), To: string(generic.StatusDenied)}
		}

		now := s.now()
		req.Status = generic.StatusDenied
		req.DecidedBy = approver
		req.DecidedAt = &now
		req.DenialReason = reason
		req.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return generic.Request{}, err
	}

	s.logger.Info("request denied",
		zap.String("request_id", string(id)),
		zap.String("approver", approver),
		zap.String("reason", reason))
	return out, nil
}

// Get returns a stored request.
func (s *Service) Get(ctx context.Context, id generic.RequestID) (generic.Request, error) {
	return s.store.GetRequest(ctx, id)
}

// =============================================================================
// QUEUE
// =============================================================================

// QueueFilter narrows the approval queue. Empty fields match everything.
type QueueFilter struct {
	Rank       generic.Rank
	PeriodCode string
}

// QueueItem is one pending request with freshly computed data.
type QueueItem struct {
	priority.Ranked
	Conflicts  []generic.Conflict
	CanApprove bool
	Degraded   bool
}

// QueueCohort is the ordered queue of one rank.
type QueueCohort struct {
	Rank  generic.Rank
	Items []QueueItem
}

// Queue returns pending requests ranked per rank cohort, with scores and
// conflicts recomputed from current data.
func (s *Service) Queue(ctx context.Context, f QueueFilter) ([]QueueCohort, error) {
	if f.Rank != "" && !f.Rank.Valid() {
		return nil, &generic.ValidationError{Field: "rank", Reason: fmt.Sprintf("unknown rank %q", f.Rank)}
	}
	pending, err := s.store.ListRequests(ctx, generic.RequestFilter{
		Rank:       f.Rank,
		PeriodCode: f.PeriodCode,
		Statuses:   []generic.Status{generic.StatusPending},
	})
	if err != nil {
		return nil, err
	}
	entries, err := s.entries(ctx, s.store, pending)
	if err != nil {
		return nil, err
	}

	var out []QueueCohort
	for _, cohort := range s.scorer.Rank(entries) {
		if f.Rank != "" && cohort.Rank != f.Rank {
			continue
		}
		qc := QueueCohort{Rank: cohort.Rank, Items: make([]QueueItem, 0, len(cohort.Entries))}
		for _, r := range cohort.Entries {
			span := r.Request.Range()
			siblings, err := s.store.ListRequests(ctx, generic.RequestFilter{
				Statuses: []generic.Status{generic.StatusPending, generic.StatusApproved},
				Overlaps: &span,
			})
			if err != nil {
				return nil, err
			}
			res := s.detector.Detect(ctx, r.Request, siblings, s.store)
			r.Request.Conflicts = res.Conflicts
			r.Request.PriorityScore = r.Score
			qc.Items = append(qc.Items, QueueItem{
				Ranked:     r,
				Conflicts:  res.Conflicts,
				CanApprove: res.CanApprove,
				Degraded:   res.Degraded,
			})
		}
		out = append(out, qc)
	}
	return out, nil
}

// entries pairs each request with its pilot's approved days for the year
// the request starts in.
func (s *Service) entries(ctx context.Context, st generic.Store, reqs []generic.Request) ([]priority.Entry, error) {
	approved := make(map[generic.PilotID][]generic.Request)
	out := make([]priority.Entry, 0, len(reqs))
	for _, r := range reqs {
		list, ok := approved[r.PilotID]
		if !ok {
			var err error
			if list, err = s.approvedFor(ctx, st, r.PilotID); err != nil {
				return nil, err
			}
			approved[r.PilotID] = list
		}
		out = append(out, priority.Entry{
			Request:      r,
			ApprovedDays: priority.ApprovedDays(list, r.PilotID, r.Start.Year()),
		})
	}
	return out, nil
}

func (s *Service) approvedFor(ctx context.Context, st generic.Store, pilot generic.PilotID) ([]generic.Request, error) {
	return st.ListRequests(ctx, generic.RequestFilter{
		PilotID:  pilot,
		Statuses: []generic.Status{generic.StatusApproved},
	})
}

// =============================================================================
// PERIODS
// =============================================================================

// Period returns the period containing date with its stored status.
func (s *Service) Period(ctx context.Context, date generic.TimePoint) (generic.RosterPeriod, error) {
	return s.periodWithStatus(ctx, s.store, s.calendar.PeriodFor(date))
}

// PeriodByCode resolves a code and overlays its stored status.
func (s *Service) PeriodByCode(ctx context.Context, code string) (generic.RosterPeriod, error) {
	p, err := s.calendar.PeriodByCode(code)
	if err != nil {
		return generic.RosterPeriod{}, err
	}
	return s.periodWithStatus(ctx, s.store, p)
}

// ListPeriods returns every period intersecting [from, to].
func (s *Service) ListPeriods(ctx context.Context, from, to generic.TimePoint) ([]generic.RosterPeriod, error) {
	periods, err := s.calendar.PeriodsBetween(from, to)
	if err != nil {
		return nil, err
	}
	for i := range periods {
		if periods[i], err = s.periodWithStatus(ctx, s.store, periods[i]); err != nil {
			return nil, err
		}
	}
	return periods, nil
}

// SetPeriodStatus moves a period forward through its lifecycle.
func (s *Service) SetPeriodStatus(ctx context.Context, code string, next generic.PeriodStatus) (generic.RosterPeriod, error) {
	if !next.Valid() {
		return generic.RosterPeriod{}, &generic.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown period status %q", next)}
	}
	p, err := s.calendar.PeriodByCode(code)
	if err != nil {
		return generic.RosterPeriod{}, err
	}

	err = s.store.WithTx(ctx, func(tx generic.Store) error {
		current, err := s.periodWithStatus(ctx, tx, p)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(next) {
			return &generic.TransitionError{Subject: "period", ID: p.Code, From: string(current.Status), To: string(next)}
		}
		return tx.SetPeriodStatus(ctx, p.Code, next)
	})
	if err != nil {
		return generic.RosterPeriod{}, err
	}

	s.logger.Info("period status changed", zap.String("period", p.Code), zap.String("status", string(next)))
	p.Status = next
	return p, nil
}

func (s *Service) periodWithStatus(ctx context.Context, st generic.PeriodStore, p generic.RosterPeriod) (generic.RosterPeriod, error) {
	status, _, err := st.PeriodStatus(ctx, p.Code)
	if err != nil {
		return generic.RosterPeriod{}, err
	}
	p.Status = status
	return p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func withoutID(reqs []generic.Request, id generic.RequestID) []generic.Request {
	out := make([]generic.Request, 0, len(reqs))
	for _, r := range reqs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
