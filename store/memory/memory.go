// Package memory provides an in-memory generic.TxStore for tests and demos.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/crew-roster/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Store struct {
	mu    sync.RWMutex
	state state
}

type state struct {
	requests   map[generic.RequestID]generic.Request
	pilots     map[generic.PilotID]generic.Pilot
	periods    map[string]generic.PeriodStatus
	fired      map[string]map[int]time.Time
	deliveries []generic.DeliveryRecord
}

func New() *Store {
	return &Store{state: state{
		requests: make(map[generic.RequestID]generic.Request),
		pilots:   make(map[generic.PilotID]generic.Pilot),
		periods:  make(map[string]generic.PeriodStatus),
		fired:    make(map[string]map[int]time.Time),
	}}
}

// Reset drops all data. Used when loading demo scenarios.
func (m *Store) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = New().state
	return nil
}

// =============================================================================
// STORE METHODS - lock, then delegate to the unlocked state
// =============================================================================

func (m *Store) CreateRequest(_ context.Context, r generic.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createRequest(r)
}

func (m *Store) UpdateRequest(_ context.Context, r generic.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.updateRequest(r)
}

func (m *Store) GetRequest(_ context.Context, id generic.RequestID) (generic.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getRequest(id)
}

func (m *Store) ListRequests(_ context.Context, f generic.RequestFilter) ([]generic.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listRequests(f), nil
}

func (m *Store) SavePilot(_ context.Context, p generic.Pilot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.pilots[p.ID] = p
	return nil
}

func (m *Store) GetPilot(_ context.Context, id generic.PilotID) (generic.Pilot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getPilot(id)
}

func (m *Store) ListPilots(_ context.Context, rank generic.Rank) ([]generic.Pilot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listPilots(rank), nil
}

func (m *Store) CrewSize(_ context.Context, rank generic.Rank, _ generic.DateRange) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.crewSize(rank), nil
}

func (m *Store) PeriodStatus(_ context.Context, code string) (generic.PeriodStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.state.periods[code]
	if !ok {
		return generic.PeriodOpen, false, nil
	}
	return s, true, nil
}

func (m *Store) SetPeriodStatus(_ context.Context, code string, status generic.PeriodStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.periods[code] = status
	return nil
}

func (m *Store) FiredMilestones(_ context.Context, code string) (map[int]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.firedMilestones(code), nil
}

func (m *Store) ClaimMilestone(_ context.Context, code string, milestone int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.claimMilestone(code, milestone, at), nil
}

func (m *Store) ReleaseMilestone(_ context.Context, code string, milestone int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.fired[code], milestone)
	return nil
}

func (m *Store) LogDelivery(_ context.Context, rec generic.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.deliveries = append(m.state.deliveries, rec)
	return nil
}

func (m *Store) ListDeliveries(_ context.Context, code string, limit int) ([]generic.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listDeliveries(code, limit), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Store) WithTx(_ context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&txView{s: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// txView runs against the state while the parent lock is held.
type txView struct {
	s *state
}

func (v *txView) CreateRequest(_ context.Context, r generic.Request) error { return v.s.createRequest(r) }
func (v *txView) UpdateRequest(_ context.Context, r generic.Request) error { return v.s.updateRequest(r) }
func (v *txView) GetRequest(_ context.Context, id generic.RequestID) (generic.Request, error) {
	return v.s.getRequest(id)
}
func (v *txView) ListRequests(_ context.Context, f generic.RequestFilter) ([]generic.Request, error) {
	return v.s.listRequests(f), nil
}
func (v *txView) SavePilot(_ context.Context, p generic.Pilot) error {
	v.s.pilots[p.ID] = p
	return nil
}
func (v *txView) GetPilot(_ context.Context, id generic.PilotID) (generic.Pilot, error) {
	return v.s.getPilot(id)
}
func (v *txView) ListPilots(_ context.Context, rank generic.Rank) ([]generic.Pilot, error) {
	return v.s.listPilots(rank), nil
}
func (v *txView) CrewSize(_ context.Context, rank generic.Rank, _ generic.DateRange) (int, error) {
	return v.s.crewSize(rank), nil
}
func (v *txView) PeriodStatus(_ context.Context, code string) (generic.PeriodStatus, bool, error) {
	s, ok := v.s.periods[code]
	if !ok {
		return generic.PeriodOpen, false, nil
	}
	return s, true, nil
}
func (v *txView) SetPeriodStatus(_ context.Context, code string, status generic.PeriodStatus) error {
	v.s.periods[code] = status
	return nil
}
func (v *txView) FiredMilestones(_ context.Context, code string) (map[int]time.Time, error) {
	return v.s.firedMilestones(code), nil
}
func (v *txView) ClaimMilestone(_ context.Context, code string, milestone int, at time.Time) (bool, error) {
	return v.s.claimMilestone(code, milestone, at), nil
}
func (v *txView) ReleaseMilestone(_ context.Context, code string, milestone int) error {
	delete(v.s.fired[code], milestone)
	return nil
}
func (v *txView) LogDelivery(_ context.Context, rec generic.DeliveryRecord) error {
	v.s.deliveries = append(v.s.deliveries, rec)
	return nil
}
func (v *txView) ListDeliveries(_ context.Context, code string, limit int) ([]generic.DeliveryRecord, error) {
	return v.s.listDeliveries(code, limit), nil
}

// =============================================================================
// STATE (unlocked)
// =============================================================================

func (s *state) createRequest(r generic.Request) error {
	if _, exists := s.requests[r.ID]; exists {
		return generic.ErrDuplicateSubmission
	}
	s.requests[r.ID] = cloneRequest(r)
	return nil
}

func (s *state) updateRequest(r generic.Request) error {
	if _, exists := s.requests[r.ID]; !exists {
		return &generic.NotFoundError{Kind: "request", Key: string(r.ID)}
	}
	s.requests[r.ID] = cloneRequest(r)
	return nil
}

func (s *state) getRequest(id generic.RequestID) (generic.Request, error) {
	r, ok := s.requests[id]
	if !ok {
		return generic.Request{}, &generic.NotFoundError{Kind: "request", Key: string(id)}
	}
	return cloneRequest(r), nil
}

func (s *state) listRequests(f generic.RequestFilter) []generic.Request {
	var out []generic.Request
	for _, r := range s.requests {
		if f.Matches(r) {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) getPilot(id generic.PilotID) (generic.Pilot, error) {
	p, ok := s.pilots[id]
	if !ok {
		return generic.Pilot{}, &generic.NotFoundError{Kind: "pilot", Key: string(id)}
	}
	return p, nil
}

func (s *state) listPilots(rank generic.Rank) []generic.Pilot {
	var out []generic.Pilot
	for _, p := range s.pilots {
		if rank == "" || p.Rank == rank {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seniority != out[j].Seniority {
			return out[i].Seniority < out[j].Seniority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) crewSize(rank generic.Rank) int {
	n := 0
	for _, p := range s.pilots {
		if p.Active && p.Rank == rank {
			n++
		}
	}
	return n
}

func (s *state) firedMilestones(code string) map[int]time.Time {
	out := make(map[int]time.Time, len(s.fired[code]))
	for m, at := range s.fired[code] {
		out[m] = at
	}
	return out
}

func (s *state) claimMilestone(code string, milestone int, at time.Time) bool {
	if s.fired[code] == nil {
		s.fired[code] = make(map[int]time.Time)
	}
	if _, done := s.fired[code][milestone]; done {
		return false
	}
	s.fired[code][milestone] = at
	return true
}

func (s *state) listDeliveries(code string, limit int) []generic.DeliveryRecord {
	var out []generic.DeliveryRecord
	for i := len(s.deliveries) - 1; i >= 0; i-- {
		rec := s.deliveries[i]
		if code != "" && rec.PeriodCode != code {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *state) clone() state {
	c := state{
		requests:   make(map[generic.RequestID]generic.Request, len(s.requests)),
		pilots:     make(map[generic.PilotID]generic.Pilot, len(s.pilots)),
		periods:    make(map[string]generic.PeriodStatus, len(s.periods)),
		fired:      make(map[string]map[int]time.Time, len(s.fired)),
		deliveries: append([]generic.DeliveryRecord(nil), s.deliveries...),
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.pilots {
		c.pilots[k] = v
	}
	for k, v := range s.periods {
		c.periods[k] = v
	}
	for code, ms := range s.fired {
		c.fired[code] = make(map[int]time.Time, len(ms))
		for m, at := range ms {
			c.fired[code][m] = at
		}
	}
	return c
}

func cloneRequest(r generic.Request) generic.Request {
	r.Conflicts = append([]generic.Conflict(nil), r.Conflicts...)
	return r
}

var _ generic.TxStore = (*Store)(nil)
var _ generic.Store = (*txView)(nil)
