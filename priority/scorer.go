/*
Package priority scores and ranks competing pilot requests.

PURPOSE:
  Produces a single integer per request that totally orders the approval
  queue. Seniority always dominates; the pilot's approved leave days for
  the year only break ties between equal seniority numbers.

FORMULA:
  score = (K - seniority) * W_seniority + (D - approvedDays) * W_days

DOMINANCE INVARIANT:
  D * W_days < W_seniority

  The widest possible spread of the days term must be smaller than one
  seniority step, otherwise a junior pilot with no leave could outrank a
  senior pilot with a full year of it. Weights.Validate enforces this for
  every configured set of weights.

  Defaults: K=100, D=365, W_seniority=10000, W_days=10 (3650 < 10000).
  The often-quoted W_seniority=1000 fails the check (3650 >= 1000) and is
  rejected by Validate.

ORDERING:
  Within a rank cohort: score desc, then pilot ID asc, then request ID asc.
  Captains and First Officers are ranked independently.

SEE ALSO:
  - requests/service.go: Recomputes scores on every queue read
*/
package priority

import (
	"fmt"
	"sort"

	"github.com/warp/crew-roster/generic"
)

// =============================================================================
// WEIGHTS
// =============================================================================

type Weights struct {
	K         int `yaml:"k" validate:"gt=0"`
	D         int `yaml:"d" validate:"gt=0"`
	Seniority int `yaml:"seniority" validate:"gt=0"`
	Days      int `yaml:"days" validate:"gt=0"`
}

func DefaultWeights() Weights {
	return Weights{K: 100, D: 365, Seniority: 10000, Days: 10}
}

// Validate checks positivity and the dominance invariant.
func (w Weights) Validate() error {
	if w.K <= 0 || w.D <= 0 || w.Seniority <= 0 || w.Days <= 0 {
		return &generic.ValidationError{Field: "priority", Reason: "all weights must be positive"}
	}
	if w.D*w.Days >= w.Seniority {
		return &generic.ValidationError{
			Field:  "priority",
			Reason: fmt.Sprintf("seniority must dominate: D*W_days (%d) must be < W_seniority (%d)", w.D*w.Days, w.Seniority),
		}
	}
	return nil
}

// =============================================================================
// SCORER
// =============================================================================

// Scorer is a pure function of its weights.
type Scorer struct {
	w Weights
}

func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{w: w}, nil
}

// Default returns a scorer with DefaultWeights.
func Default() *Scorer {
	return &Scorer{w: DefaultWeights()}
}

func (s *Scorer) Weights() Weights { return s.w }

// Score computes the priority score. approvedDays is clamped to [0, D];
// the dominance guarantee only covers that range.
func (s *Scorer) Score(seniority, approvedDays int) int {
	if approvedDays < 0 {
		approvedDays = 0
	}
	if approvedDays > s.w.D {
		approvedDays = s.w.D
	}
	return (s.w.K-seniority)*s.w.Seniority + (s.w.D-approvedDays)*s.w.Days
}

// ApprovedDays sums inclusive spans of the pilot's APPROVED requests whose
// start date falls in year.
func ApprovedDays(requests []generic.Request, pilot generic.PilotID, year int) int {
	total := 0
	for _, r := range requests {
		if r.PilotID != pilot || r.Status != generic.StatusApproved {
			continue
		}
		if r.Start.Year() != year {
			continue
		}
		total += r.DaysCount()
	}
	return total
}

// =============================================================================
// RANKING
// =============================================================================

// Entry is one request to rank with its pilot's approved-day total.
type Entry struct {
	Request      generic.Request
	ApprovedDays int
}

// Ranked is a request with its score and 1-based cohort position.
type Ranked struct {
	Request      generic.Request
	ApprovedDays int
	Score        int
	Position     int
}

// Cohort is the ordered queue for one rank.
type Cohort struct {
	Rank    generic.Rank
	Entries []Ranked
}

// Position returns the 1-based position of the request, or 0.
func (c Cohort) Position(id generic.RequestID) int {
	for _, e := range c.Entries {
		if e.Request.ID == id {
			return e.Position
		}
	}
	return 0
}

// Rank scores every entry and orders each rank cohort independently.
// Cohorts are returned in generic.Ranks order; empty cohorts are included.
func (s *Scorer) Rank(entries []Entry) []Cohort {
	byRank := make(map[generic.Rank][]Ranked, len(generic.Ranks))
	for _, e := range entries {
		byRank[e.Request.Rank] = append(byRank[e.Request.Rank], Ranked{
			Request:      e.Request,
			ApprovedDays: e.ApprovedDays,
			Score:        s.Score(e.Request.Seniority, e.ApprovedDays),
		})
	}

	cohorts := make([]Cohort, 0, len(generic.Ranks))
	for _, rank := range generic.Ranks {
		ranked := byRank[rank]
		sort.SliceStable(ranked, func(i, j int) bool {
			a, b := ranked[i], ranked[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if a.Request.PilotID != b.Request.PilotID {
				return a.Request.PilotID < b.Request.PilotID
			}
			return a.Request.ID < b.Request.ID
		})
		for i := range ranked {
			ranked[i].Position = i + 1
		}
		cohorts = append(cohorts, Cohort{Rank: rank, Entries: ranked})
	}
	return cohorts
}

// CohortFor picks the cohort for rank out of a Rank result.
func CohortFor(cohorts []Cohort, rank generic.Rank) Cohort {
	for _, c := range cohorts {
		if c.Rank == rank {
			return c
		}
	}
	return Cohort{Rank: rank}
}
