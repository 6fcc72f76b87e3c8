/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP API, kept apart from the domain types so field
  names and date formats stay stable when the model moves.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers around several DTOs

DATES:
  Calendar dates are "YYYY-MM-DD"; instants are RFC 3339.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/request.go: RequestJSON, the submit/check body
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/crew-roster/conflict"
	"github.com/warp/crew-roster/factory"
	"github.com/warp/crew-roster/generic"
	"github.com/warp/crew-roster/requests"
)

// =============================================================================
// PERIODS
// =============================================================================

type PeriodDTO struct {
	Code      string `json:"code"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Deadline  string `json:"deadline"`
	Status    string `json:"status"`
}

type SetPeriodStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=OPEN LOCKED PUBLISHED ARCHIVED"`
}

// =============================================================================
// PILOTS
// =============================================================================

type PilotDTO struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Rank      string `json:"rank" validate:"required,oneof=CAPTAIN FIRST_OFFICER"`
	Seniority int    `json:"seniority" validate:"min=1"`
	Active    *bool  `json:"active,omitempty"`
}

// =============================================================================
// REQUESTS
// =============================================================================

type ConflictDTO struct {
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	RelatedID string `json:"related_id,omitempty"`
	Date      string `json:"date,omitempty"`
	Blocking  bool   `json:"blocking,omitempty"`
}

type RequestDTO struct {
	ID            string          `json:"id"`
	PilotID       string          `json:"pilot_id"`
	Rank          string          `json:"rank"`
	Seniority     int             `json:"seniority"`
	Category      string          `json:"category"`
	Details       json.RawMessage `json:"details,omitempty"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	Days          int             `json:"days"`
	PeriodCode    string          `json:"period_code"`
	Status        string          `json:"status"`
	PriorityScore int             `json:"priority_score"`
	Conflicts     []ConflictDTO   `json:"conflicts"`
	DecidedBy     string          `json:"decided_by,omitempty"`
	DecidedAt     string          `json:"decided_at,omitempty"`
	DenialReason  string          `json:"denial_reason,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

type CrewImpactDTO struct {
	Rank         string `json:"rank"`
	CrewSize     int    `json:"crew_size"`
	Minimum      int    `json:"minimum"`
	PeakAway     int    `json:"peak_away"`
	MinAvailable int    `json:"min_available"`
	WorstDate    string `json:"worst_date,omitempty"`
	DaysBelow    int    `json:"days_below"`
	Checked      bool   `json:"checked"`
}

// AssessmentDTO answers both /check and submit.
type AssessmentDTO struct {
	Request       RequestDTO    `json:"request"`
	Period        PeriodDTO     `json:"period"`
	Conflicts     []ConflictDTO `json:"conflicts"`
	CrewImpact    CrewImpactDTO `json:"crew_impact"`
	ApprovedDays  int           `json:"approved_days"`
	PriorityScore int           `json:"priority_score"`
	PriorityRank  int           `json:"priority_rank"`
	CohortSize    int           `json:"cohort_size"`
	CanApprove    bool          `json:"can_approve"`
	Degraded      bool          `json:"degraded,omitempty"`
}

type DecisionRequest struct {
	DecidedBy string `json:"decided_by" validate:"required"`
	Reason    string `json:"reason,omitempty"`
}

type QueueItemDTO struct {
	Position     int        `json:"position"`
	Score        int        `json:"score"`
	ApprovedDays int        `json:"approved_days"`
	CanApprove   bool       `json:"can_approve"`
	Degraded     bool       `json:"degraded,omitempty"`
	Request      RequestDTO `json:"request"`
}

type QueueCohortDTO struct {
	Rank  string         `json:"rank"`
	Items []QueueItemDTO `json:"items"`
}

// =============================================================================
// ALERTS
// =============================================================================

type ScanRequest struct {
	Today string `json:"today,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type DeliveryDTO struct {
	ID          string   `json:"id"`
	PeriodCode  string   `json:"period_code"`
	Milestone   int      `json:"milestone"`
	DaysUntil   int      `json:"days_until"`
	Outcome     string   `json:"outcome"`
	Detail      string   `json:"detail,omitempty"`
	Recipients  []string `json:"recipients"`
	AttemptedAt string   `json:"attempted_at"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ScenarioLoadedResponse struct {
	Scenario ScenarioDTO `json:"scenario"`
	Pilots   int         `json:"pilots"`
	Requests int         `json:"requests"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPeriodDTO(p generic.RosterPeriod) PeriodDTO {
	status := p.Status
	if status == "" {
		status = generic.PeriodOpen
	}
	return PeriodDTO{
		Code:      p.Code,
		StartDate: p.Start.String(),
		EndDate:   p.End.String(),
		Deadline:  p.Deadline.String(),
		Status:    string(status),
	}
}

func toPilotDTO(p generic.Pilot) PilotDTO {
	active := p.Active
	return PilotDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		Email:     p.Email,
		Rank:      string(p.Rank),
		Seniority: p.Seniority,
		Active:    &active,
	}
}

func toConflictDTOs(cs []generic.Conflict) []ConflictDTO {
	out := make([]ConflictDTO, 0, len(cs))
	for _, c := range cs {
		dto := ConflictDTO{
			Type:      string(c.Type),
			Severity:  string(c.Severity),
			Message:   c.Message,
			RelatedID: string(c.RelatedID),
			Blocking:  c.Blocking,
		}
		if c.Date != nil {
			dto.Date = c.Date.String()
		}
		out = append(out, dto)
	}
	return out
}

func toRequestDTO(r generic.Request) RequestDTO {
	dto := RequestDTO{
		ID:            string(r.ID),
		PilotID:       string(r.PilotID),
		Rank:          string(r.Rank),
		Seniority:     r.Seniority,
		Category:      string(r.Category()),
		StartDate:     r.Start.String(),
		EndDate:       r.End.String(),
		Days:          r.DaysCount(),
		PeriodCode:    r.PeriodCode,
		Status:        string(r.Status),
		PriorityScore: r.PriorityScore,
		Conflicts:     toConflictDTOs(r.Conflicts),
		DecidedBy:     r.DecidedBy,
		DenialReason:  r.DenialReason,
	}
	if raw, err := factory.EncodeDetails(r.Details); err == nil {
		dto.Details = raw
	}
	if r.DecidedAt != nil {
		dto.DecidedAt = r.DecidedAt.Format(time.RFC3339)
	}
	if !r.CreatedAt.IsZero() {
		dto.CreatedAt = r.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toCrewImpactDTO(c conflict.CrewImpact) CrewImpactDTO {
	dto := CrewImpactDTO{
		Rank:         string(c.Rank),
		CrewSize:     c.CrewSize,
		Minimum:      c.Minimum,
		PeakAway:     c.PeakAway,
		MinAvailable: c.MinAvailable,
		DaysBelow:    c.DaysBelow,
		Checked:      c.Checked,
	}
	if c.WorstDate != nil {
		dto.WorstDate = c.WorstDate.String()
	}
	return dto
}

func toAssessmentDTO(a requests.Assessment) AssessmentDTO {
	return AssessmentDTO{
		Request:       toRequestDTO(a.Request),
		Period:        toPeriodDTO(a.Period),
		Conflicts:     toConflictDTOs(a.Conflicts),
		CrewImpact:    toCrewImpactDTO(a.CrewImpact),
		ApprovedDays:  a.ApprovedDays,
		PriorityScore: a.PriorityScore,
		PriorityRank:  a.PriorityRank,
		CohortSize:    a.CohortSize,
		CanApprove:    a.CanApprove,
		Degraded:      a.Degraded,
	}
}

func toQueueDTOs(cohorts []requests.QueueCohort) []QueueCohortDTO {
	out := make([]QueueCohortDTO, 0, len(cohorts))
	for _, c := range cohorts {
		items := make([]QueueItemDTO, 0, len(c.Items))
		for _, it := range c.Items {
			req := it.Request
			req.Conflicts = it.Conflicts
			req.PriorityScore = it.Score
			items = append(items, QueueItemDTO{
				Position:     it.Position,
				Score:        it.Score,
				ApprovedDays: it.ApprovedDays,
				CanApprove:   it.CanApprove,
				Degraded:     it.Degraded,
				Request:      toRequestDTO(req),
			})
		}
		out = append(out, QueueCohortDTO{Rank: string(c.Rank), Items: items})
	}
	return out
}

func toDeliveryDTO(d generic.DeliveryRecord) DeliveryDTO {
	recipients := d.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	return DeliveryDTO{
		ID:          d.ID,
		PeriodCode:  d.PeriodCode,
		Milestone:   d.Milestone,
		DaysUntil:   d.DaysUntil,
		Outcome:     string(d.Outcome),
		Detail:      d.Detail,
		Recipients:  recipients,
		AttemptedAt: d.AttemptedAt.UTC().Format(time.RFC3339),
	}
}
