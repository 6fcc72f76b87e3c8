/*
handlers.go - HTTP API handlers for the crew roster engine

PURPOSE:
  Exposes request assessment, the approval workflow, roster periods, the
  crew roster and deadline alerts over REST. Handlers parse and validate
  input, call the request service or alert engine, and serialize DTOs.

ENDPOINTS:
  Periods:
    GET    /api/periods?from=&to=            Periods intersecting a range
    GET    /api/periods/current?date=        Period containing a date
    GET    /api/periods/{seq}/{year}         One period, e.g. /api/periods/RP01/2026
    POST   /api/periods/{seq}/{year}/status  Move a period forward

  Requests:
    POST   /api/requests/check               Assess without storing
    POST   /api/requests                     Submit
    GET    /api/requests?pilot_id=&status=&period=
    GET    /api/requests/queue?rank=&period= Ranked pending queue
    GET    /api/requests/{id}
    POST   /api/requests/{id}/approve
    POST   /api/requests/{id}/deny

  Pilots:
    GET    /api/pilots?rank=
    POST   /api/pilots                       Upsert

  Admin:
    POST   /api/admin/alerts/scan            Run a deadline alert scan
    GET    /api/admin/alerts/deliveries      Delivery log, newest first

ERROR HANDLING:
  - 400: Validation errors, malformed input
  - 404: Unknown request, pilot or period
  - 409: Duplicate submission, closed period, blocked approval,
         invalid status transition
  - 429: Rate limited (ratelimit.go)
  - 500: Everything else

SECURITY NOTE:
  No authentication. decided_by is taken from the request body.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/crew-roster/alerts"
	"github.com/warp/crew-roster/factory"
	"github.com/warp/crew-roster/generic"
	"github.com/warp/crew-roster/requests"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *requests.Service
	Store     generic.TxStore
	Alerts    *alerts.Engine
	Scheduler *alerts.Scheduler // optional; records scans made without a date
	Factory   *factory.RequestFactory

	logger *zap.Logger
	today  func() generic.TimePoint

	mu              sync.RWMutex
	currentScenario string
}

type HandlerOption func(*Handler)

func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

func WithScheduler(s *alerts.Scheduler) HandlerOption {
	return func(h *Handler) { h.Scheduler = s }
}

// WithToday overrides the date used for defaults and scenarios.
func WithToday(today func() generic.TimePoint) HandlerOption {
	return func(h *Handler) { h.today = today }
}

// NewHandler creates a new handler.
func NewHandler(svc *requests.Service, store generic.TxStore, engine *alerts.Engine, opts ...HandlerOption) *Handler {
	h := &Handler{
		Service: svc,
		Store:   store,
		Alerts:  engine,
		Factory: factory.NewRequestFactory(),
		logger:  zap.NewNop(),
		today:   generic.Today,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// defaultPeriodSpan is how far ahead ListPeriods looks without ?to=.
const defaultPeriodSpan = 6 * 28

// ListPeriods returns periods intersecting [from, to].
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	from, err := dateParam(r, "from", h.today())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	to, err := dateParam(r, "to", from.AddDays(defaultPeriodSpan))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	periods, err := h.Service.ListPeriods(r.Context(), from, to)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CurrentPeriod returns the period containing ?date= (default today).
func (h *Handler) CurrentPeriod(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date", h.today())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	p, err := h.Service.Period(r.Context(), date)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

// GetPeriod returns one period by code.
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.PeriodByCode(r.Context(), periodCode(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

// SetPeriodStatus moves a period through OPEN -> LOCKED -> PUBLISHED -> ARCHIVED.
func (h *Handler) SetPeriodStatus(w http.ResponseWriter, r *http.Request) {
	var req SetPeriodStatusRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	p, err := h.Service.SetPeriodStatus(r.Context(), periodCode(r), generic.PeriodStatus(req.Status))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

// periodCode rebuilds "RP01/2026" from the two path segments.
func periodCode(r *http.Request) string {
	return chi.URLParam(r, "seq") + "/" + chi.URLParam(r, "year")
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// CheckRequest assesses a candidate without storing it.
func (h *Handler) CheckRequest(w http.ResponseWriter, r *http.Request) {
	c, err := h.readCandidate(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	a, err := h.Service.Check(r.Context(), c)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssessmentDTO(a))
}

// SubmitRequest stores a new PENDING request.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	c, err := h.readCandidate(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	a, err := h.Service.Submit(r.Context(), c)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssessmentDTO(a))
}

// GetRequest returns one stored request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.Get(r.Context(), generic.RequestID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ListRequests filters stored requests by pilot, status and period.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := generic.RequestFilter{
		PilotID:    generic.PilotID(q.Get("pilot_id")),
		PeriodCode: q.Get("period"),
	}
	for _, s := range q["status"] {
		status := generic.Status(strings.ToUpper(s))
		switch status {
		case generic.StatusPending, generic.StatusApproved, generic.StatusDenied:
			f.Statuses = append(f.Statuses, status)
		default:
			h.writeDomainError(w, &generic.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)})
			return
		}
	}

	reqs, err := h.Store.ListRequests(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]RequestDTO, len(reqs))
	for i, req := range reqs {
		dtos[i] = toRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Queue returns the ranked pending queue per rank.
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	f := requests.QueueFilter{PeriodCode: r.URL.Query().Get("period")}
	if raw := r.URL.Query().Get("rank"); raw != "" {
		rank, err := generic.ParseRank(raw)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		f.Rank = rank
	}

	cohorts, err := h.Service.Queue(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueDTOs(cohorts))
}

// ApproveRequest approves a pending request after re-running detection.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	out, err := h.Service.Approve(r.Context(), generic.RequestID(chi.URLParam(r, "id")), req.DecidedBy)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(out))
}

// DenyRequest denies a pending request.
func (h *Handler) DenyRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	out, err := h.Service.Deny(r.Context(), generic.RequestID(chi.URLParam(r, "id")), req.DecidedBy, req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(out))
}

func (h *Handler) readCandidate(r *http.Request) (generic.Candidate, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return generic.Candidate{}, &generic.ValidationError{Reason: "unreadable request body"}
	}
	return h.Factory.ParseRequest(data)
}

// =============================================================================
// PILOT HANDLERS
// =============================================================================

// ListPilots returns the crew roster, optionally for one rank.
func (h *Handler) ListPilots(w http.ResponseWriter, r *http.Request) {
	var rank generic.Rank
	if raw := r.URL.Query().Get("rank"); raw != "" {
		var err error
		if rank, err = generic.ParseRank(raw); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}
	pilots, err := h.Store.ListPilots(r.Context(), rank)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]PilotDTO, len(pilots))
	for i, p := range pilots {
		dtos[i] = toPilotDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertPilot creates or replaces a crew roster entry.
func (h *Handler) UpsertPilot(w http.ResponseWriter, r *http.Request) {
	var req PilotDTO
	if err := decodeBody(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	p := generic.Pilot{
		ID:        generic.PilotID(strings.TrimSpace(req.ID)),
		Name:      req.Name,
		Email:     req.Email,
		Rank:      generic.Rank(req.Rank),
		Seniority: req.Seniority,
		Active:    req.Active == nil || *req.Active,
	}
	if err := h.Store.SavePilot(r.Context(), p); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPilotDTO(p))
}

// =============================================================================
// ALERT HANDLERS
// =============================================================================

// ScanAlerts runs one deadline alert scan. With no date the scheduler's
// scan runs so the result shows up as its last run.
func (h *Handler) ScanAlerts(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}

	var (
		report alerts.ScanReport
		err    error
	)
	switch {
	case req.Today != "":
		var today generic.TimePoint
		if today, err = generic.ParseDate(req.Today); err == nil {
			report, err = h.Alerts.Scan(r.Context(), today)
		}
	case h.Scheduler != nil:
		report, err = h.Scheduler.RunNow(r.Context())
	default:
		report, err = h.Alerts.Scan(r.Context(), h.today())
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// maxDeliveries caps ?limit= on the delivery log.
const maxDeliveries = 500

// ListDeliveries returns the alert delivery log.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeDomainError(w, &generic.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		limit = min(n, maxDeliveries)
	}

	recs, err := h.Store.ListDeliveries(r.Context(), r.URL.Query().Get("period"), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]DeliveryDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toDeliveryDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// writeDomainError maps service errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		ce *generic.ConflictError
		ve *generic.ValidationError
	)
	switch {
	case errors.As(err, &ce):
		writeError(w, http.StatusConflict, err.Error(), "CONFLICT_BLOCKED", toConflictDTOs(ce.Conflicts))
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION", map[string]string{"field": ve.Field})
	case errors.Is(err, generic.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION", nil)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), "NOT_FOUND", nil)
	case errors.Is(err, generic.ErrDuplicateSubmission):
		writeError(w, http.StatusConflict, err.Error(), "DUPLICATE", nil)
	case errors.Is(err, generic.ErrPeriodClosed):
		writeError(w, http.StatusConflict, err.Error(), "PERIOD_CLOSED", nil)
	case errors.Is(err, generic.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_TRANSITION", nil)
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", "INTERNAL", err.Error())
	}
}

// decodeBody decodes JSON into v and runs its validate tags.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &generic.ValidationError{Reason: fmt.Sprintf("invalid request body: %v", err)}
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &generic.ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		return &generic.ValidationError{Reason: err.Error()}
	}
	return nil
}

// dateParam reads a YYYY-MM-DD query parameter, falling back to def.
func dateParam(r *http.Request, name string, def generic.TimePoint) (generic.TimePoint, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	d, err := generic.ParseDate(raw)
	if err != nil {
		return generic.TimePoint{}, &generic.ValidationError{Field: name, Reason: "use YYYY-MM-DD"}
	}
	return d, nil
}
