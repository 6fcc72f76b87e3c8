/*
Package factory provides JSON to Go request conversion.

PURPOSE:
  Converts JSON request payloads into generic.Candidate values and
  encodes/decodes the category-specific details sum type. The API and the
  SQL stores both go through here, so a details payload is
  parsed the same way whether it arrives over HTTP or comes back from a
  database column.

JSON SCHEMA:
  {
    "pilot_id": "P-001",
    "category": "LEAVE",
    "start_date": "2026-01-10",
    "end_date": "2026-01-15",
    "details": {"leave_type": "ANNUAL", "reason": "family"}
  }

  details by category:
    LEAVE      {"leave_type", "reason"}
    FLIGHT     {"flight_numbers": [...], "destination", "reason"}
    LEAVE_BID  {"preference", "reason"}

KEY FEATURES:
  - Struct-tag validation (go-playground/validator) with JSON field names
  - Unknown details fields are rejected
  - Missing details decode to the empty variant for the category

USAGE:
  f := factory.NewRequestFactory()
  candidate, err := f.ParseRequest(body)

SEE ALSO:
  - generic/request.go: Details variants
  - api/handlers.go: HTTP entry point
*/
package factory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/warp/crew-roster/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RequestJSON is the JSON representation of a submitted request.
type RequestJSON struct {
	PilotID   string          `json:"pilot_id" validate:"required"`
	Category  string          `json:"category" validate:"required,oneof=LEAVE FLIGHT LEAVE_BID"`
	StartDate string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string          `json:"end_date" validate:"required,datetime=2006-01-02"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// =============================================================================
// REQUEST FACTORY
// =============================================================================

// RequestFactory converts JSON requests to candidates.
type RequestFactory struct {
	validate *validator.Validate
}

func NewRequestFactory() *RequestFactory {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestFactory{validate: v}
}

// ParseRequest parses a JSON document into a candidate.
func (f *RequestFactory) ParseRequest(data []byte) (generic.Candidate, error) {
	var rj RequestJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return generic.Candidate{}, &generic.ValidationError{Reason: fmt.Sprintf("malformed request JSON: %v", err)}
	}
	return f.FromJSON(rj)
}

// FromJSON validates rj and builds the candidate.
func (f *RequestFactory) FromJSON(rj RequestJSON) (generic.Candidate, error) {
	if err := f.validate.Struct(rj); err != nil {
		return generic.Candidate{}, translate(err)
	}

	start, err := generic.ParseDate(rj.StartDate)
	if err != nil {
		return generic.Candidate{}, &generic.ValidationError{Field: "start_date", Reason: err.Error()}
	}
	end, err := generic.ParseDate(rj.EndDate)
	if err != nil {
		return generic.Candidate{}, &generic.ValidationError{Field: "end_date", Reason: err.Error()}
	}
	if end.Before(start) {
		return generic.Candidate{}, &generic.ValidationError{Field: "end_date", Reason: "end date before start date"}
	}
	if span := (generic.DateRange{Start: start, End: end}).DayCount(); span > generic.MaxRequestDays {
		return generic.Candidate{}, &generic.ValidationError{Field: "end_date", Reason: fmt.Sprintf("span exceeds %d days", generic.MaxRequestDays)}
	}

	details, err := DecodeDetails(generic.Category(rj.Category), rj.Details)
	if err != nil {
		return generic.Candidate{}, err
	}

	return generic.Candidate{
		PilotID: generic.PilotID(strings.TrimSpace(rj.PilotID)),
		Details: details,
		Start:   start,
		End:     end,
	}, nil
}

// ToJSON is the inverse of FromJSON.
func (f *RequestFactory) ToJSON(c generic.Candidate) (RequestJSON, error) {
	raw, err := EncodeDetails(c.Details)
	if err != nil {
		return RequestJSON{}, err
	}
	return RequestJSON{
		PilotID:   string(c.PilotID),
		Category:  string(c.Category()),
		StartDate: c.Start.String(),
		EndDate:   c.End.String(),
		Details:   raw,
	}, nil
}

// =============================================================================
// DETAILS CODEC
// =============================================================================

// DecodeDetails decodes raw into the variant for category. Empty input
// yields the zero variant.
func DecodeDetails(category generic.Category, raw []byte) (generic.Details, error) {
	raw = bytes.TrimSpace(raw)
	empty := len(raw) == 0 || bytes.Equal(raw, []byte("null"))

	switch category {
	case generic.CategoryLeave:
		var d generic.LeaveDetails
		if !empty {
			if err := strictDecode(raw, &d); err != nil {
				return nil, err
			}
		}
		return d, nil
	case generic.CategoryFlight:
		var d generic.FlightDetails
		if !empty {
			if err := strictDecode(raw, &d); err != nil {
				return nil, err
			}
		}
		return d, nil
	case generic.CategoryLeaveBid:
		var d generic.LeaveBidDetails
		if !empty {
			if err := strictDecode(raw, &d); err != nil {
				return nil, err
			}
		}
		if d.Preference < 0 {
			return nil, &generic.ValidationError{Field: "details.preference", Reason: "must not be negative"}
		}
		return d, nil
	}
	return nil, &generic.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", category)}
}

// EncodeDetails marshals the variant. nil encodes as "{}".
func EncodeDetails(d generic.Details) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func strictDecode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &generic.ValidationError{Field: "details", Reason: err.Error()}
	}
	return nil
}

// translate turns validator errors into a ValidationError for the first
// failing field.
func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &generic.ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "required"
	case "oneof":
		reason = fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "datetime":
		reason = fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", fe.Value())
	default:
		reason = fmt.Sprintf("failed %s validation", fe.Tag())
	}
	return &generic.ValidationError{Field: fe.Field(), Reason: reason}
}
