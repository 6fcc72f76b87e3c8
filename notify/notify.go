/*
Package notify delivers deadline alerts to the people who act on them.

PURPOSE:
  The alert engine decides WHEN a roster period needs attention; a Notifier
  decides HOW that reaches someone. Delivery is a separate step from firing:
  the engine only records a milestone as fired when Send reports DELIVERED
  or ACCEPTED.

IMPLEMENTATIONS:
  Log      writes the alert to the structured log and reports ACCEPTED
  Webhook  POSTs JSON to an HTTP endpoint (resty, with retries)

OUTCOMES:
  DELIVERED  the receiver confirmed (2xx other than 202)
  ACCEPTED   the receiver queued it (202), or it was logged
  FAILED     anything else; Send also returns an error wrapping
             generic.ErrAlertDelivery so callers can retry next scan

SEE ALSO:
  - alerts/engine.go: Milestone scan that calls Send
*/
package notify

//go:generate mockgen -destination=mock_notify/mock_notifier.go -package=mock_notify github.com/warp/crew-roster/notify Notifier

import (
	"context"
	"fmt"

	"github.com/warp/crew-roster/generic"
)

// Counts aggregates the requests of one roster period at alert time.
type Counts struct {
	Submitted int `json:"submitted"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Denied    int `json:"denied"`
}

// Alert is one deadline reminder for one roster period.
type Alert struct {
	Period    generic.RosterPeriod
	Milestone int
	DaysUntil int
	Counts    Counts
}

// Subject is a one-line summary suitable for a mail subject or chat title.
func (a Alert) Subject() string {
	switch a.DaysUntil {
	case 0:
		return fmt.Sprintf("%s: request deadline is today", a.Period.Code)
	case 1:
		return fmt.Sprintf("%s: request deadline tomorrow", a.Period.Code)
	}
	return fmt.Sprintf("%s: request deadline in %d days", a.Period.Code, a.DaysUntil)
}

// Body is the plain text message.
func (a Alert) Body() string {
	return fmt.Sprintf(
		"Roster period %s (%s to %s) closes for requests on %s.\n"+
			"Submitted: %d  Pending: %d  Approved: %d  Denied: %d\n",
		a.Period.Code, a.Period.Start, a.Period.End, a.Period.Deadline,
		a.Counts.Submitted, a.Counts.Pending, a.Counts.Approved, a.Counts.Denied,
	)
}

// Result is what a Notifier reports for one attempt.
type Result struct {
	Outcome generic.DeliveryOutcome
	Detail  string
}

// Notifier sends an alert to recipients.
type Notifier interface {
	Send(ctx context.Context, alert Alert, recipients []string) (Result, error)
}

// failed builds the FAILED result and its matching error.
func failed(detail string, cause error) (Result, error) {
	if cause == nil {
		return Result{Outcome: generic.DeliveryFailed, Detail: detail},
			fmt.Errorf("%w: %s", generic.ErrAlertDelivery, detail)
	}
	return Result{Outcome: generic.DeliveryFailed, Detail: detail},
		fmt.Errorf("%w: %s: %w", generic.ErrAlertDelivery, detail, cause)
}
