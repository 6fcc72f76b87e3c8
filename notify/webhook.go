package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/warp/crew-roster/generic"
)

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL        string
	Token      string // sent as a bearer token when set
	Timeout    time.Duration
	RetryCount int
}

// Webhook POSTs alerts as JSON.
type Webhook struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// webhookPayload is the JSON body sent to the endpoint.
type webhookPayload struct {
	PeriodCode  string   `json:"period_code"`
	PeriodStart string   `json:"period_start"`
	PeriodEnd   string   `json:"period_end"`
	Deadline    string   `json:"deadline"`
	Milestone   int      `json:"milestone"`
	DaysUntil   int      `json:"days_until"`
	Counts      Counts   `json:"counts"`
	Recipients  []string `json:"recipients"`
	Subject     string   `json:"subject"`
	Message     string   `json:"message"`
}

func NewWebhook(cfg WebhookConfig, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &Webhook{client: client, url: cfg.URL, logger: logger}
}

func (w *Webhook) Send(ctx context.Context, alert Alert, recipients []string) (Result, error) {
	if recipients == nil {
		recipients = []string{}
	}
	payload := webhookPayload{
		PeriodCode:  alert.Period.Code,
		PeriodStart: alert.Period.Start.String(),
		PeriodEnd:   alert.Period.End.String(),
		Deadline:    alert.Period.Deadline.String(),
		Milestone:   alert.Milestone,
		DaysUntil:   alert.DaysUntil,
		Counts:      alert.Counts,
		Recipients:  recipients,
		Subject:     alert.Subject(),
		Message:     alert.Body(),
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(w.url)
	if err != nil {
		w.logger.Warn("alert webhook call failed",
			zap.String("period", alert.Period.Code),
			zap.Int("milestone", alert.Milestone),
			zap.Error(err),
		)
		return failed("webhook unreachable", err)
	}

	switch {
	case resp.StatusCode() == http.StatusAccepted:
		return Result{Outcome: generic.DeliveryAccepted, Detail: resp.Status()}, nil
	case resp.IsSuccess():
		return Result{Outcome: generic.DeliveryDelivered, Detail: resp.Status()}, nil
	}

	w.logger.Warn("alert webhook rejected",
		zap.String("period", alert.Period.Code),
		zap.Int("milestone", alert.Milestone),
		zap.Int("status_code", resp.StatusCode()),
	)
	return failed(fmt.Sprintf("webhook returned %d", resp.StatusCode()), nil)
}

var _ Notifier = (*Webhook)(nil)
