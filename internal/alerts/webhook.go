package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/telemetry"
)

// WebhookNotifier POSTs alert transitions to an operator-configured URL,
// attaching a runbook link when a base URL is configured.
type WebhookNotifier struct {
	url     string
	runbook string
	client  *http.Client
	sink    telemetry.Sink
}

// NewWebhookNotifier builds a notifier; url must be non-empty.
func NewWebhookNotifier(url, runbookBase string, sink telemetry.Sink) *WebhookNotifier {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &WebhookNotifier{
		url:     url,
		runbook: runbookBase,
		client:  &http.Client{Timeout: 10 * time.Second},
		sink:    sink,
	}
}

type webhookPayload struct {
	AlertKey    string    `json:"alertKey"`
	Status      string    `json:"status"`
	Value       float64   `json:"value"`
	Description string    `json:"description"`
	RunbookURL  string    `json:"runbookUrl,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notify delivers one transition. Failures are logged and dropped; alerting
// must never take the realtime loop down with it.
func (n *WebhookNotifier) Notify(ctx context.Context, rule Rule, state *models.AlertState, status string) {
	payload := webhookPayload{
		AlertKey:    rule.Key,
		Status:      status,
		Value:       state.LastValue,
		Description: rule.Description,
		Timestamp:   time.Now(),
	}
	if n.runbook != "" {
		payload.RunbookURL = n.runbook + "/" + rule.Key
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.sink.Log(logrus.WarnLevel, "alert webhook delivery failed", telemetry.Fields{
			"alertKey": rule.Key, "error": err.Error(),
		})
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.sink.Log(logrus.WarnLevel, "alert webhook rejected", telemetry.Fields{
			"alertKey": rule.Key, "status": resp.StatusCode,
		})
	}
}
