package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LeventeLantos/safety-checkin/internal/model"
)

// WebhookDispatcher delivers released check-ins to an external webhook.
// The sink is at-least-once: retries reuse the same idempotency key (the
// record id) so the collaborator can deduplicate.
type WebhookDispatcher struct {
	url    string
	client *http.Client
}

func NewWebhookDispatcher(url string) *WebhookDispatcher {
	return &WebhookDispatcher{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type releaseRequest struct {
	CheckInID   string            `json:"checkinId"`
	Message     string            `json:"message"`
	Recipients  []model.Recipient `json:"recipients"`
	Attachments []model.FileRef   `json:"attachments,omitempty"`
}

type releaseResponse struct {
	Message    string `json:"message"`
	DeliveryID string `json:"deliveryId"`
}

func (d *WebhookDispatcher) Send(ctx context.Context, rec *model.CheckInRecord) (string, error) {
	reqBody, err := json.Marshal(releaseRequest{
		CheckInID:   rec.ID,
		Message:     rec.Message,
		Recipients:  rec.Recipients,
		Attachments: rec.Attachments,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", rec.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var rr releaseResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if rr.DeliveryID == "" {
		return "", fmt.Errorf("missing deliveryId in response body=%q", string(body))
	}

	return rr.DeliveryID, nil
}
