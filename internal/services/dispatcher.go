package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lendly/backend/internal/events"
)

const dispatchTimeout = 5 * time.Second

// Dispatcher forwards events to the notification service webhook. With no
// URL configured it only logs, which is the development default.
type Dispatcher struct {
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewDispatcher returns a Dispatcher with the 5-second HTTP client.
func NewDispatcher(url string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		URL:        url,
		HTTPClient: &http.Client{Timeout: dispatchTimeout},
		Logger:     logger,
	}
}

// Deliver posts one event. The event id is sent as Idempotency-Key so the
// receiver can drop redeliveries. Any non-2xx response is an error and the
// job is retried.
func (d *Dispatcher) Deliver(ctx context.Context, ev events.Event) error {
	if d.URL == "" {
		d.Logger.Info("notification", "event_id", ev.ID, "type", ev.Type, "user_id", ev.UserID)
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", ev.ID.String())

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		d.Logger.Warn("notification delivery failed", "event_id", ev.ID, "type", ev.Type, "error", err)
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.Logger.Warn("notification service returned non-2xx", "event_id", ev.ID, "type", ev.Type, "status", resp.StatusCode)
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}
	return nil
}
