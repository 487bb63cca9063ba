package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/clipcast/engine/internal/domain"
)

// HTTPCallbackObserver forwards ledger events and component health changes
// to an operator-configured webhook URL as JSON POSTs. Tick started/
// completed/failed notifications are intentionally not forwarded here —
// they fire far more often than an operator webhook should be expected to
// absorb; MetricsCollector is the place to look for tick-level aggregates.
type HTTPCallbackObserver struct {
	callbackURL string
	client      *http.Client
	headers     map[string]string
	timeout     time.Duration

	mu      sync.RWMutex
	enabled bool
}

type HTTPCallbackObserverConfig struct {
	CallbackURL string
	Timeout     time.Duration
	Headers     map[string]string
	Client      *http.Client
}

func NewHTTPCallbackObserver(config HTTPCallbackObserverConfig) (*HTTPCallbackObserver, error) {
	if config.CallbackURL == "" {
		return nil, fmt.Errorf("callback URL is required")
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	headers := make(map[string]string)
	for k, v := range config.Headers {
		headers[k] = v
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = "application/json"
	}

	return &HTTPCallbackObserver{
		callbackURL: config.CallbackURL,
		client:      client,
		headers:     headers,
		timeout:     timeout,
		enabled:     true,
	}, nil
}

var _ ComponentObserver = (*HTTPCallbackObserver)(nil)

func (o *HTTPCallbackObserver) SetEnabled(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enabled = enabled
}

func (o *HTTPCallbackObserver) IsEnabled() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.enabled
}

func (o *HTTPCallbackObserver) OnTickStarted(component string)                          {}
func (o *HTTPCallbackObserver) OnTickCompleted(component string, duration time.Duration) {}
func (o *HTTPCallbackObserver) OnTickFailed(component string, err error, duration time.Duration) {
}

type ledgerEventPayload struct {
	Type       string         `json:"type"`
	EventType  string         `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Severity   string         `json:"severity"`
	Payload    map[string]any `json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (o *HTTPCallbackObserver) OnLedgerEvent(event domain.LedgerEvent) {
	_ = o.sendEvent(ledgerEventPayload{
		Type:       "ledger_event",
		EventType:  event.EventType,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Severity:   string(event.Severity),
		Payload:    event.Payload,
		CreatedAt:  event.CreatedAt,
	})
}

type healthChangedPayload struct {
	Type      string `json:"type"`
	Component string `json:"component"`
	Status    string `json:"status"`
}

func (o *HTTPCallbackObserver) OnComponentHealthChanged(component string, status domain.ComponentStatus) {
	_ = o.sendEvent(healthChangedPayload{
		Type:      "component_health_changed",
		Component: component,
		Status:    string(status),
	})
}

func (o *HTTPCallbackObserver) sendEvent(payload any) error {
	o.mu.RLock()
	enabled := o.enabled
	url := o.callbackURL
	client := o.client
	headers := make(map[string]string, len(o.headers))
	for k, v := range o.headers {
		headers[k] = v
	}
	o.mu.RUnlock()

	if !enabled {
		return nil
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned non-success status: %d", resp.StatusCode)
	}
	return nil
}
