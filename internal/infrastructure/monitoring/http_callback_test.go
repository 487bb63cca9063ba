package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipcast/engine/internal/domain"
)

func TestNewHTTPCallbackObserver_RequiresURL(t *testing.T) {
	_, err := NewHTTPCallbackObserver(HTTPCallbackObserverConfig{})
	assert.Error(t, err)
}

func TestHTTPCallbackObserver_PostsLedgerEventJSON(t *testing.T) {
	var mu sync.Mutex
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	obs, err := NewHTTPCallbackObserver(HTTPCallbackObserverConfig{CallbackURL: server.URL, Timeout: time.Second})
	require.NoError(t, err)

	obs.OnLedgerEvent(domain.NewLedgerEvent(domain.EventPublishSuccessful, "clip", "clip-1", domain.SeverityInfo, map[string]any{"platform": "tiktok"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "ledger_event", received["type"])
	assert.Equal(t, domain.EventPublishSuccessful, received["event_type"])
	assert.Equal(t, "clip-1", received["entity_id"])
}

func TestHTTPCallbackObserver_DisabledSkipsDelivery(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	obs, err := NewHTTPCallbackObserver(HTTPCallbackObserverConfig{CallbackURL: server.URL})
	require.NoError(t, err)
	obs.SetEnabled(false)

	obs.OnComponentHealthChanged("scheduler", domain.ComponentOffline)
	assert.False(t, called)
}

func TestHTTPCallbackObserver_TickNotificationsAreNoOps(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	obs, err := NewHTTPCallbackObserver(HTTPCallbackObserverConfig{CallbackURL: server.URL})
	require.NoError(t, err)

	obs.OnTickStarted("scheduler")
	obs.OnTickCompleted("scheduler", time.Millisecond)
	obs.OnTickFailed("scheduler", assertableErr{}, time.Millisecond)

	assert.False(t, called)
}
