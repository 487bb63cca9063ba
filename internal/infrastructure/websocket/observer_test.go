package websocket

import (
	"sync"
	"testing"

	"github.com/clipcast/engine/internal/domain"
	"github.com/clipcast/engine/internal/infrastructure/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster is a mock implementation of the Broadcaster interface
type mockBroadcaster struct {
	mu      sync.Mutex
	events  []*WSEvent
	userIDs []string
	topics  []string
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		events:  make([]*WSEvent, 0),
		userIDs: make([]string, 0),
		topics:  make([]string, 0),
	}
}

func (m *mockBroadcaster) Broadcast(userID, topic string, event *WSEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	m.userIDs = append(m.userIDs, userID)
	m.topics = append(m.topics, topic)
}

func (m *mockBroadcaster) lastEvent() *WSEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockBroadcaster) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestSocketObserver_ImplementsInterface(t *testing.T) {
	var _ monitoring.ComponentObserver = (*SocketObserver)(nil)
}

func TestNewSocketObserver(t *testing.T) {
	broadcaster := newMockBroadcaster()
	observer := NewSocketObserver(broadcaster)

	assert.NotNil(t, observer)
	assert.Equal(t, broadcaster, observer.hub)
}

func TestSocketObserver_OnLedgerEvent_BroadcastsToLedgerTopic(t *testing.T) {
	broadcaster := newMockBroadcaster()
	observer := NewSocketObserver(broadcaster)

	event := domain.NewLedgerEvent("publish.succeeded", "post", "post-123", domain.SeverityInfo, map[string]any{"platform": "tiktok"})
	observer.OnLedgerEvent(event)

	require.Equal(t, 1, broadcaster.eventCount())
	wsEvent := broadcaster.lastEvent()

	assert.Equal(t, EventLedgerAppended, wsEvent.Type)
	assert.Equal(t, "publish.succeeded", wsEvent.EventType)
	assert.Equal(t, "post", wsEvent.EntityType)
	assert.Equal(t, "post-123", wsEvent.EntityID)
	assert.Equal(t, "info", wsEvent.Severity)

	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	assert.Empty(t, broadcaster.userIDs[0])
	assert.Equal(t, TopicLedger, broadcaster.topics[0])
}

func TestSocketObserver_OnComponentHealthChanged_BroadcastsToHealthTopic(t *testing.T) {
	broadcaster := newMockBroadcaster()
	observer := NewSocketObserver(broadcaster)

	observer.OnComponentHealthChanged("publishing_worker", domain.ComponentDegraded)

	require.Equal(t, 1, broadcaster.eventCount())
	wsEvent := broadcaster.lastEvent()

	assert.Equal(t, EventComponentHealth, wsEvent.Type)
	assert.Equal(t, "publishing_worker", wsEvent.Component)
	assert.Equal(t, domain.ComponentDegraded.String(), wsEvent.Status)

	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	assert.Equal(t, TopicHealth, broadcaster.topics[0])
}

func TestSocketObserver_TickNotifications_AreNoOps(t *testing.T) {
	broadcaster := newMockBroadcaster()
	observer := NewSocketObserver(broadcaster)

	observer.OnTickStarted("scheduler")
	observer.OnTickCompleted("scheduler", 0)
	observer.OnTickFailed("scheduler", nil, 0)

	assert.Equal(t, 0, broadcaster.eventCount())
}

func TestSocketObserver_MultipleEvents_PreserveOrder(t *testing.T) {
	broadcaster := newMockBroadcaster()
	observer := NewSocketObserver(broadcaster)

	observer.OnComponentHealthChanged("scheduler", domain.ComponentOnline)
	observer.OnLedgerEvent(domain.NewLedgerEvent("slot.reserved", "slot", "slot-1", domain.SeverityInfo, nil))
	observer.OnComponentHealthChanged("scheduler", domain.ComponentDegraded)

	require.Equal(t, 3, broadcaster.eventCount())

	broadcaster.mu.Lock()
	events := broadcaster.events
	broadcaster.mu.Unlock()

	assert.Equal(t, EventComponentHealth, events[0].Type)
	assert.Equal(t, EventLedgerAppended, events[1].Type)
	assert.Equal(t, EventComponentHealth, events[2].Type)
}

func TestSocketObserver_ConcurrentBroadcasts(t *testing.T) {
	broadcaster := newMockBroadcaster()
	observer := NewSocketObserver(broadcaster)

	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				observer.OnComponentHealthChanged("scheduler", domain.ComponentOnline)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, numGoroutines*eventsPerGoroutine, broadcaster.eventCount())
}
