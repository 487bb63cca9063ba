package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewLedgerWSEvent(t *testing.T) {
	before := time.Now()
	event := NewLedgerWSEvent("publish.succeeded", "post", "post-123", "info", map[string]any{"platform": "tiktok"})
	after := time.Now()

	assert.Equal(t, EventLedgerAppended, event.Type)
	assert.Equal(t, "publish.succeeded", event.EventType)
	assert.Equal(t, "post", event.EntityType)
	assert.Equal(t, "post-123", event.EntityID)
	assert.Equal(t, "info", event.Severity)
	assert.True(t, event.Timestamp.After(before) || event.Timestamp.Equal(before))
	assert.True(t, event.Timestamp.Before(after) || event.Timestamp.Equal(after))
}

func TestNewComponentHealthWSEvent(t *testing.T) {
	event := NewComponentHealthWSEvent("publishing_worker", "degraded")

	assert.Equal(t, EventComponentHealth, event.Type)
	assert.Equal(t, "publishing_worker", event.Component)
	assert.Equal(t, "degraded", event.Status)
}

func TestNewSuccessResponse(t *testing.T) {
	resp := NewSuccessResponse(CmdSubscribe, "subscribed successfully")

	assert.Equal(t, CmdSubscribe, resp.Type)
	assert.True(t, resp.Success)
	assert.Equal(t, "subscribed successfully", resp.Message)
	assert.Empty(t, resp.Error)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(CmdSubscribe, "invalid topic")

	assert.Equal(t, CmdSubscribe, resp.Type)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Message)
	assert.Equal(t, "invalid topic", resp.Error)
}

func TestWSEvent_JSONSerialization(t *testing.T) {
	event := NewLedgerWSEvent("publish.failed", "post", "post-789", "error", map[string]any{"reason": "rate_limited"})

	data, err := json.Marshal(event)
	assert.NoError(t, err)

	var decoded WSEvent
	err = json.Unmarshal(data, &decoded)
	assert.NoError(t, err)

	assert.Equal(t, event.Type, decoded.Type)
	assert.Equal(t, event.EventType, decoded.EventType)
	assert.Equal(t, event.EntityType, decoded.EntityType)
	assert.Equal(t, event.EntityID, decoded.EntityID)
	assert.Equal(t, event.Severity, decoded.Severity)
}

func TestWSEvent_JSONOmitEmpty(t *testing.T) {
	event := NewComponentHealthWSEvent("scheduler", "online")

	data, err := json.Marshal(event)
	assert.NoError(t, err)

	var m map[string]interface{}
	err = json.Unmarshal(data, &m)
	assert.NoError(t, err)

	assert.Contains(t, m, "type")
	assert.Contains(t, m, "timestamp")
	assert.Contains(t, m, "component")
	assert.Contains(t, m, "status")

	assert.NotContains(t, m, "event_type")
	assert.NotContains(t, m, "entity_type")
	assert.NotContains(t, m, "entity_id")
	assert.NotContains(t, m, "severity")
	assert.NotContains(t, m, "payload")
}

func TestWSCommand_JSONDeserialization(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected WSCommand
	}{
		{
			name:     "subscribe to ledger",
			json:     `{"action":"subscribe","topic":"ledger"}`,
			expected: WSCommand{Action: CmdSubscribe, Topic: TopicLedger},
		},
		{
			name:     "subscribe to health",
			json:     `{"action":"subscribe","topic":"health"}`,
			expected: WSCommand{Action: CmdSubscribe, Topic: TopicHealth},
		},
		{
			name:     "unsubscribe from ledger",
			json:     `{"action":"unsubscribe","topic":"ledger"}`,
			expected: WSCommand{Action: CmdUnsubscribe, Topic: TopicLedger},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd WSCommand
			err := json.Unmarshal([]byte(tt.json), &cmd)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, cmd)
		})
	}
}

func TestWSResponse_JSONSerialization(t *testing.T) {
	tests := []struct {
		name     string
		response *WSResponse
	}{
		{
			name:     "success response",
			response: NewSuccessResponse(CmdSubscribe, "subscribed"),
		},
		{
			name:     "error response",
			response: NewErrorResponse(CmdSubscribe, "invalid topic"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.response)
			assert.NoError(t, err)

			var decoded WSResponse
			err = json.Unmarshal(data, &decoded)
			assert.NoError(t, err)

			assert.Equal(t, tt.response.Type, decoded.Type)
			assert.Equal(t, tt.response.Success, decoded.Success)
			assert.Equal(t, tt.response.Message, decoded.Message)
			assert.Equal(t, tt.response.Error, decoded.Error)
		})
	}
}

func TestEventTypeConstants(t *testing.T) {
	assert.Equal(t, "ledger.appended", EventLedgerAppended)
	assert.Equal(t, "component.health_changed", EventComponentHealth)
	assert.Equal(t, "system.emergency_stop", EventEmergencyStop)
	assert.Equal(t, "system.emergency_resume", EventEmergencyResume)
}

func TestCommandTypeConstants(t *testing.T) {
	assert.Equal(t, "subscribe", CmdSubscribe)
	assert.Equal(t, "unsubscribe", CmdUnsubscribe)
}

func TestTopicConstants(t *testing.T) {
	assert.Equal(t, "ledger", TopicLedger)
	assert.Equal(t, "health", TopicHealth)
}
