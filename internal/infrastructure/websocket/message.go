package websocket

import (
	"time"
)

// Event types (server -> client). The operator dashboard subscribes to the
// Event Ledger (C11) and component health transitions over this socket
// rather than polling the REST surface.
const (
	EventLedgerAppended     = "ledger.appended"
	EventComponentHealth    = "component.health_changed"
	EventEmergencyStop      = "system.emergency_stop"
	EventEmergencyResume    = "system.emergency_resume"
)

// Command types (client -> server)
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// Subscription topics a client can request with CmdSubscribe/CmdUnsubscribe.
const (
	TopicLedger = "ledger"
	TopicHealth = "health"
)

// WSEvent represents an event sent from server to client.
type WSEvent struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Component  string    `json:"component,omitempty"`
	Status     string    `json:"status,omitempty"`
	EventType  string    `json:"event_type,omitempty"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Payload    any       `json:"payload,omitempty"`
}

// WSCommand represents a command sent from client to server.
type WSCommand struct {
	Action string `json:"action"`
	Topic  string `json:"topic,omitempty"`
}

// WSResponse represents a response to a client command.
type WSResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewLedgerWSEvent builds the WSEvent broadcast for a ledger append.
func NewLedgerWSEvent(eventType, entityType, entityID, severity string, payload any) *WSEvent {
	return &WSEvent{
		Type:       EventLedgerAppended,
		Timestamp:  time.Now(),
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Severity:   severity,
		Payload:    payload,
	}
}

// NewComponentHealthWSEvent builds the WSEvent broadcast for a component
// health transition.
func NewComponentHealthWSEvent(component, status string) *WSEvent {
	return &WSEvent{
		Type:      EventComponentHealth,
		Timestamp: time.Now(),
		Component: component,
		Status:    status,
	}
}

// NewSuccessResponse creates a success response.
func NewSuccessResponse(responseType, message string) *WSResponse {
	return &WSResponse{Type: responseType, Success: true, Message: message}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(responseType, errorMsg string) *WSResponse {
	return &WSResponse{Type: responseType, Success: false, Error: errorMsg}
}
