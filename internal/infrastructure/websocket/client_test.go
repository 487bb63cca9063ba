package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)

	client := NewClient("client-1", "user-1", hub, nil)

	assert.Equal(t, "client-1", client.id)
	assert.Equal(t, "user-1", client.userID)
	assert.Equal(t, hub, client.hub)
	assert.NotNil(t, client.send)
	assert.NotNil(t, client.subs)
}

func TestClient_ShouldReceive_NoSubscriptions(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	client := NewClient("client-1", "user-1", hub, nil)

	assert.False(t, client.shouldReceive(TopicLedger))
	assert.False(t, client.shouldReceive(TopicHealth))
}

func TestClient_ShouldReceive_TopicSubscription(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	client := NewClient("client-1", "user-1", hub, nil)

	client.subs.mu.Lock()
	client.subs.topics[TopicLedger] = true
	client.subs.mu.Unlock()

	assert.True(t, client.shouldReceive(TopicLedger))
	assert.False(t, client.shouldReceive(TopicHealth))
}

func TestClient_ShouldReceive_BothTopics(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	client := NewClient("client-1", "user-1", hub, nil)

	client.subs.mu.Lock()
	client.subs.topics[TopicLedger] = true
	client.subs.topics[TopicHealth] = true
	client.subs.mu.Unlock()

	assert.True(t, client.shouldReceive(TopicLedger))
	assert.True(t, client.shouldReceive(TopicHealth))
}

// Integration test with real WebSocket connection
func TestClient_IntegrationWithWebSocket(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}

		client := NewClient("test-client", "test-user", hub, conn)
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, hub.ClientCount())
}

func TestClient_HandleSubscribeCommand(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	var receivedResponse *WSResponse
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}

		client := NewClient("test-client", "test-user", hub, conn)
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	cmd := WSCommand{
		Action: CmdSubscribe,
		Topic:  TopicLedger,
	}
	err = ws.WriteJSON(cmd)
	require.NoError(t, err)

	ws.SetReadDeadline(time.Now().Add(time.Second))
	err = ws.ReadJSON(&receivedResponse)
	require.NoError(t, err)

	assert.Equal(t, CmdSubscribe, receivedResponse.Type)
	assert.True(t, receivedResponse.Success)
	assert.Contains(t, receivedResponse.Message, TopicLedger)
}

func TestClient_HandleUnsubscribeCommand(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}

		client := NewClient("test-client", "test-user", hub, conn)
		hub.register <- client

		hub.Subscribe(client, TopicLedger)

		go client.writePump()
		go client.readPump()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	cmd := WSCommand{
		Action: CmdUnsubscribe,
		Topic:  TopicLedger,
	}
	err = ws.WriteJSON(cmd)
	require.NoError(t, err)

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	err = ws.ReadJSON(&response)
	require.NoError(t, err)

	assert.Equal(t, CmdUnsubscribe, response.Type)
	assert.True(t, response.Success)
	assert.Contains(t, response.Message, TopicLedger)
}

func TestClient_HandleInvalidCommand(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}

		client := NewClient("test-client", "test-user", hub, conn)
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	err = ws.WriteMessage(websocket.TextMessage, []byte("not valid json"))
	require.NoError(t, err)

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	err = ws.ReadJSON(&response)
	require.NoError(t, err)

	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "invalid command format")
}

func TestClient_HandleUnknownCommand(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}

		client := NewClient("test-client", "test-user", hub, conn)
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	cmd := WSCommand{
		Action: "unknown_action",
	}
	err = ws.WriteJSON(cmd)
	require.NoError(t, err)

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	err = ws.ReadJSON(&response)
	require.NoError(t, err)

	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "unknown command")
}

func TestClient_HandleSubscribeWithoutTopic(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}

		client := NewClient("test-client", "test-user", hub, conn)
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	cmd := WSCommand{
		Action: CmdSubscribe,
	}
	err = ws.WriteJSON(cmd)
	require.NoError(t, err)

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	err = ws.ReadJSON(&response)
	require.NoError(t, err)

	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "topic must be one of")
}

func TestClient_HandleSubscribeUnknownTopic(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}

		client := NewClient("test-client", "test-user", hub, conn)
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	cmd := WSCommand{
		Action: CmdSubscribe,
		Topic:  "not-a-real-topic",
	}
	err = ws.WriteJSON(cmd)
	require.NoError(t, err)

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	err = ws.ReadJSON(&response)
	require.NoError(t, err)

	assert.False(t, response.Success)
}

func TestClient_ReceiveBroadcastEvent(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	var serverClient *Client
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}

		serverClient = NewClient("test-client", "test-user", hub, conn)
		hub.register <- serverClient

		go serverClient.writePump()
		go serverClient.readPump()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	subCmd := WSCommand{
		Action: CmdSubscribe,
		Topic:  TopicLedger,
	}
	err = ws.WriteJSON(subCmd)
	require.NoError(t, err)

	var subResp WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	err = ws.ReadJSON(&subResp)
	require.NoError(t, err)
	assert.True(t, subResp.Success)

	event := NewLedgerWSEvent("publish.succeeded", "post", "post-1", "info", nil)
	hub.Broadcast("", TopicLedger, event)

	var receivedEvent WSEvent
	ws.SetReadDeadline(time.Now().Add(time.Second))
	err = ws.ReadJSON(&receivedEvent)
	require.NoError(t, err)

	assert.Equal(t, EventLedgerAppended, receivedEvent.Type)
	assert.Equal(t, "post", receivedEvent.EntityType)
	assert.Equal(t, "post-1", receivedEvent.EntityID)
}

func TestClient_ConnectionClose(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}

		client := NewClient("test-client", "test-user", hub, conn)
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	ws.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestClient_SubscribeToHealth(t *testing.T) {
	logger := testLogger()
	hub := NewHub(logger)
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}

		client := NewClient("test-client", "test-user", hub, conn)
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	cmd := WSCommand{
		Action: CmdSubscribe,
		Topic:  TopicHealth,
	}
	err = ws.WriteJSON(cmd)
	require.NoError(t, err)

	var response WSResponse
	ws.SetReadDeadline(time.Now().Add(time.Second))
	err = ws.ReadJSON(&response)
	require.NoError(t, err)

	assert.True(t, response.Success)
	assert.Contains(t, response.Message, TopicHealth)
}

func TestSubscriptions_ThreadSafety(t *testing.T) {
	subs := NewSubscriptions()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			subs.mu.Lock()
			subs.topics["topic-"+string(rune('0'+idx))] = true
			subs.mu.Unlock()
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	subs.mu.RLock()
	count := len(subs.topics)
	subs.mu.RUnlock()

	assert.Equal(t, 10, count)
}

func TestClient_Constants(t *testing.T) {
	assert.Equal(t, 10*time.Second, writeWait)
	assert.Equal(t, 60*time.Second, pongWait)
	assert.Less(t, pingPeriod, pongWait, "ping period must be less than pong wait")
	assert.Equal(t, 512, maxMessageSize)
	assert.Equal(t, 64, sendBufferSize)
}

func TestClient_HandleCommand_JSON(t *testing.T) {
	tests := []struct {
		name     string
		jsonCmd  string
		wantType string
	}{
		{
			name:     "valid subscribe ledger",
			jsonCmd:  `{"action":"subscribe","topic":"ledger"}`,
			wantType: CmdSubscribe,
		},
		{
			name:     "valid subscribe health",
			jsonCmd:  `{"action":"subscribe","topic":"health"}`,
			wantType: CmdSubscribe,
		},
		{
			name:     "valid unsubscribe",
			jsonCmd:  `{"action":"unsubscribe","topic":"ledger"}`,
			wantType: CmdUnsubscribe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd WSCommand
			err := json.Unmarshal([]byte(tt.jsonCmd), &cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, cmd.Action)
		})
	}
}
