package signal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"telerelay/internal/core/domain"
	"telerelay/internal/core/services"
	"telerelay/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, cfg HubConfig) (*WebSocketServer, *httptest.Server) {
	t.Helper()

	registry := memory.NewMemoryPeerRegistry()
	hub := NewWebSocketServer(registry, cfg, nil, nil)
	hub.SetRouter(services.NewRouterService(registry, hub, domain.DefaultDeviceLabels(), nil, nil))

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return messageType, data
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	messageType, data := readMessage(t, conn)
	require.Equal(t, websocket.TextMessage, messageType)
	return string(data)
}

// readUntil skips messages until want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()

	for i := 0; i < 10; i++ {
		if readText(t, conn) == want {
			return
		}
	}
	t.Fatalf("did not receive %q", want)
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

func TestWebSocketServer_WelcomeAndJoin(t *testing.T) {
	_, server := newTestHub(t, DefaultHubConfig())

	c1 := dial(t, server)
	assert.Equal(t, "Welcome. You are client 1.", readText(t, c1))

	c2 := dial(t, server)
	assert.Equal(t, "Welcome. You are client 2.", readText(t, c2))
	assert.Equal(t, "Client 2 has joined the session.", readText(t, c1))
}

func TestWebSocketServer_CommandReachesActuator(t *testing.T) {
	_, server := newTestHub(t, DefaultHubConfig())

	controller := dial(t, server)
	readText(t, controller)

	actuator := dial(t, server)
	readText(t, actuator)
	sendText(t, actuator, "ESP32-DevKit connected!")
	readUntil(t, controller, "ESP32-DevKit is now connected!")

	sendText(t, controller, "pan 90")
	assert.Equal(t, "pan 90", readText(t, actuator))
	assert.Equal(t, `Server: Command "pan 90" sent to ESP32-DevKit.`, readText(t, controller))

	sendText(t, controller, "volume 101")
	assert.Equal(t, "Server: Invalid volume level. Please use a number between 0 and 100.", readText(t, controller))
}

func TestWebSocketServer_AudioRelay(t *testing.T) {
	_, server := newTestHub(t, DefaultHubConfig())

	controller := dial(t, server)
	readText(t, controller)

	actuator := dial(t, server)
	readText(t, actuator)
	sendText(t, actuator, "ESP32-DevKit connected!")
	readUntil(t, controller, "ESP32-DevKit is now connected!")

	downlink := []byte{0x00, 0x80, 0xff, 0x7f}
	require.NoError(t, actuator.WriteMessage(websocket.BinaryMessage, downlink))
	messageType, data := readMessage(t, controller)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, downlink, data)

	uplink := []byte{1, 2, 3, 4}
	require.NoError(t, controller.WriteMessage(websocket.BinaryMessage, uplink))
	messageType, data = readMessage(t, actuator)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, uplink, data)
}

func TestWebSocketServer_DisconnectNotifies(t *testing.T) {
	hub, server := newTestHub(t, DefaultHubConfig())

	controller := dial(t, server)
	readText(t, controller)

	actuator := dial(t, server)
	readText(t, actuator)
	sendText(t, actuator, "ESP32-DevKit connected!")
	readUntil(t, controller, "ESP32-DevKit is now connected!")

	require.NoError(t, actuator.Close())
	readUntil(t, controller, "ESP32-DevKit has disconnected!")

	assert.Eventually(t, func() bool {
		return hub.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sendText(t, controller, "forward")
	assert.Equal(t, "Server: ESP32-DevKit not connected. Command not sent.", readText(t, controller))
}

func TestWebSocketServer_RateLimit(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.MessagesPerSecond = 0.001
	cfg.Burst = 1
	_, server := newTestHub(t, cfg)

	conn := dial(t, server)
	readText(t, conn)

	sendText(t, conn, "first")
	assert.Equal(t, "Server: Your message broadcasted.", readText(t, conn))

	sendText(t, conn, "second")
	assert.Equal(t, "Server: Rate limit exceeded.", readText(t, conn))
}

func TestWebSocketServer_SendToUnknownPeer(t *testing.T) {
	hub := NewWebSocketServer(memory.NewMemoryPeerRegistry(), DefaultHubConfig(), nil, nil)

	assert.ErrorIs(t, hub.SendText(99, "hello"), domain.ErrPeerNotFound)
	assert.ErrorIs(t, hub.SendBinary(99, []byte{1}), domain.ErrPeerNotFound)
}

func TestWebSocketServer_FullQueueDropsForRecipientOnly(t *testing.T) {
	hub := NewWebSocketServer(memory.NewMemoryPeerRegistry(), DefaultHubConfig(), nil, nil)
	hub.clients[1] = &client{id: 1, send: make(chan outbound, 1)}
	hub.clients[2] = &client{id: 2, send: make(chan outbound, 1)}

	require.NoError(t, hub.SendText(1, "a"))
	assert.ErrorIs(t, hub.SendText(1, "b"), domain.ErrSendQueueFull)
	assert.NoError(t, hub.SendText(2, "a"))

	hub.removeClient(1)
	hub.removeClient(1)
	assert.ErrorIs(t, hub.SendText(1, "c"), domain.ErrPeerNotFound)
}
