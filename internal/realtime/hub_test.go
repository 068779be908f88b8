package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRoomBroadcastAndSession(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	inRoom, roomSession := dial(t, server.URL, "?room=42")
	other, otherSession := dial(t, server.URL, "")

	require.Eventually(t, func() bool { return hub.Sessions() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.RoomSize("room-42"))

	require.NoError(t, hub.SendToRoom("room-42", "order", map[string]string{"id": "A-1"}))
	frame := readFrame(t, inRoom)
	assert.Equal(t, "order", frame.Event)
	assert.Equal(t, map[string]any{"id": "A-1"}, frame.Data)

	require.NoError(t, hub.Broadcast("notification", "hello all"))
	assert.Equal(t, "hello all", readFrame(t, inRoom).Data)
	assert.Equal(t, "hello all", readFrame(t, other).Data)

	require.NoError(t, hub.SendToSession(otherSession, "direct", "just you"))
	direct := readFrame(t, other)
	assert.Equal(t, "direct", direct.Event)
	assert.Equal(t, "just you", direct.Data)

	assert.NotEqual(t, roomSession, otherSession)
}

func TestHubSendToUnknownSession(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	err := hub.SendToSession(uuid.New(), "notification", "x")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHubSendToEmptyRoom(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	assert.NoError(t, hub.SendToRoom("room-nobody", "notification", "x"))
	assert.NoError(t, hub.Broadcast("notification", "x"))
}

func TestHubJoinLeaveControlFrames(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn, _ := dial(t, server.URL, "")

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "join", "room": "7"}))
	require.Eventually(t, func() bool { return hub.RoomSize("room-7") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "leave", "room": "7"}))
	require.Eventually(t, func() bool { return hub.RoomSize("room-7") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubDisconnectUnregisters(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn, id := dial(t, server.URL, "?room=9")
	require.Eventually(t, func() bool { return hub.Sessions() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Sessions() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.RoomSize("room-9"))
	assert.ErrorIs(t, hub.SendToSession(id, "notification", "x"), ErrSessionNotFound)
}

func TestHubWriteFailureUnregisters(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	conns := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	var serverConn *websocket.Conn
	select {
	case serverConn = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("server side of the connection never arrived")
	}

	s := &session{
		id:    uuid.New(),
		conn:  serverConn,
		send:  make(chan []byte, hub.sendBuffer),
		rooms: make(map[string]struct{}),
	}
	require.NoError(t, hub.register(s))
	hub.Join(s.id, "5")

	// No read loop runs here, so only the writer can notice the dead connection.
	require.NoError(t, serverConn.Close())
	go hub.writePump(s)

	require.NoError(t, hub.SendToSession(s.id, "notification", "lost"))
	require.Eventually(t, func() bool { return hub.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.RoomSize("room-5"))
	assert.ErrorIs(t, hub.SendToSession(s.id, "notification", "x"), ErrSessionNotFound)
}

func TestHubCloseRejectsNewClients(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	hub.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Sessions())
}

// dial connects a client and consumes the greeting frame carrying its session id.
func dial(t *testing.T, serverURL string, query string) (*websocket.Conn, uuid.UUID) {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	hello := readFrame(t, conn)
	require.Equal(t, "connected", hello.Event)

	data, ok := hello.Data.(map[string]any)
	require.True(t, ok)
	id, err := uuid.Parse(data["sessionId"].(string))
	require.NoError(t, err)

	return conn, id
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}
