package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RoomPrefix is prepended to every room id a client joins or a notification targets.
const RoomPrefix = "room-"

const (
	defaultSendBuffer = 64
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxInboundBytes   = 4096
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrHubClosed       = errors.New("hub closed")
)

// Frame is the JSON envelope written to clients.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type controlFrame struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

type session struct {
	id        uuid.UUID
	conn      *websocket.Conn
	send      chan []byte
	rooms     map[string]struct{}
	closeOnce sync.Once
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// Hub tracks connected sessions and room membership. Emits never block on
// a slow client; a client whose buffer is full is disconnected.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
	rooms    map[string]map[uuid.UUID]*session
	closed   bool

	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		sessions: make(map[uuid.UUID]*session),
		rooms:    make(map[string]map[uuid.UUID]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sendBuffer: defaultSendBuffer,
		logger:     logger,
	}
}

// ServeHTTP upgrades the connection and registers a new session. Each
// "room" query value joins the matching room.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &session{
		id:    uuid.New(),
		conn:  conn,
		send:  make(chan []byte, h.sendBuffer),
		rooms: make(map[string]struct{}),
	}
	if err := h.register(s); err != nil {
		_ = conn.Close()
		return
	}
	for _, room := range r.URL.Query()["room"] {
		h.Join(s.id, room)
	}

	h.logger.Info("socket client connected",
		zap.String("sessionId", s.id.String()),
		zap.String("remoteAddr", r.RemoteAddr),
	)

	if hello, err := encodeFrame("connected", map[string]string{"sessionId": s.id.String()}); err == nil {
		h.enqueue(s, hello)
	}

	go h.writePump(s)
	go h.readPump(s)
}

func (h *Hub) register(s *session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	h.sessions[s.id] = s
	return nil
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.id)
	for room := range s.rooms {
		h.leaveLocked(s, room)
	}
	h.mu.Unlock()

	s.close()
	h.logger.Info("socket client disconnected", zap.String("sessionId", s.id.String()))
}

// Join adds a session to RoomPrefix+roomID. Unknown sessions are ignored.
func (h *Hub) Join(id uuid.UUID, roomID string) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return
	}
	room := RoomPrefix + roomID

	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]*session)
		h.rooms[room] = members
	}
	members[id] = s
	s.rooms[room] = struct{}{}
}

func (h *Hub) Leave(id uuid.UUID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[id]; ok {
		h.leaveLocked(s, RoomPrefix+strings.TrimSpace(roomID))
	}
}

func (h *Hub) leaveLocked(s *session, room string) {
	delete(s.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, s.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// SendToRoom emits to every member of room. An empty room is not an error.
func (h *Hub) SendToRoom(room string, event string, data any) error {
	payload, err := encodeFrame(event, data)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*session, 0, len(h.rooms[room]))
	for _, s := range h.rooms[room] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	h.deliver(targets, payload)
	return nil
}

func (h *Hub) Broadcast(event string, data any) error {
	payload, err := encodeFrame(event, data)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	h.deliver(targets, payload)
	return nil
}

func (h *Hub) SendToSession(id uuid.UUID, event string, data any) error {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	payload, err := encodeFrame(event, data)
	if err != nil {
		return err
	}

	h.deliver([]*session{s}, payload)
	return nil
}

// Sessions returns the number of connected clients.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.unregister(s)
	}
}

func (h *Hub) deliver(targets []*session, payload []byte) {
	for _, s := range targets {
		if !h.enqueue(s, payload) {
			h.logger.Warn("dropping slow socket client", zap.String("sessionId", s.id.String()))
			h.unregister(s)
		}
	}
}

// enqueue holds the read lock so unregister cannot close the channel mid-send.
func (h *Hub) enqueue(s *session, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.sessions[s.id]; !ok {
		return true
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) readPump(s *session) {
	defer func() {
		h.unregister(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxInboundBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame controlFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				continue
			}
			return
		}

		switch strings.ToLower(strings.TrimSpace(frame.Action)) {
		case "join":
			h.Join(s.id, frame.Room)
		case "leave":
			h.Leave(s.id, frame.Room)
		}
	}
}

func (h *Hub) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.unregister(s)
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeFrame(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode socket frame: %w", err)
	}
	return payload, nil
}
