/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"gopkg.in/tomb.v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one open socket. A participant can hold several at once
// (phone plus laptop); presence events fire only on the first connect
// and the last drop.
type Client struct {
	conn          *websocket.Conn
	send          chan any
	participantID string
	name          string
	role          ParticipantRole
}

type evictRequest struct {
	participantID string
	notice        any
	alert         any
}

// Hub fans events out to every socket in one session. It never reads
// or writes the database - handlers mutate state first, then hand the
// hub an event to push.
type Hub struct {
	code    string
	clients map[*Client]bool

	register  chan *Client
	unreg     chan *Client
	broadcast chan any
	evictions chan evictRequest

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time

	metrics *metricsSet
	tomb    tomb.Tomb
}

func newHub(code string, metrics *metricsSet) *Hub {
	now := time.Now()

	hub := &Hub{
		code:       code,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		broadcast:  make(chan any),
		evictions:  make(chan evictRequest),
		createdAt:  now,
		lastActive: now,
		metrics:    metrics,
	}

	hub.tomb.Go(hub.run)

	return hub
}

func (h *Hub) run() error {
	for {
		select {
		case <-h.tomb.Dying():
			h.closeAll()

			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			wasOnline := h.connsLocked(c.participantID) > 0
			h.clients[c] = true
			h.mu.Unlock()

			if !wasOnline {
				h.fanout(PresenceEvent{
					Type:          EventPresence,
					ParticipantID: c.participantID,
					Name:          c.name,
					Online:        true,
				})
			}

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			_, known := h.clients[c]
			if known {
				delete(h.clients, c)
				close(c.send)
			}

			gone := known && h.connsLocked(c.participantID) == 0
			h.mu.Unlock()

			if gone {
				h.fanout(PresenceEvent{
					Type:          EventPresence,
					ParticipantID: c.participantID,
					Name:          c.name,
					Online:        false,
				})
			}

		case msg := <-h.broadcast:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.mu.Unlock()

			h.fanout(msg)

		case ev := <-h.evictions:
			h.handleEvict(ev)
		}
	}
}

// connsLocked counts open sockets for one participant. Callers hold h.mu.
func (h *Hub) connsLocked(participantID string) int {
	count := 0

	for c := range h.clients {
		if c.participantID == participantID {
			count++
		}
	}

	return count
}

// fanout delivers msg to every client, dropping any whose send buffer
// is full rather than letting one slow reader stall the session.
func (h *Hub) fanout(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}

	if h.metrics != nil {
		h.metrics.eventsBroadcast.Inc()
	}
}

func (h *Hub) handleEvict(ev evictRequest) {
	h.mu.Lock()
	h.lastActive = time.Now()

	for client := range h.clients {
		if client.participantID != ev.participantID {
			continue
		}

		select {
		case client.send <- ev.notice:
		default:
		}

		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()

	if ev.alert != nil {
		h.fanout(ev.alert)
	}
}

// Broadcast queues an event for every connected client.
func (h *Hub) Broadcast(msg any) {
	select {
	case h.broadcast <- msg:
	case <-h.tomb.Dying():
	}
}

// Evict sends notice to the named participant's sockets, closes them,
// then broadcasts alert to everyone left.
func (h *Hub) Evict(participantID string, notice, alert any) {
	select {
	case h.evictions <- evictRequest{participantID: participantID, notice: notice, alert: alert}:
	case <-h.tomb.Dying():
	}
}

// Online reports which participants currently hold at least one socket.
func (h *Hub) Online() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	online := make(map[string]bool, len(h.clients))

	for c := range h.clients {
		online[c.participantID] = true
	}

	return online
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

// RoomManager holds one hub per session code, created lazily on the
// first socket and reaped after the configured idle timeout. Reaping
// only drops sockets; session rows in the database are untouched.
type RoomManager struct {
	mu          sync.Mutex
	rooms       map[string]*Hub
	idleTimeout time.Duration
	metrics     *metricsSet
	tomb        tomb.Tomb
}

func newRoomManager(idleTimeout time.Duration, metrics *metricsSet) *RoomManager {
	manager := &RoomManager{
		rooms:       make(map[string]*Hub),
		idleTimeout: idleTimeout,
		metrics:     metrics,
	}

	if idleTimeout > 0 {
		manager.tomb.Go(manager.reaperLoop)
	}

	return manager
}

func (m *RoomManager) getRoom(code string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.rooms[code]; ok {
		return hub
	}

	hub := newHub(code, m.metrics)
	m.rooms[code] = hub

	if m.metrics != nil {
		m.metrics.roomsActive.Set(float64(len(m.rooms)))
	}

	return hub
}

// lookupRoom returns the hub for a session without creating one, so
// handlers can skip broadcasting when nobody is connected.
func (m *RoomManager) lookupRoom(code string) (*Hub, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hub, ok := m.rooms[code]

	return hub, ok
}

func (m *RoomManager) reaperLoop() error {
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.tomb.Dying():
			return nil
		case <-ticker.C:
			cutoff := time.Now().Add(-m.idleTimeout)

			m.mu.Lock()
			for code, hub := range m.rooms {
				hub.mu.RLock()
				last := hub.lastActive
				empty := len(hub.clients) == 0
				hub.mu.RUnlock()

				if empty && last.Before(cutoff) {
					delete(m.rooms, code)
					hub.tomb.Kill(nil)
				}
			}

			if m.metrics != nil {
				m.metrics.roomsActive.Set(float64(len(m.rooms)))
			}
			m.mu.Unlock()
		}
	}
}

// shutdown tears down the reaper and every hub, closing all sockets.
func (m *RoomManager) shutdown() {
	m.tomb.Kill(nil)

	m.mu.Lock()
	hubs := make([]*Hub, 0, len(m.rooms))

	for code, hub := range m.rooms {
		hubs = append(hubs, hub)
		delete(m.rooms, code)
	}
	m.mu.Unlock()

	for _, hub := range hubs {
		hub.tomb.Kill(nil)
		_ = hub.tomb.Wait()
	}

	_ = m.tomb.Wait()
}

// serveSessionSocket upgrades GET /api/sessions/:code/ws. The token
// rides in the "token" query parameter or the cookie, since browser
// WebSocket clients can't set headers.
func (s *server) serveSessionSocket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := normalizeInviteCode(ps.ByName("code"))

	sess, err := s.store.SessionByCode(r.Context(), code)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)

		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = requestToken(r)
	}

	participantID, err := verifyParticipantToken(token, s.cfg.secret, time.Now())
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)

		return
	}

	participant, err := s.store.ParticipantByID(r.Context(), participantID)
	if err != nil || participant.SessionID != sess.ID {
		http.Error(w, "invalid token", http.StatusUnauthorized)

		return
	}

	view, err := s.sessionViewFor(r.Context(), sess, participant)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Str("session", code).Msg("websocket upgrade failed")

		return
	}

	client := &Client{
		conn:          conn,
		send:          make(chan any, 8),
		participantID: participant.ID,
		name:          participant.Name,
		role:          participant.Role,
	}

	// Queued before registration so the welcome always arrives ahead
	// of any broadcast.
	client.send <- WelcomeEvent{Type: EventWelcome, Session: view}

	hub := s.rooms.getRoom(code)

	select {
	case hub.register <- client:
	case <-hub.tomb.Dying():
		conn.Close()

		return
	}

	s.metrics.socketsOpen.Inc()
	s.logger.Debug().Str("session", code).Str("participant", participant.Name).Msg("socket opened")

	go client.writePump()
	client.readPump(hub)

	s.metrics.socketsOpen.Dec()
	s.logger.Debug().Str("session", code).Str("participant", participant.Name).Msg("socket closed")
}

// readPump drains the connection for ping traffic and close frames.
// Clients never mutate state over the socket; everything arrives via
// the REST API.
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.tomb.Dying():
		}

		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)

				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
