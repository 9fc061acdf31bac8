package main

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Position/attack payloads are
	// tiny; anything bigger is garbage.
	maxMessageSize = 4096

	// Outbound queue per connection. A full queue drops the frame rather
	// than blocking a room lock.
	sendQueueSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin enforces the ALLOWED_ORIGINS allow-list. An empty list allows
// everything, which is the dev default.
func checkOrigin(r *http.Request) bool {
	allowed := os.Getenv("ALLOWED_ORIGINS")
	if allowed == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, a := range strings.Split(allowed, ",") {
		if strings.TrimSpace(a) == origin {
			return true
		}
	}
	Log.Warnf("[WS] rejected origin %q", origin)
	return false
}

// Client is a middleman between one websocket connection and the gateway.
// id is the connection identity rooms key on; userID/name come from an
// optional session token and only matter for the leaderboard.
type Client struct {
	server *GameServer
	conn   *websocket.Conn
	send   chan []byte

	id     string
	userID string
	name   string
}

// enqueue queues an outbound frame without blocking. Rooms call this while
// holding their lock, so a slow client loses frames instead of stalling the
// match.
func (c *Client) enqueue(b []byte) {
	if b == nil {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// readPump pumps messages from the websocket connection to the gateway.
func (c *Client) readPump() {
	defer func() {
		c.server.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				Log.Warnf("[WS] read error from %s: %v", c.id, err)
			}
			break
		}
		c.server.handleMessage(c, message)
	}
}

// writePump pumps messages from the send queue to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The gateway closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs handles websocket requests from clients. A valid session token
// attaches a stable user identity; without one the player races as a guest.
// Gameplay never requires auth.
func serveWs(server *GameServer, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("[WS] upgrade failed: %v", err)
		return
	}

	client := &Client{
		server: server,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		id:     uuid.NewString(),
	}

	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := verifyJWT(token)
		if err != nil {
			Log.Warnf("[WS] ignoring invalid session token: %v", err)
		} else {
			client.userID = claims.UserID
			client.name = claims.Name
		}
	}
	if client.userID == "" {
		client.userID = "guest_" + client.id
		client.name = "Guest"
	}

	client.server.register <- client

	go client.writePump()
	go client.readPump()
}
