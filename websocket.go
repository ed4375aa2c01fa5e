package main

import (
	"log"
	"net/http"
	"sync"
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

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for now to avoid CORS issues during dev
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is the connection handle for one player: the websocket, its send
// buffer and the authenticated username. The id distinguishes a stale
// handle from its replacement after a reconnect.
type Client struct {
	id       string
	manager  *GameManager
	conn     *websocket.Conn
	send     chan []byte
	username string

	closeMu    sync.Mutex
	sendClosed bool
}

// newClient builds a handle with a fresh id and a buffered send channel.
func newClient(manager *GameManager, conn *websocket.Conn, username string) *Client {
	return &Client{
		id:       uuid.NewString(),
		manager:  manager,
		conn:     conn,
		send:     make(chan []byte, 256),
		username: username,
	}
}

// trySend queues a message without blocking. Messages to a closed or
// saturated client are dropped; the game must never stall on one socket.
func (c *Client) trySend(msg []byte) {
	if msg == nil {
		return
	}
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// closeSend shuts the send channel exactly once.
func (c *Client) closeSend() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// readPump pumps messages from the websocket connection to the manager.
func (c *Client) readPump() {
	defer func() {
		c.manager.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error for %s: %v", c.username, err)
			}
			break
		}
		c.manager.handleMessage(c, message)
	}
}

// writePump pumps messages from the manager to the websocket connection.
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
				// The manager closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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

// serveWs upgrades the connection, authenticates the session token and
// registers the player with the game manager.
func serveWs(manager *GameManager, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		log.Println("[WS] ERROR: No token provided for WebSocket connection")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "authentication required"))
		conn.Close()
		return
	}

	claims, err := verifyJWT(tokenString)
	if err != nil {
		log.Printf("[WS] ERROR: Invalid session token: %v", err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "invalid token"))
		conn.Close()
		return
	}

	client := newClient(manager, conn, claims.Username)
	log.Printf("[WS] %s connected (handle %s)", client.username, client.id)

	client.manager.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
}
