package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mosaicchat/mosaic/pkg/auth"
	"github.com/mosaicchat/mosaic/pkg/chat"
	"github.com/mosaicchat/mosaic/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	requestTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	app  *app
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	sess chat.Session

	// Rooms this socket joined; owned by the hub under its lock.
	rooms map[string]bool
}

// readPump reads request frames off the socket and dispatches them. Each
// request is answered with exactly one ack frame.
func (c *Client) readPump() {
	defer func() {
		c.app.hub.Drop(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Debug("socket closed", "user", c.sess.Username, "err", err)
			}
			break
		}

		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			c.deliver(nack("", "bad_request", "request frame is not valid JSON"))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		resp := c.app.dispatch(ctx, c, req)
		cancel()
		c.deliver(resp)
	}
}

// deliver queues one ack frame. A full send buffer means the peer stopped
// draining replies; dropping the connection lets the client reconnect and
// resync rather than wait forever on an ack that was never queued.
func (c *Client) deliver(a ack) {
	frame, err := json.Marshal(a)
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		logger.Log.Warn("ack buffer full, closing socket", "user", c.sess.Username)
		c.conn.Close()
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

// serveWs authenticates the handshake and starts the socket pumps.
func serveWs(a *app, w http.ResponseWriter, r *http.Request) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}
	if tokenString == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := auth.Verify(r.Context(), a.store, tokenString)
	if err != nil {
		logger.Log.Debug("handshake rejected", "err", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("upgrade failed", "err", err)
		return
	}

	client := &Client{
		app:   a,
		conn:  conn,
		send:  make(chan []byte, 256),
		sess:  chat.Session{ApplicationUUID: claims.ApplicationUUID, Username: claims.Username},
		rooms: make(map[string]bool),
	}

	go client.writePump()
	go client.readPump()
}
