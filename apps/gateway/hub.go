package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/model"
)

// Hub tracks which local sockets are subscribed to which channel. Rooms
// are keyed by (application, channel); cross-process delivery happens via
// the fanout topic, which every gateway instance consumes in full, so the
// hub only ever routes to its own connections.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]bool)}
}

func roomKey(appUUID, channelUUID string) string {
	return appUUID + ":" + channelUUID
}

// Join subscribes a socket to a channel room. Membership has been checked
// by the caller before this point.
func (h *Hub) Join(c *Client, channelUUID string) {
	key := roomKey(c.sess.ApplicationUUID, channelUUID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[key] == nil {
		h.rooms[key] = make(map[*Client]bool)
	}
	h.rooms[key][c] = true
	c.rooms[key] = true
}

func (h *Hub) Leave(c *Client, channelUUID string) {
	key := roomKey(c.sess.ApplicationUUID, channelUUID)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c, key)
}

// Drop removes a disconnected socket from every room it joined.
func (h *Hub) Drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key := range c.rooms {
		h.drop(c, key)
	}
}

func (h *Hub) drop(c *Client, key string) {
	if clients, ok := h.rooms[key]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, key)
		}
	}
	delete(c.rooms, key)
}

// Broadcast delivers a frame to every local subscriber of a room. A
// subscriber with a full send buffer is unsubscribed rather than allowed
// to stall the rest; its socket stays up for request/ack traffic.
func (h *Hub) Broadcast(appUUID, channelUUID string, frame []byte) {
	key := roomKey(appUUID, channelUUID)
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.rooms[key] {
		select {
		case client.send <- frame:
		default:
			h.drop(client, key)
		}
	}
}

// eventFrame is the shape of every server-initiated frame on the socket.
type eventFrame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RouteEvents consumes the fanout topic and forwards each event to the
// local subscribers of its channel. Runs until the context is canceled.
func (h *Hub) RouteEvents(ctx context.Context, reader *kafka.Reader) {
	defer reader.Close()
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Error("fanout read failed", "err", err)
			return
		}

		var ev model.Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			logger.Log.Warn("skipping undecodable fanout event", "err", err)
			continue
		}
		if err := ev.Validate(); err != nil {
			logger.Log.Warn("skipping invalid fanout event", "err", err)
			continue
		}

		frame, err := json.Marshal(eventFrame{Type: "event", Event: ev.Event, Payload: ev.Payload})
		if err != nil {
			continue
		}
		h.Broadcast(ev.ApplicationUUID, ev.ChannelUUID, frame)
	}
}
