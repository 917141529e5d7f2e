package server

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Messages reported to clients in room-error events.
const (
	errInvalidEvent     = "Invalid event payload"
	errUnknownEvent     = "Unknown event"
	errRoomNameRequired = "Room name is required"
	errUsernameRequired = "Username is required"
	errRoomExists       = "Room already exists"
	errHistoryFailed    = "Failed to load previous messages"
	errRateLimited      = "Rate limit exceeded"
)

// handleEvent runs one inbound event for c to completion.
func (h *Hub) handleEvent(c *Client, raw []byte) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		log.Printf("Invalid event from %s: %v", c.addr, err)
		h.sendError(c, errInvalidEvent)
		return
	}

	switch env.Event {
	case EventSetUsername:
		h.setIdentity(c, env.Data)
	case EventCreateRoom:
		h.createRoom(c, env.Data)
	case EventJoinRoom:
		h.joinRoom(c, env.Data)
	case EventChatMessage:
		h.chatMessage(c, env.Data)
	case EventRequestActiveRooms:
		h.presence.Publish()
	case EventDisconnect:
		h.disconnect(c)
	default:
		log.Printf("Unknown event %q from %s", env.Event, c.addr)
		h.sendError(c, errUnknownEvent)
	}
}

func (h *Hub) setIdentity(c *Client, data json.RawMessage) {
	name, err := decodeUsername(data)
	if err != nil {
		h.sendError(c, errInvalidEvent)
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		h.sendError(c, errUsernameRequired)
		return
	}

	h.registry.Bind(c.id, name)
	h.presence.Publish()
}

func (h *Hub) createRoom(c *Client, data json.RawMessage) {
	var p roomPayload
	if err := decodeData(data, &p); err != nil {
		h.sendError(c, errInvalidEvent)
		return
	}
	room := chat.NormalizeRoom(p.RoomName)
	if room == "" {
		h.sendError(c, errRoomNameRequired)
		return
	}

	if h.rooms.Exists(room) {
		h.sendError(c, errRoomExists)
		return
	}

	h.rooms.Ensure(room)
	log.Printf("Room %q created by %s", room, c.addr)
	h.sendTo(c, EventRoomCreated, p.RoomName)
	h.presence.Publish()
}

func (h *Hub) joinRoom(c *Client, data json.RawMessage) {
	var p roomPayload
	if err := decodeData(data, &p); err != nil {
		h.sendError(c, errInvalidEvent)
		return
	}
	room := chat.NormalizeRoom(p.RoomName)
	if room == "" {
		h.sendError(c, errRoomNameRequired)
		return
	}
	name := strings.TrimSpace(p.Username)
	if name == "" {
		h.sendError(c, errUsernameRequired)
		return
	}

	h.leaveAll(c)
	h.rooms.Ensure(room)
	h.registry.Bind(c.id, name)
	h.rooms.Add(room, c.id)
	h.registry.SetRoom(c.id, room)

	h.sendTo(c, EventRoomJoined, p.RoomName)
	h.emitToRoom(room, EventUserConnected, name)
	h.replayHistory(c, room)
}

// leaveAll removes c from every room it belongs to and returns those rooms.
func (h *Hub) leaveAll(c *Client) []string {
	left := h.rooms.RemoveFromAll(c.id)
	h.registry.SetRoom(c.id, "")
	return left
}

// replayHistory fetches the room's recent messages off the hub goroutine,
// delivers them to c, then publishes presence.
func (h *Hub) replayHistory(c *Client, room string) {
	limit := h.historyLimit
	h.async(func(ctx context.Context) func() {
		messages, err := h.history.FindByRoom(ctx, room, limit)
		return func() {
			if err != nil {
				log.Printf("Error loading history of room %q for %s: %v", room, c.addr, err)
				h.sendError(c, errHistoryFailed)
			} else {
				if messages == nil {
					messages = []chat.Message{}
				}
				h.sendTo(c, EventPreviousMessages, messages)
			}
			h.presence.Publish()
		}
	})
}

func (h *Hub) chatMessage(c *Client, data json.RawMessage) {
	var p chatMessagePayload
	if err := decodeData(data, &p); err != nil {
		h.sendError(c, errInvalidEvent)
		return
	}
	msg, err := p.toMessage(time.Now())
	if err != nil {
		h.sendError(c, err.Error())
		return
	}

	h.async(func(ctx context.Context) func() {
		saved, err := h.relay.persist(ctx, msg)
		return func() {
			h.relay.complete(c, saved, err)
		}
	})
}

// disconnect tears down c: it leaves its rooms, the remaining members learn
// who left (when c had a name), the binding is dropped and presence republished.
func (h *Hub) disconnect(c *Client) {
	if c == nil {
		return
	}
	if _, ok := h.clients[c.id]; !ok {
		return
	}

	left := h.leaveAll(c)
	delete(h.clients, c.id)
	c.closed = true
	close(c.send)

	if name, ok := h.registry.Lookup(c.id); ok {
		for _, room := range left {
			h.emitToRoom(room, EventUserDisconnected, name)
		}
	}
	h.registry.Unbind(c.id)

	log.Printf("Client unregistered from %s. Total clients: %d", c.addr, len(h.clients))
	h.presence.Publish()
}
