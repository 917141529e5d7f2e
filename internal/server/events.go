package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Inbound event names.
const (
	EventSetUsername        = "set-username"
	EventCreateRoom         = "create-room"
	EventJoinRoom           = "join-room"
	EventChatMessage        = "chat-message"
	EventRequestActiveRooms = "request-active-rooms"
	EventDisconnect         = "disconnect"
)

// Outbound event names. chat-message is shared with inbound.
const (
	EventActiveRoomsList  = "active-rooms-list"
	EventRoomCreated      = "room-created"
	EventRoomJoined       = "room-joined"
	EventRoomError        = "room-error"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventPreviousMessages = "previous-messages"
)

var errMissingEvent = errors.New("event name is required")

// Envelope is the JSON frame carried by every WebSocket message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, errMissingEvent
	}
	return env, nil
}

func encodeEvent(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: payload})
}

// decodeData unmarshals an envelope payload into dest.
func decodeData(data json.RawMessage, dest any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(data, dest)
}

type usernamePayload struct {
	Username string `json:"username"`
}

// decodeUsername accepts either a bare JSON string or {"username": "..."}.
func decodeUsername(data json.RawMessage) (string, error) {
	var name string
	if err := decodeData(data, &name); err == nil {
		return name, nil
	}
	var p usernamePayload
	if err := decodeData(data, &p); err != nil {
		return "", err
	}
	return p.Username, nil
}

type roomPayload struct {
	RoomName string `json:"roomName"`
	Username string `json:"username"`
}

type chatMessagePayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	Audio    string `json:"audio"`
	Image    string `json:"image"`
}

func (p chatMessagePayload) toMessage(at time.Time) (chat.Message, error) {
	kind, err := chat.ParseKind(p.Type)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.NewMessage(p.Username, p.Room, kind, p.Message, p.Audio, p.Image, at)
}
