// Package chat holds the domain types shared by the room session protocol and
// the message store: chat messages, their payload kinds and room naming rules.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind selects which payload a Message carries.
type Kind string

// Supported message kinds.
const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

var (
	ErrUnknownKind   = errors.New("unknown message type")
	ErrEmptyPayload  = errors.New("message payload is empty")
	ErrMissingAuthor = errors.New("message author is required")
	ErrMissingRoom   = errors.New("message room is required")
)

// ParseKind maps a wire type string to a Kind. An empty string means text.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindText:
		return KindText, nil
	case KindAudio:
		return KindAudio, nil
	case KindImage:
		return KindImage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Message is an immutable chat record. Text is set for KindText, Media holds the
// encoded audio or image for the other kinds; exactly one of them is populated.
type Message struct {
	ID        string
	Author    string
	Room      string
	Kind      Kind
	Text      string
	Media     string
	Timestamp time.Time
}

// NewMessage builds a message of the given kind, picking the payload field that
// belongs to it and dropping the others. The room name is normalized. Author and
// room are not checked here; the store rejects records without them.
func NewMessage(author, room string, kind Kind, text, audio, image string, at time.Time) (Message, error) {
	msg := Message{
		Author:    author,
		Room:      NormalizeRoom(room),
		Kind:      kind,
		Timestamp: at,
	}

	switch kind {
	case KindText:
		msg.Text = text
	case KindAudio:
		msg.Media = audio
	case KindImage:
		msg.Media = image
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if msg.payload() == "" {
		return Message{}, fmt.Errorf("%w for type %s", ErrEmptyPayload, kind)
	}
	return msg, nil
}

func (m Message) payload() string {
	if m.Kind == KindText {
		return m.Text
	}
	return m.Media
}

// Validate reports whether the message is complete enough to be persisted.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Author) == "" {
		return ErrMissingAuthor
	}
	if m.Room == "" {
		return ErrMissingRoom
	}
	switch m.Kind {
	case KindText, KindAudio, KindImage:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
	if m.payload() == "" {
		return ErrEmptyPayload
	}
	return nil
}

// NormalizeRoom returns the canonical lookup key for a room name. It is
// idempotent, so "Lobby", " lobby" and "lobby" all name the same room.
func NormalizeRoom(name string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(name))
}

// MessageStore persists chat messages and replays room history.
type MessageStore interface {
	// Save persists msg and returns the stored record, including its ID.
	Save(ctx context.Context, msg Message) (Message, error)
	// FindByRoom returns at most limit of the newest messages in room,
	// ordered oldest-first.
	FindByRoom(ctx context.Context, room string, limit int) ([]Message, error)
}
