package chat

import (
	"encoding/json"
	"time"
)

// record is the wire form of a Message. Only the payload field matching Type is set.
type record struct {
	ID        string    `json:"id,omitempty"`
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Type      Kind      `json:"type"`
	Message   string    `json:"message,omitempty"`
	Audio     string    `json:"audio,omitempty"`
	Image     string    `json:"image,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON encodes the message in its kind-tagged wire form.
func (m Message) MarshalJSON() ([]byte, error) {
	r := record{
		ID:        m.ID,
		Username:  m.Author,
		Room:      m.Room,
		Type:      m.Kind,
		Timestamp: m.Timestamp,
	}
	switch m.Kind {
	case KindAudio:
		r.Audio = m.Media
	case KindImage:
		r.Image = m.Media
	default:
		r.Message = m.Text
	}
	return json.Marshal(r)
}

// UnmarshalJSON decodes the kind-tagged wire form.
func (m *Message) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	kind, err := ParseKind(string(r.Type))
	if err != nil {
		return err
	}

	*m = Message{
		ID:        r.ID,
		Author:    r.Username,
		Room:      r.Room,
		Kind:      kind,
		Timestamp: r.Timestamp,
	}
	switch kind {
	case KindAudio:
		m.Media = r.Audio
	case KindImage:
		m.Media = r.Image
	default:
		m.Text = r.Message
	}
	return nil
}
