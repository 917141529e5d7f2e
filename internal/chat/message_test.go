package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRoom(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "mixed case", in: "Lobby", want: "lobby"},
		{name: "already normalized", in: "lobby", want: "lobby"},
		{name: "surrounding space", in: "  General ", want: "general"},
		{name: "unicode", in: "ÉQUIPE", want: "équipe"},
		{name: "empty", in: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeRoom(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeRoom(got), "normalization must be idempotent")
		})
	}
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindText, kind)

	kind, err = ParseKind("IMAGE")
	require.NoError(t, err)
	assert.Equal(t, KindImage, kind)

	_, err = ParseKind("video")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNewMessage_SelectsPayloadByKind(t *testing.T) {
	now := time.Now()

	text, err := NewMessage("alice", "General", KindText, "hi", "aud", "img", now)
	require.NoError(t, err)
	assert.Equal(t, "general", text.Room)
	assert.Equal(t, "hi", text.Text)
	assert.Empty(t, text.Media)

	audio, err := NewMessage("alice", "general", KindAudio, "hi", "aud", "img", now)
	require.NoError(t, err)
	assert.Empty(t, audio.Text)
	assert.Equal(t, "aud", audio.Media)

	image, err := NewMessage("alice", "general", KindImage, "", "", "img", now)
	require.NoError(t, err)
	assert.Equal(t, "img", image.Media)
}

func TestNewMessage_RejectsMalformedPayload(t *testing.T) {
	_, err := NewMessage("alice", "general", KindAudio, "only text", "", "", time.Now())
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = NewMessage("alice", "general", Kind("video"), "x", "", "", time.Now())
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNewMessage_LeavesAuthorAndRoomToStore(t *testing.T) {
	msg, err := NewMessage("", "", KindText, "hello", "", "", time.Now())
	require.NoError(t, err)

	assert.ErrorIs(t, msg.Validate(), ErrMissingAuthor)
	msg.Author = "alice"
	assert.ErrorIs(t, msg.Validate(), ErrMissingRoom)
	msg.Room = "general"
	assert.NoError(t, msg.Validate())
}

func TestMessageJSON_PopulatesOnlyKindField(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := Message{ID: "m1", Author: "bob", Room: "general", Kind: KindImage, Media: "data:image/png;base64,AAAA", Timestamp: at}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "image", fields["type"])
	assert.Equal(t, "bob", fields["username"])
	assert.Equal(t, "data:image/png;base64,AAAA", fields["image"])
	assert.NotContains(t, fields, "message")
	assert.NotContains(t, fields, "audio")

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg.Media, decoded.Media)
	assert.True(t, at.Equal(decoded.Timestamp))
}
