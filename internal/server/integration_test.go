package server_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testOrigin = "http://localhost:8080"

type testEnv struct {
	ts    *httptest.Server
	hub   *server.Hub
	wsURL string
}

// newTestEnv starts a full server over an in-memory database.
func newTestEnv(t *testing.T, configure func(*server.Config)) *testEnv {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(db) })

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.RateLimit.Burst = 100
	if configure != nil {
		configure(cfg)
	}

	tokens, err := auth.NewTokenManager(auth.TokenConfig{Secret: "integration-secret", TTL: time.Hour})
	require.NoError(t, err)
	authSvc := auth.NewService(store.NewUsers(db), auth.NewPasswordHasherWithCost(bcrypt.MinCost), tokens)

	history := store.NewMessages(db)
	hub := server.NewHub(history, server.HubOptions{
		HistoryLimit:  cfg.HistoryLimit,
		RoomRetention: cfg.Retention(),
	})
	server.StartHub(hub)

	srv := server.NewServer(*cfg, hub, authSvc, history)
	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	return &testEnv{
		ts:    ts,
		hub:   hub,
		wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := e.tryDial(token, testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn
}

func (e *testEnv) tryDial(token, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	url := e.wsURL
	if token != "" {
		url += "?token=" + token
	}
	return dialer.Dial(url, header)
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(server.Envelope{Event: event, Data: payload}))
}

// readUntil reads frames until one carries event.
func readUntil(t *testing.T, conn *websocket.Conn, event string) server.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	for {
		var env server.Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event {
			return env
		}
	}
}

// joinRoom joins room and waits until the join has fully completed.
func joinRoom(t *testing.T, conn *websocket.Conn, room, name string) {
	t.Helper()
	sendEvent(t, conn, server.EventJoinRoom, map[string]string{"roomName": room, "username": name})
	readUntil(t, conn, server.EventPreviousMessages)
	readUntil(t, conn, server.EventActiveRoomsList)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "root", method: http.MethodGet, path: "/", status: http.StatusOK},
		{name: "health", method: http.MethodGet, path: "/health", status: http.StatusOK},
		{name: "health POST", method: http.MethodPost, path: "/health", status: http.StatusMethodNotAllowed},
		{name: "ws POST", method: http.MethodPost, path: "/ws", status: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, env.ts.URL+tt.path, http.NoBody)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == http.StatusOK {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Equal(t, "Room chat server is running!", string(body))
			}
		})
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, origin := range []string{"http://evil.example", "", "javascript:alert(1)"} {
		conn, resp, err := env.tryDial("", origin)
		if err == nil {
			_ = conn.Close()
			t.Fatalf("expected origin %q to be rejected", origin)
		}
		if resp != nil {
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			_ = resp.Body.Close()
		}
	}
}

func TestChatRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.dial(t, "")
	bob := env.dial(t, "")
	carol := env.dial(t, "")

	joinRoom(t, alice, "General", "alice")
	joinRoom(t, bob, "general", "bob")
	joinRoom(t, carol, "random", "carol")

	sendEvent(t, alice, server.EventChatMessage, map[string]string{
		"username": "alice", "room": "General", "type": "text", "message": "hello there",
	})

	for _, conn := range []*websocket.Conn{alice, bob} {
		frame := readUntil(t, conn, server.EventChatMessage)
		var msg chat.Message
		require.NoError(t, json.Unmarshal(frame.Data, &msg))
		assert.Equal(t, "alice", msg.Author)
		assert.Equal(t, "general", msg.Room)
		assert.Equal(t, "hello there", msg.Text)
		assert.NotEmpty(t, msg.ID)
	}

	resp := env.get(t, "/api/rooms")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rooms map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	assert.Equal(t, []string{"alice", "bob"}, rooms["general"])
	assert.Equal(t, []string{"carol"}, rooms["random"])

	resp = env.get(t, "/api/rooms/General/messages")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs []chat.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].Text)
}

func TestHistoryReplayedToLateJoiner(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.dial(t, "")
	joinRoom(t, alice, "general", "alice")

	for _, text := range []string{"first", "second"} {
		sendEvent(t, alice, server.EventChatMessage, map[string]string{
			"username": "alice", "room": "general", "message": text,
		})
		readUntil(t, alice, server.EventChatMessage)
	}

	bob := env.dial(t, "")
	sendEvent(t, bob, server.EventJoinRoom, map[string]string{"roomName": "GENERAL", "username": "bob"})
	history := readUntil(t, bob, server.EventPreviousMessages)

	var msgs []chat.Message
	require.NoError(t, json.Unmarshal(history.Data, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
}

func TestDisconnectNotifiesRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.dial(t, "")
	bob := env.dial(t, "")

	joinRoom(t, alice, "general", "alice")
	joinRoom(t, bob, "general", "bob")

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = bob.Close()

	left := readUntil(t, alice, server.EventUserDisconnected)
	var name string
	require.NoError(t, json.Unmarshal(left.Data, &name))
	assert.Equal(t, "bob", name)

	presence := readUntil(t, alice, server.EventActiveRoomsList)
	var rooms map[string][]string
	require.NoError(t, json.Unmarshal(presence.Data, &rooms))
	assert.Equal(t, map[string][]string{"general": {"alice"}}, rooms)
}

func TestRateLimitedEventsAreRejected(t *testing.T) {
	env := newTestEnv(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	})
	conn := env.dial(t, "")

	for i := 0; i < 3; i++ {
		sendEvent(t, conn, server.EventRequestActiveRooms, map[string]string{})
	}

	errEnv := readUntil(t, conn, server.EventRoomError)
	var reason string
	require.NoError(t, json.Unmarshal(errEnv.Data, &reason))
	assert.Equal(t, "Rate limit exceeded", reason)
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	env := newTestEnv(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 256
	})
	conn := env.dial(t, "")

	sendEvent(t, conn, server.EventSetUsername, strings.Repeat("x", 1024))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatal("connection stayed open after an oversized frame")
		}
		break
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	creds := map[string]string{"username": "alice", "password": "s3cret-pass"}

	resp := env.postJSON(t, "/api/register", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var registered auth.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registered))
	assert.Equal(t, "alice", registered.Username)
	assert.NotEmpty(t, registered.Token)

	resp = env.postJSON(t, "/api/register", creds)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.postJSON(t, "/api/register", map[string]string{"username": "bob", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.postJSON(t, "/api/login", map[string]string{"username": "alice", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.postJSON(t, "/api/login", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session auth.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))

	conn := env.dial(t, session.Token)
	sendEvent(t, conn, server.EventRequestActiveRooms, map[string]string{})
	readUntil(t, conn, server.EventActiveRoomsList)

	_, resp2, err := env.tryDial("not-a-token", testOrigin)
	require.Error(t, err)
	require.NotNil(t, resp2)
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
	_ = resp2.Body.Close()
}

func TestRequireAuth(t *testing.T) {
	env := newTestEnv(t, func(cfg *server.Config) {
		cfg.RequireAuth = true
	})

	_, resp, err := env.tryDial("", testOrigin)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	reg := env.postJSON(t, "/api/register", map[string]string{"username": "carol", "password": "hunter22"})
	require.Equal(t, http.StatusCreated, reg.StatusCode)
	var session auth.Session
	require.NoError(t, json.NewDecoder(reg.Body).Decode(&session))

	conn := env.dial(t, session.Token)
	joinRoom(t, conn, "general", "carol")
}

func TestShutdownClosesConnections(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.dial(t, "")
	bob := env.dial(t, "")
	joinRoom(t, alice, "general", "alice")
	joinRoom(t, bob, "general", "bob")

	done := make(chan error, 1)
	go func() { done <- env.hub.Shutdown(5 * time.Second) }()

	for _, conn := range []*websocket.Conn{alice, bob} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		for {
			_, _, err := conn.ReadMessage()
			if err == nil {
				continue
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("connection stayed open after hub shutdown")
			}
			break
		}
	}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("hub shutdown did not return")
	}

	resp := env.get(t, "/api/rooms")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
