package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubblefield/backend/internal/bubble"
	"github.com/bubblefield/backend/internal/config"
)

func testItems(ids ...string) []bubble.Item {
	items := make([]bubble.Item, len(ids))
	for i, id := range ids {
		items[i] = bubble.Item{ID: id, Name: strings.ToUpper(id), Links: []bubble.Link{{Name: "Go", URL: "https://go.dev"}}}
	}
	return items
}

// setup installs a fresh global manager and serves the stream endpoint.
func setup(t *testing.T) (*bubble.Manager, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := bubble.NewManager(context.Background(), nil, &config.Config{
		FrameRateHz:          100,
		BroadcastEveryFrames: 1,
		DefaultArenaWidth:    1000,
		DefaultArenaHeight:   800,
		SessionIdleSeconds:   300,
	})
	m.ReplaceItems(context.Background(), testItems("a", "b", "c"))
	prev := bubble.Sessions
	bubble.Sessions = m

	r := gin.New()
	r.GET("/sessions/:token/ws", HandleWebSocket)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		m.Shutdown()
		bubble.Sessions = prev
	})
	return m, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + token + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, data interface{}) {
	t.Helper()
	payload, err := encode(typ, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

// readUntil reads messages until one of type typ satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", typ)

		var msg WSMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		if msg.Type == typ && (match == nil || match(msg.Data)) {
			return msg.Data
		}
	}
}

func decodeSnapshot(t *testing.T, raw json.RawMessage) bubble.Snapshot {
	t.Helper()
	var snap bubble.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	return snap
}

func errorMessage(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var data ErrorData
	require.NoError(t, json.Unmarshal(raw, &data))
	return data.Message
}

func TestStreamSendsFrames(t *testing.T) {
	m, srv := setup(t)
	s, err := m.CreateSession(0, 0)
	require.NoError(t, err)

	conn := dial(t, srv, s.Token)

	first := decodeSnapshot(t, readUntil(t, conn, TypeFrame, nil))
	assert.Len(t, first.Bodies, 3)
	assert.Equal(t, 1000.0, first.Width)

	next := decodeSnapshot(t, readUntil(t, conn, TypeFrame, func(raw json.RawMessage) bool {
		return decodeSnapshot(t, raw).Tick > first.Tick
	}))
	assert.Greater(t, next.Tick, first.Tick)
	assert.Eventually(t, func() bool { return SessionHub.RoomSize(s.Token) == 1 }, time.Second, 10*time.Millisecond)
}

func TestUnknownSessionIsRejected(t *testing.T) {
	_, srv := setup(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHoverCommands(t *testing.T) {
	m, srv := setup(t)
	s, err := m.CreateSession(0, 0)
	require.NoError(t, err)
	conn := dial(t, srv, s.Token)

	send(t, conn, TypeHover, HoverData{ID: "zzz"})
	msg := errorMessage(t, readUntil(t, conn, TypeError, nil))
	assert.Equal(t, bubble.ErrUnknownBody.Error(), msg)

	send(t, conn, TypeHover, HoverData{ID: "b"})
	snap := decodeSnapshot(t, readUntil(t, conn, TypeFrame, func(raw json.RawMessage) bool {
		return decodeSnapshot(t, raw).Hovered == "b"
	}))
	for _, b := range snap.Bodies {
		if b.ID == "b" {
			assert.True(t, b.Hovered)
			assert.Equal(t, bubble.HoverRadius, b.DisplayRadius)
		}
	}

	send(t, conn, TypeUnhover, nil)
	readUntil(t, conn, TypeFrame, func(raw json.RawMessage) bool {
		return decodeSnapshot(t, raw).Hovered == ""
	})
}

func TestResizeAndVisibility(t *testing.T) {
	m, srv := setup(t)
	s, err := m.CreateSession(0, 0)
	require.NoError(t, err)
	conn := dial(t, srv, s.Token)

	send(t, conn, TypeResize, ResizeData{Width: 300, Height: 200})
	readUntil(t, conn, TypeFrame, func(raw json.RawMessage) bool {
		snap := decodeSnapshot(t, raw)
		return snap.Width == 300 && snap.Height == 200
	})

	send(t, conn, TypeResize, ResizeData{Width: -1, Height: 200})
	assert.Equal(t, bubble.ErrInvalidArenaSize.Error(), errorMessage(t, readUntil(t, conn, TypeError, nil)))

	hidden := false
	send(t, conn, TypeVisibility, VisibilityData{Visible: &hidden})
	assert.Eventually(t, func() bool { return s.Status() == bubble.StatusPaused }, time.Second, 5*time.Millisecond)

	send(t, conn, TypeVisibility, map[string]string{})
	assert.Equal(t, "Invalid visibility data", errorMessage(t, readUntil(t, conn, TypeError, nil)))
}

func TestMalformedMessages(t *testing.T) {
	m, srv := setup(t)
	s, err := m.CreateSession(0, 0)
	require.NoError(t, err)
	conn := dial(t, srv, s.Token)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "Invalid message", errorMessage(t, readUntil(t, conn, TypeError, nil)))

	send(t, conn, "dance", nil)
	assert.Equal(t, "Unknown message type", errorMessage(t, readUntil(t, conn, TypeError, nil)))

	send(t, conn, TypeHover, map[string]string{})
	assert.Equal(t, "Invalid hover data", errorMessage(t, readUntil(t, conn, TypeError, nil)))
}

func TestCatalogResetReachesViewers(t *testing.T) {
	m, srv := setup(t)
	s, err := m.CreateSession(0, 0)
	require.NoError(t, err)
	conn := dial(t, srv, s.Token)
	readUntil(t, conn, TypeFrame, nil)

	assert.Equal(t, 1, m.ReplaceItems(context.Background(), testItems("x", "y")))

	var reset struct {
		Bodies int `json:"bodies"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, conn, TypeCatalogReset, nil), &reset))
	assert.Equal(t, 2, reset.Bodies)

	snap := decodeSnapshot(t, readUntil(t, conn, TypeFrame, nil))
	assert.Len(t, snap.Bodies, 2)
}

func TestSessionClosedIsAnnounced(t *testing.T) {
	m, srv := setup(t)
	s, err := m.CreateSession(0, 0)
	require.NoError(t, err)
	conn := dial(t, srv, s.Token)
	readUntil(t, conn, TypeFrame, nil)
	require.Eventually(t, func() bool { return SessionHub.RoomSize(s.Token) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.CloseSession(s.Token))

	readUntil(t, conn, TypeSessionClosed, nil)
	assert.Eventually(t, func() bool { return SessionHub.RoomSize(s.Token) == 0 }, time.Second, 5*time.Millisecond)
}

func TestHandleEvent(t *testing.T) {
	m, _ := setup(t)
	s, err := m.CreateSession(0, 0)
	require.NoError(t, err)
	ctx := context.Background()

	loads := 0
	load := func(context.Context) ([]bubble.Item, error) {
		loads++
		return testItems("p", "q", "r", "s"), nil
	}

	// own events were applied when published
	handleEvent(ctx, m, bubble.Event{Type: bubble.EventCatalogUpdated, Origin: m.InstanceID}, load)
	assert.Equal(t, 0, loads)

	handleEvent(ctx, m, bubble.Event{Type: bubble.EventCatalogUpdated, Origin: "other"}, load)
	assert.Equal(t, 1, loads)
	assert.Len(t, m.Items(), 4)

	failing := func(context.Context) ([]bubble.Item, error) { return nil, errors.New("db down") }
	handleEvent(ctx, m, bubble.Event{Type: bubble.EventCatalogUpdated, Origin: "other"}, failing)
	assert.Len(t, m.Items(), 4)

	handleEvent(ctx, m, bubble.Event{Type: bubble.EventSessionClosed, Origin: "other", Token: s.Token}, load)
	_, err = m.GetSession(s.Token)
	assert.ErrorIs(t, err, bubble.ErrSessionNotFound)

	// nil manager and unknown types are ignored
	handleEvent(ctx, nil, bubble.Event{Type: bubble.EventCatalogUpdated}, load)
	handleEvent(ctx, m, bubble.Event{Type: "mystery", Origin: "other"}, load)
}

func TestStartEventSubscriberWithoutRedis(t *testing.T) {
	SetRedisClient(nil)
	assert.NoError(t, StartEventSubscriber(context.Background(), nil))
}
