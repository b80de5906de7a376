package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/pkg/store"
)

func websocketConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConnCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server websocket connection")
	}

	cleanup := func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
		srv.Close()
	}

	return serverConn, clientConn, cleanup
}

func TestBroadcastAssignsTypeAndSequence(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "c1", Conn: serverConn, Authenticated: true})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	broadcaster.Broadcast("server.shutdown", map[string]interface{}{"ok": true})

	var event EventMessage
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&event))

	assert.Equal(t, "event", event.Type)
	assert.Equal(t, "server.shutdown", event.Event)
	assert.NotZero(t, event.Seq)
	assert.NotZero(t, event.Timestamp)
}

func TestBroadcastSkipsUnauthenticatedClients(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "c1", Conn: serverConn, Authenticated: false})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	broadcaster.Broadcast("server.shutdown", nil)

	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var event EventMessage
	assert.Error(t, clientConn.ReadJSON(&event))
}

func TestBroadcastPlanEventFiltersBySubscription(t *testing.T) {
	matchConn, matchClient, cleanup1 := websocketConnPair(t)
	defer cleanup1()
	otherConn, otherClient, cleanup2 := websocketConnPair(t)
	defer cleanup2()

	registry := NewClientRegistry()

	matching := &Client{ID: "match", Conn: matchConn, Authenticated: true}
	matching.Subscribe("u1", "2026-08-30")
	registry.Add(matching)

	other := &Client{ID: "other", Conn: otherConn, Authenticated: true}
	other.Subscribe("u2", "")
	registry.Add(other)

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	broadcaster.BroadcastPlanEvent(store.PlanEvent{
		Change: "completed",
		Plan:   &store.Plan{ID: "p1", UserID: "u1", Date: "2026-08-30", Status: store.PlanStatusApproved},
	})

	var event EventMessage
	require.NoError(t, matchClient.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, matchClient.ReadJSON(&event))
	assert.Equal(t, "plan.changed", event.Event)

	require.NoError(t, otherClient.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	assert.Error(t, otherClient.ReadJSON(&event))
}

func TestBroadcastPlanEventIgnoresUnsubscribed(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "c1", Conn: serverConn, Authenticated: true})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	broadcaster.BroadcastPlanEvent(store.PlanEvent{
		Change: "created",
		Plan:   &store.Plan{ID: "p1", UserID: "u1", Date: "2026-08-30"},
	})

	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var event EventMessage
	assert.Error(t, clientConn.ReadJSON(&event))
}

func TestClientWantsFilter(t *testing.T) {
	c := &Client{ID: "c1"}
	assert.False(t, c.Wants("u1", "2026-08-30"))

	c.Subscribe("u1", "")
	assert.True(t, c.Wants("u1", "2026-08-30"))
	assert.True(t, c.Wants("u1", "2026-08-31"))
	assert.False(t, c.Wants("u2", "2026-08-30"))

	c.Subscribe("u1", "2026-08-30")
	assert.False(t, c.Wants("u1", "2026-08-31"))

	c.Unsubscribe()
	assert.False(t, c.Wants("u1", "2026-08-30"))
}

func TestRegistryCounts(t *testing.T) {
	registry := NewClientRegistry()
	registry.Add(&Client{ID: "a", Authenticated: true})
	registry.Add(&Client{ID: "b"})

	assert.Equal(t, 2, registry.Count())
	assert.Len(t, registry.GetAuthenticatedClients(), 1)

	registry.Remove("a")
	assert.Equal(t, 1, registry.Count())
	_, ok := registry.Get("b")
	assert.True(t, ok)
}
