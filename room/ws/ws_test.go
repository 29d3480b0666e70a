package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/room"
)

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func nextRoom(t *testing.T, hub *Hub) room.Room {
	t.Helper()

	select {
	case rm := <-hub.Rooms():
		return rm
	case <-time.After(2 * time.Second):
		t.Fatal("no room accepted")
		return nil
	}
}

func TestHub_AudioBothWays(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "r-1")
	rm := nextRoom(t, hub)
	assert.Equal(t, "r-1", rm.ID())
	assert.Equal(t, []string{"r-1"}, hub.ActiveRooms())

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}))
	select {
	case frame := <-rm.Audio():
		assert.Equal(t, []byte{1, 2, 3, 4}, frame)
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound audio")
	}

	require.NoError(t, rm.Publish(context.Background(), []byte{9, 9}))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{9, 9}, data)

	require.NoError(t, rm.PublishTranscript(context.Background(), room.Transcript{Role: "assistant", Agent: "lead", Text: "hello", Final: true}))
	mt, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "transcript", msg["type"])
	assert.Equal(t, "hello", msg["text"])
}

func TestHub_DeleteRoomClosesNormally(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "r-2")
	rm := nextRoom(t, hub)

	require.NoError(t, hub.DeleteRoom(context.Background(), "r-2"))

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	<-rm.Done()
	assert.NoError(t, rm.Err())
	assert.ErrorIs(t, rm.Publish(context.Background(), []byte{1}), room.ErrClosed)
	assert.ErrorIs(t, hub.DeleteRoom(context.Background(), "r-2"), room.ErrNotFound)
}

func TestHub_HangupIsTransportLoss(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "r-3")
	rm := nextRoom(t, hub)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hangup"}`)))

	select {
	case <-rm.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room not closed")
	}
	assert.ErrorIs(t, rm.Err(), core.ErrTransportLost)
	assert.True(t, IsTransportLost(rm.Err()))

	for range rm.Audio() {
	}
}

func TestRoomID(t *testing.T) {
	assert.Equal(t, "abc", roomID(httptest.NewRequest("GET", "/rooms/abc", nil)))
	assert.Equal(t, "q", roomID(httptest.NewRequest("GET", "/rooms?room=q", nil)))
	assert.NotEmpty(t, roomID(httptest.NewRequest("GET", "/rooms", nil)))
}
