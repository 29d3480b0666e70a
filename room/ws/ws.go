// Package ws implements room.Room and room.Service on WebSockets.
//
// A client connects to the Hub (for example at /rooms?room=<id>). Binary
// frames carry PCM16 mono audio in both directions; text frames carry JSON
// control messages:
//
//	server -> client: {"type":"transcript", ...}, {"type":"clear"}
//	client -> server: {"type":"hangup"}
//
// Deleting a room closes the connection with a normal closure.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/logging"
	"github.com/hupe1980/voicemesh/room"
)

// Options configure the hub.
type Options struct {
	ReadLimit    int64
	WriteTimeout time.Duration
	PingInterval time.Duration
	// AudioBuffer is the number of inbound frames buffered per room.
	AudioBuffer int
	// QueueSize is the number of outbound frames buffered per room.
	QueueSize   int
	CheckOrigin func(r *http.Request) bool
	Logger      logging.Logger
}

// Hub accepts WebSocket connections, turns each into a Room, hands new rooms
// to the worker through Rooms and deletes them on request.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader

	mu     sync.Mutex
	rooms  map[string]*Room
	newCh  chan room.Room
	closed bool
}

// NewHub creates a hub.
func NewHub(optFns ...func(o *Options)) *Hub {
	opts := Options{
		ReadLimit:    1 << 20,
		WriteTimeout: 5 * time.Second,
		PingInterval: 20 * time.Second,
		AudioBuffer:  256,
		QueueSize:    512,
		CheckOrigin:  func(*http.Request) bool { return true },
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Hub{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		rooms:    map[string]*Room{},
		newCh:    make(chan room.Room, 16),
	}
}

// Rooms delivers newly connected rooms.
func (h *Hub) Rooms() <-chan room.Room { return h.newCh }

// ServeHTTP upgrades the request and registers the room. The room id is taken
// from the "room" query parameter or the last path segment; a random id is
// used when neither is set.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := roomID(r)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "hub closed", http.StatusServiceUnavailable)
		return
	}
	if _, exists := h.rooms[id]; exists {
		h.mu.Unlock()
		http.Error(w, "room already active", http.StatusConflict)
		return
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opts.Logger.Warn("room.ws.upgrade_failed", "room_id", id, "error", err.Error())
		return
	}
	if h.opts.ReadLimit > 0 {
		conn.SetReadLimit(h.opts.ReadLimit)
	}

	rm := newRoom(id, conn, h.opts, func() { h.forget(id) })

	h.mu.Lock()
	if _, exists := h.rooms[id]; exists || h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.rooms[id] = rm
	h.mu.Unlock()

	rm.start()
	h.opts.Logger.Info("room.ws.connected", "room_id", id, "remote", r.RemoteAddr)

	select {
	case h.newCh <- rm:
	default:
		h.opts.Logger.Warn("room.ws.backlog_full", "room_id", id)
		rm.shutdown(fmt.Errorf("%w: worker backlog full", core.ErrTransportLost))
	}
}

// DeleteRoom closes the room's connection.
func (h *Hub) DeleteRoom(_ context.Context, roomID string) error {
	h.mu.Lock()
	rm, ok := h.rooms[roomID]
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", room.ErrNotFound, roomID)
	}

	rm.shutdown(nil)
	h.opts.Logger.Info("room.ws.deleted", "room_id", roomID)

	return nil
}

// ActiveRooms returns the ids of connected rooms.
func (h *Hub) ActiveRooms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Close disconnects every room and stops accepting connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	rooms := make([]*Room, 0, len(h.rooms))
	for _, rm := range h.rooms {
		rooms = append(rooms, rm)
	}
	h.mu.Unlock()

	for _, rm := range rooms {
		rm.shutdown(fmt.Errorf("%w: hub closed", core.ErrTransportLost))
	}
}

func (h *Hub) forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.rooms, id)
}

func roomID(r *http.Request) string {
	if id := r.URL.Query().Get("room"); id != "" {
		return id
	}
	path := strings.Trim(r.URL.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if path != "" && path != "rooms" {
		return path
	}
	return uuid.NewString()
}

type outboundFrame struct {
	messageType int
	data        []byte
}

type controlMessage struct {
	Type string `json:"type"`
	room.Transcript
}

// Room is a WebSocket backed room.Room.
type Room struct {
	id     string
	conn   *websocket.Conn
	opts   Options
	forget func()

	audio chan []byte
	out   chan outboundFrame
	done  chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func newRoom(id string, conn *websocket.Conn, opts Options, forget func()) *Room {
	return &Room{
		id:     id,
		conn:   conn,
		opts:   opts,
		forget: forget,
		audio:  make(chan []byte, opts.AudioBuffer),
		out:    make(chan outboundFrame, opts.QueueSize),
		done:   make(chan struct{}),
	}
}

func (r *Room) start() {
	go r.readLoop()
	go r.writeLoop()
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Audio returns inbound user audio.
func (r *Room) Audio() <-chan []byte { return r.audio }

// Done is closed once the room is gone.
func (r *Room) Done() <-chan struct{} { return r.done }

// Err returns why the room closed.
func (r *Room) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	return r.err
}

// Publish queues one outbound audio frame.
func (r *Room) Publish(ctx context.Context, frame []byte) error {
	return r.enqueue(ctx, outboundFrame{messageType: websocket.BinaryMessage, data: frame})
}

// ClearPlayback tells the client to drop buffered agent audio and discards
// audio frames not yet written. Queued control frames are kept in order.
func (r *Room) ClearPlayback(ctx context.Context) error {
	var keep []outboundFrame

drain:
	for {
		select {
		case f := <-r.out:
			if f.messageType != websocket.BinaryMessage {
				keep = append(keep, f)
			}
		default:
			break drain
		}
	}

	for _, f := range keep {
		if err := r.enqueue(ctx, f); err != nil {
			return err
		}
	}

	return r.sendControl(ctx, controlMessage{Type: "clear"})
}

// PublishTranscript sends a transcript control message.
func (r *Room) PublishTranscript(ctx context.Context, t room.Transcript) error {
	return r.sendControl(ctx, controlMessage{Type: "transcript", Transcript: t})
}

func (r *Room) sendControl(ctx context.Context, msg controlMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.enqueue(ctx, outboundFrame{messageType: websocket.TextMessage, data: b})
}

func (r *Room) enqueue(ctx context.Context, f outboundFrame) error {
	select {
	case <-r.done:
		return room.ErrClosed
	default:
	}

	select {
	case r.out <- f:
		return nil
	case <-r.done:
		return room.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) readLoop() {
	defer close(r.audio)

	for {
		messageType, data, err := r.conn.ReadMessage()
		if err != nil {
			r.shutdown(fmt.Errorf("%w: %v", core.ErrTransportLost, err))
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			select {
			case r.audio <- data:
			case <-r.done:
				return
			}
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				r.opts.Logger.Debug("room.ws.bad_control", "room_id", r.id, "error", err.Error())
				continue
			}
			if msg.Type == "hangup" {
				r.shutdown(fmt.Errorf("%w: participant hung up", core.ErrTransportLost))
				return
			}
		}
	}
}

func (r *Room) writeLoop() {
	ping := time.NewTicker(r.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.done:
			_ = r.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(r.opts.WriteTimeout))
			_ = r.conn.Close()
			return
		case <-ping.C:
			if err := r.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(r.opts.WriteTimeout)); err != nil {
				r.shutdown(fmt.Errorf("%w: %v", core.ErrTransportLost, err))
			}
		case f := <-r.out:
			if err := r.conn.SetWriteDeadline(time.Now().Add(r.opts.WriteTimeout)); err != nil {
				r.shutdown(fmt.Errorf("%w: %v", core.ErrTransportLost, err))
				continue
			}
			if err := r.conn.WriteMessage(f.messageType, f.data); err != nil {
				r.shutdown(fmt.Errorf("%w: %v", core.ErrTransportLost, err))
			}
		}
	}
}

// shutdown closes the room once; err nil marks a regular deletion.
func (r *Room) shutdown(err error) {
	r.closeOnce.Do(func() {
		r.errMu.Lock()
		r.err = err
		r.errMu.Unlock()

		close(r.done)
		if r.forget != nil {
			r.forget()
		}
	})
}

// IsTransportLost reports whether err marks an abnormal disconnect.
func IsTransportLost(err error) bool { return errors.Is(err, core.ErrTransportLost) }
