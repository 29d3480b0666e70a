package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/room"
)

// Room is an in-memory room.Room. Published frames, transcripts and
// playback clears are recorded.
type Room struct {
	id    string
	audio chan []byte
	done  chan struct{}

	mu          sync.Mutex
	closed      bool
	err         error
	frames      [][]byte
	transcripts []room.Transcript
	clears      int
}

// NewRoom creates an open room.
func NewRoom(id string) *Room {
	return &Room{
		id:    id,
		audio: make(chan []byte, 256),
		done:  make(chan struct{}),
	}
}

// ID implements room.Room.
func (r *Room) ID() string { return r.id }

// Audio implements room.Room.
func (r *Room) Audio() <-chan []byte { return r.audio }

// Publish implements room.Room.
func (r *Room) Publish(_ context.Context, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return room.ErrClosed
	}

	r.frames = append(r.frames, append([]byte(nil), frame...))

	return nil
}

// ClearPlayback implements room.Room.
func (r *Room) ClearPlayback(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return room.ErrClosed
	}

	r.clears++

	return nil
}

// PublishTranscript implements room.Room.
func (r *Room) PublishTranscript(_ context.Context, t room.Transcript) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return room.ErrClosed
	}

	r.transcripts = append(r.transcripts, t)

	return nil
}

// Done implements room.Room.
func (r *Room) Done() <-chan struct{} { return r.done }

// Err implements room.Room.
func (r *Room) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

// SendAudio delivers a frame from the remote participant. It returns false
// once the room is closed.
func (r *Room) SendAudio(frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	r.audio <- frame

	return true
}

// Hangup simulates the participant leaving without a teardown.
func (r *Room) Hangup() {
	r.shutdown(fmt.Errorf("%w: participant left", core.ErrTransportLost))
}

// Delete closes the room the way a successful DeleteRoom does.
func (r *Room) Delete() { r.shutdown(nil) }

// Closed reports whether the room was deleted or hung up.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.closed
}

// Frames returns the published audio frames.
func (r *Room) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([][]byte(nil), r.frames...)
}

// Spoken returns the published frames as strings. Frames produced by
// Synthesizer carry the synthesized text.
func (r *Room) Spoken() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, string(f))
	}

	return out
}

// Transcripts returns the published transcripts.
func (r *Room) Transcripts() []room.Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]room.Transcript(nil), r.transcripts...)
}

// Clears returns how often playback was cleared.
func (r *Room) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.clears
}

func (r *Room) shutdown(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.closed = true
	r.err = err
	close(r.audio)
	close(r.done)
}

// RoomService is an in-memory room.Service. Deleting a known room closes it
// unless Fail is set.
type RoomService struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	deleted []string
	fail    error
}

// NewRoomService creates a service that owns rooms.
func NewRoomService(rooms ...*Room) *RoomService {
	s := &RoomService{rooms: make(map[string]*Room, len(rooms))}
	for _, r := range rooms {
		s.rooms[r.ID()] = r
	}

	return s
}

// Fail makes every following DeleteRoom return err.
func (s *RoomService) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fail = err
}

// DeleteRoom implements room.Service.
func (s *RoomService) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, roomID)
	fail := s.fail
	r, ok := s.rooms[roomID]
	s.mu.Unlock()

	if fail != nil {
		return fail
	}

	if !ok {
		return room.ErrNotFound
	}

	r.Delete()

	return nil
}

// Deleted returns the ids passed to DeleteRoom, failed attempts included.
func (s *RoomService) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.deleted...)
}

// RoomSource is a RoomService that also hands out rooms, like a transport hub.
type RoomSource struct {
	*RoomService
	ch chan room.Room
}

// NewRoomSource creates an empty source.
func NewRoomSource() *RoomSource {
	return &RoomSource{RoomService: NewRoomService(), ch: make(chan room.Room, 16)}
}

// Connect registers r and delivers it to the consumer of Rooms.
func (s *RoomSource) Connect(r *Room) {
	s.mu.Lock()
	s.rooms[r.ID()] = r
	s.mu.Unlock()

	s.ch <- r
}

// Rooms delivers connected rooms.
func (s *RoomSource) Rooms() <-chan room.Room { return s.ch }
