package voice

import "sync"

// Stream carries synthesized audio chunks from a Synthesizer to playout.
type Stream struct {
	chunks    chan []byte
	done      chan struct{}
	errMu     sync.Mutex
	err       error
	closeOnce sync.Once
}

// NewStream creates a new synthesis stream.
func NewStream() *Stream {
	return &Stream{
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of audio chunks. It is closed by FinishSending.
func (s *Stream) Chunks() <-chan []byte {
	return s.chunks
}

// Send sends a chunk to the stream. Returns false if the stream was closed.
func (s *Stream) Send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

// FinishSending closes the chunks channel to signal completion.
func (s *Stream) FinishSending() {
	close(s.chunks)
}

// SetError records a synthesis failure.
func (s *Stream) SetError(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	s.err = err
}

// Err returns the recorded error, if any.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	return s.err
}

// Close stops the producer. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// StreamFromChunks returns a finished stream holding chunks.
func StreamFromChunks(chunks ...[]byte) *Stream {
	s := &Stream{chunks: make(chan []byte, len(chunks)), done: make(chan struct{})}
	for _, c := range chunks {
		s.chunks <- c
	}
	close(s.chunks)
	return s
}
