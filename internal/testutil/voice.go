package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/voicemesh/voice"
)

// Synthesizer is a voice.Synthesizer that emits the text itself as a single
// audio chunk, so published frames can be read back with Room.Spoken.
type Synthesizer struct {
	name string

	mu    sync.Mutex
	texts []string
	gate  chan struct{}
	fail  error
	delay time.Duration
}

// NewSynthesizer creates a synthesizer identified by name.
func NewSynthesizer(name string) *Synthesizer {
	return &Synthesizer{name: name}
}

// Name implements voice.Synthesizer.
func (s *Synthesizer) Name() string { return s.name }

// Hold makes subsequent syntheses wait until Release or cancellation, which
// keeps speech in flight for interruption tests.
func (s *Synthesizer) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gate == nil {
		s.gate = make(chan struct{})
	}
}

// Release lets held syntheses proceed.
func (s *Synthesizer) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// Fail makes subsequent syntheses return err.
func (s *Synthesizer) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fail = err
}

// Delay adds a pause before the chunk of every synthesis.
func (s *Synthesizer) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delay = d
}

// Texts returns every text passed to Synthesize, in call order.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.texts...)
}

// Synthesize implements voice.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*voice.Stream, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	gate, fail, delay := s.gate, s.fail, s.delay
	s.mu.Unlock()

	if fail != nil {
		return nil, fail
	}

	stream := voice.NewStream()

	go func() {
		defer stream.FinishSending()

		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				stream.SetError(ctx.Err())
				return
			}
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				stream.SetError(ctx.Err())
				return
			}
		}

		stream.Send([]byte(text))
	}()

	return stream, nil
}

// Recognizer is a voice.Recognizer fed by the test through Say.
type Recognizer struct {
	utterances chan voice.Utterance

	mu     sync.Mutex
	frames int
}

// NewRecognizer creates a recognizer.
func NewRecognizer() *Recognizer {
	return &Recognizer{utterances: make(chan voice.Utterance, 64)}
}

// Name implements voice.Recognizer.
func (r *Recognizer) Name() string { return "fake" }

// Say queues a final utterance.
func (r *Recognizer) Say(text string) {
	r.utterances <- voice.Utterance{Text: text, Final: true, At: time.Now()}
}

// Partial queues an interim utterance.
func (r *Recognizer) Partial(text string) {
	r.utterances <- voice.Utterance{Text: text, At: time.Now()}
}

// Frames returns how many audio frames were consumed.
func (r *Recognizer) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.frames
}

// Recognize implements voice.Recognizer. The returned channel closes when
// audio ends or ctx is cancelled.
func (r *Recognizer) Recognize(ctx context.Context, audio <-chan []byte) (<-chan voice.Utterance, error) {
	out := make(chan voice.Utterance)
	ended := make(chan struct{})

	go func() {
		defer close(ended)

		for range audio {
			r.mu.Lock()
			r.frames++
			r.mu.Unlock()
		}
	}()

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ended:
				return
			case u := <-r.utterances:
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Detector is a voice.ActivityDetector that treats frames starting with
// SpeechMarker as speech.
type Detector struct{}

// SpeechMarker is the first byte of a SpeechFrame.
const SpeechMarker = 0xFF

// IsSpeech implements voice.ActivityDetector.
func (Detector) IsSpeech(frame []byte) bool {
	return len(frame) > 0 && frame[0] == SpeechMarker
}

// SpeechFrame returns a frame Detector classifies as speech.
func SpeechFrame() []byte { return []byte{SpeechMarker, 1, 2, 3} }

// SilenceFrame returns a frame Detector classifies as silence.
func SilenceFrame() []byte { return []byte{0, 0, 0, 0} }
