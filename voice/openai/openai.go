// Package openai implements voice.Synthesizer and voice.Recognizer on the
// OpenAI audio APIs: text-to-speech returning raw 24 kHz PCM, and Whisper
// transcription of VAD-segmented utterances.
package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"

	"github.com/hupe1980/voicemesh/logging"
	"github.com/hupe1980/voicemesh/voice"
	"github.com/hupe1980/voicemesh/voice/vad"
)

// SynthesizerOptions configure the TTS adapter.
type SynthesizerOptions struct {
	Model openai.SpeechModel
	Voice openai.AudioSpeechNewParamsVoice
	Speed float64
	// ChunkBytes is the size of audio chunks pushed to playout.
	ChunkBytes int
}

// Synthesizer wraps the OpenAI speech endpoint.
type Synthesizer struct {
	client *openai.Client
	opts   SynthesizerOptions
}

// NewSynthesizer creates a synthesizer using the official client. The API key
// is read from OPENAI_API_KEY.
func NewSynthesizer(optFns ...func(o *SynthesizerOptions)) *Synthesizer {
	client := openai.NewClient()
	return NewSynthesizerFromClient(&client, optFns...)
}

// NewSynthesizerFromClient creates a synthesizer from an existing client.
func NewSynthesizerFromClient(client *openai.Client, optFns ...func(o *SynthesizerOptions)) *Synthesizer {
	opts := SynthesizerOptions{
		Model:      openai.SpeechModelTTS1,
		Voice:      openai.AudioSpeechNewParamsVoiceAlloy,
		Speed:      1.0,
		ChunkBytes: voice.DefaultFormat.BytesForDurationMs(100),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Synthesizer{client: client, opts: opts}
}

// Name returns the provider identifier including the voice.
func (s *Synthesizer) Name() string { return "openai:" + string(s.opts.Voice) }

// Synthesize streams PCM audio for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*voice.Stream, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          s.opts.Model,
		Voice:          s.opts.Voice,
		Speed:          openai.Float(s.opts.Speed),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech error: %w", err)
	}

	stream := voice.NewStream()

	go func() {
		defer resp.Body.Close()
		defer stream.FinishSending()

		buf := make([]byte, s.opts.ChunkBytes)
		for {
			n, err := io.ReadFull(resp.Body, buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !stream.Send(chunk) {
					return
				}
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			if err != nil {
				stream.SetError(fmt.Errorf("openai speech stream: %w", err))
				return
			}
		}
	}()

	return stream, nil
}

// RecognizerOptions configure the Whisper adapter.
type RecognizerOptions struct {
	Model    openai.AudioModel
	Language string
	VAD      vad.Config
	Logger   logging.Logger
}

// Recognizer segments incoming audio with a VAD and transcribes each segment.
type Recognizer struct {
	client   *openai.Client
	detector voice.ActivityDetector
	opts     RecognizerOptions
}

// NewRecognizer creates a recognizer. detector is usually the process-wide
// prewarmed VAD.
func NewRecognizer(detector voice.ActivityDetector, optFns ...func(o *RecognizerOptions)) *Recognizer {
	client := openai.NewClient()
	return NewRecognizerFromClient(&client, detector, optFns...)
}

// NewRecognizerFromClient creates a recognizer from an existing client.
func NewRecognizerFromClient(client *openai.Client, detector voice.ActivityDetector, optFns ...func(o *RecognizerOptions)) *Recognizer {
	opts := RecognizerOptions{
		Model:  openai.AudioModelWhisper1,
		VAD:    vad.DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Recognizer{client: client, detector: detector, opts: opts}
}

// Name returns the provider identifier.
func (r *Recognizer) Name() string { return "openai:" + string(r.opts.Model) }

// Recognize implements voice.Recognizer. Transcription failures of a single
// segment are logged and skipped.
func (r *Recognizer) Recognize(ctx context.Context, audio <-chan []byte) (<-chan voice.Utterance, error) {
	if r.detector == nil {
		return nil, fmt.Errorf("openai recognizer: no activity detector")
	}

	out := make(chan voice.Utterance, 8)
	seg := vad.NewSegmenter(r.opts.VAD, r.detector)
	format := r.opts.VAD.Format()

	go func() {
		defer close(out)

		emit := func(pcm []byte) {
			text, err := r.transcribe(ctx, pcm, format)
			if err != nil {
				r.opts.Logger.Warn("stt.transcribe.failed", "error", err.Error())
				return
			}
			if text == "" {
				return
			}
			select {
			case out <- voice.Utterance{Text: text, Final: true, Duration: format.Duration(len(pcm)), At: time.Now()}:
			case <-ctx.Done():
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-audio:
				if !ok {
					if ev, ok := seg.Flush(); ok {
						emit(ev.Audio)
					}
					return
				}
				if ev, ok := seg.Push(frame); ok && ev.Type == vad.SpeechEnded {
					emit(ev.Audio)
				}
			}
		}
	}()

	return out, nil
}

func (r *Recognizer) transcribe(ctx context.Context, pcm []byte, format voice.Format) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(EncodeWAV(pcm, format)), "utterance.wav", "audio/wav"),
		Model: r.opts.Model,
	}
	if r.opts.Language != "" {
		params.Language = openai.String(r.opts.Language)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcription error: %w", err)
	}

	return resp.Text, nil
}

// EncodeWAV wraps PCM16 audio in a canonical RIFF/WAVE header.
func EncodeWAV(pcm []byte, format voice.Format) []byte {
	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	w(uint32(36 + len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	w(uint32(16))
	w(uint16(1)) // PCM
	w(uint16(channels))
	w(uint32(format.SampleRate))
	w(uint32(format.SampleRate * channels * 2))
	w(uint16(channels * 2))
	w(uint16(16))
	buf.WriteString("data")
	w(uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
