package vad

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func tone(samples int, amplitude float64) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * 32767 * math.Sin(float64(i)/4))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func silence(samples int) []byte { return make([]byte, samples*2) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = 16000
	cfg.MinSpeechMs = 40
	cfg.SilenceMs = 60
	cfg.PrefixPaddingMs = 20
	return cfg
}

func TestRMSEnergy(t *testing.T) {
	assert.Zero(t, RMSEnergy(nil))
	assert.Zero(t, RMSEnergy(silence(160)))
	assert.Greater(t, RMSEnergy(tone(160, 0.5)), 0.2)
}

func TestRMSEnergy_Bounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pcm := rapid.SliceOf(rapid.Byte()).Draw(t, "pcm")
		e := RMSEnergy(pcm)
		if e < 0 || e > 1.0001 {
			t.Fatalf("energy out of range: %v", e)
		}
	})
}

func TestEnergy_IsSpeech(t *testing.T) {
	det, err := NewEnergy(testConfig())
	require.NoError(t, err)

	assert.True(t, det.IsSpeech(tone(320, 0.3)))
	assert.False(t, det.IsSpeech(silence(320)))
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Threshold = 0
	assert.Error(t, cfg.Validate())

	_, err := NewEnergy(cfg)
	assert.Error(t, err)
}

func TestPrewarm_LoadsOnce(t *testing.T) {
	first, err := Prewarm(testConfig())
	require.NoError(t, err)

	other := testConfig()
	other.Threshold = 0.5
	second, err := Prewarm(other)
	require.NoError(t, err)

	assert.Same(t, first, second)

	shared, ok := Shared()
	require.True(t, ok)
	assert.Same(t, first, shared)
}

func TestSegmenter_DetectsUtterance(t *testing.T) {
	cfg := testConfig()
	det, err := NewEnergy(cfg)
	require.NoError(t, err)
	seg := NewSegmenter(cfg, det)

	frame := 320 // 20ms at 16kHz
	var events []SegmentEvent
	push := func(pcm []byte) {
		if ev, ok := seg.Push(pcm); ok {
			events = append(events, ev)
		}
	}

	push(silence(frame))
	for i := 0; i < 5; i++ {
		push(tone(frame, 0.4))
	}
	assert.True(t, seg.InSpeech())
	for i := 0; i < 4; i++ {
		push(silence(frame))
	}

	require.Len(t, events, 2)
	assert.Equal(t, SpeechStarted, events[0].Type)
	assert.Equal(t, SpeechEnded, events[1].Type)
	assert.NotEmpty(t, events[1].Audio)
	assert.False(t, seg.InSpeech())
}

func TestSegmenter_IgnoresShortBlips(t *testing.T) {
	cfg := testConfig()
	det, err := NewEnergy(cfg)
	require.NoError(t, err)
	seg := NewSegmenter(cfg, det)

	_, ok := seg.Push(tone(320, 0.4))
	assert.False(t, ok)
	_, ok = seg.Push(silence(320))
	assert.False(t, ok)
	_, ok = seg.Flush()
	assert.False(t, ok)
}
