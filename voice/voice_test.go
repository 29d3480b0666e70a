package voice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat_Durations(t *testing.T) {
	f := Format{SampleRate: 16000, Channels: 1}

	assert.Equal(t, 640, f.BytesForDurationMs(20))
	assert.Equal(t, 20, f.DurationMs(640))
	assert.Equal(t, time.Second, f.Duration(32000))
	assert.Equal(t, 0, Format{}.DurationMs(10))
}

func TestStream_SendAfterCloseFails(t *testing.T) {
	s := NewStream()
	for i := 0; i < cap(s.chunks); i++ {
		assert.True(t, s.Send([]byte{1}))
	}

	_ = s.Close()
	_ = s.Close()

	assert.False(t, s.Send([]byte{2}))
}

func TestStreamFromChunks(t *testing.T) {
	s := StreamFromChunks([]byte{1}, []byte{2})

	var got [][]byte
	for c := range s.Chunks() {
		got = append(got, c)
	}
	assert.Equal(t, [][]byte{{1}, {2}}, got)
	assert.NoError(t, s.Err())
}
