package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/voicemesh/core"
)

// TranscriptName is the artifact name of a session transcript.
const TranscriptName = "transcript.json"

// Transcript is the persisted record of a finished session.
type Transcript struct {
	SessionID string         `json:"session_id"`
	RoomID    string         `json:"room_id"`
	Agents    []string       `json:"agents"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Messages  []core.Message `json:"messages"`
}

// SaveTranscript stores t under TranscriptName.
func SaveTranscript(ctx context.Context, store core.ArtifactStore, t Transcript) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	return store.Save(ctx, t.SessionID, TranscriptName, data)
}

// LoadTranscript reads the transcript of a session.
func LoadTranscript(ctx context.Context, store core.ArtifactStore, sessionID string) (*Transcript, error) {
	data, err := store.Load(ctx, sessionID, TranscriptName)
	if err != nil {
		return nil, err
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}

	return &t, nil
}
