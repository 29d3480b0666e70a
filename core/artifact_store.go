package core

import "context"

// ArtifactStore persists per-session artifacts such as call transcripts.
// Implementations must be safe for concurrent use.
type ArtifactStore interface {
	Save(ctx context.Context, sessionID, name string, data []byte) error
	Load(ctx context.Context, sessionID, name string) ([]byte, error)
	List(ctx context.Context, sessionID string) ([]string, error)
}
