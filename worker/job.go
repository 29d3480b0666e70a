package worker

import (
	"context"
	"fmt"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/logging"
	"github.com/hupe1980/voicemesh/room"
	"github.com/hupe1980/voicemesh/session"
	"github.com/hupe1980/voicemesh/voice"
)

// Entrypoint runs one job. It returns when the room's conversation is over.
type Entrypoint func(ctx context.Context, job *JobContext) error

// JobContext carries what a job needs to start a session on its room.
type JobContext struct {
	Room  room.Room
	Rooms room.Service
	// Detector is the prewarmed process-wide VAD.
	Detector voice.ActivityDetector
	Logger   logging.Logger

	worker *Worker
}

// SessionOptions returns the worker-wide session options: the configured
// ones followed by barge-in detection, metrics and logging.
func (j *JobContext) SessionOptions() []func(o *session.Options) {
	w := j.worker

	opts := append([]func(o *session.Options){}, w.opts.SessionOptions...)

	return append(opts,
		session.WithDetector(j.Detector, w.opts.VAD),
		session.WithRecorder(w.metrics),
		session.WithLogger(j.Logger),
	)
}

// RunSession runs a session on the job's room starting with lead, keeping it
// in the worker's registry while it runs.
func RunSession[S any](ctx context.Context, job *JobContext, state *S, lead core.Agent[S], optFns ...func(o *session.Options)) error {
	sess, err := session.New[S](job.Room, job.Rooms, state, append(job.SessionOptions(), optFns...)...)
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}

	reg := job.worker.sessions
	if err := reg.Add(sess); err != nil {
		return err
	}
	defer reg.Remove(sess.ID())

	return sess.Run(ctx, lead)
}
