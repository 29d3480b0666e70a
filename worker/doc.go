// Package worker hosts voice sessions in one process. A Worker prewarms the
// VAD once, accepts rooms from a RoomSource (a WebSocket hub by default),
// admits them against a rate limit and a session cap, and runs the
// entrypoint once per admitted room. It serves /metrics for Prometheus,
// /healthz and /sessions, and on shutdown ends every live session with a
// farewell before returning.
//
//	w, err := worker.New(func(ctx context.Context, job *worker.JobContext) error {
//	    lead, _ := triage.NewLead("sales")
//	    return worker.RunSession(ctx, job, &triage.State{}, lead)
//	}, func(o *worker.Options) { o.SessionOptions = sessionOpts })
//	...
//	err = w.Run(ctx)
package worker
