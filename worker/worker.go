package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/logging"
	"github.com/hupe1980/voicemesh/metrics"
	"github.com/hupe1980/voicemesh/room"
	"github.com/hupe1980/voicemesh/room/ws"
	"github.com/hupe1980/voicemesh/session"
	"github.com/hupe1980/voicemesh/voice/vad"
)

// Admission decisions reported to metrics and logs.
const (
	AdmissionAccepted    = "accepted"
	AdmissionRateLimited = "rate_limited"
	AdmissionAtCapacity  = "at_capacity"
)

// RoomSource delivers rooms to the worker and deletes them on request.
// *ws.Hub is the shipped implementation; sources that also implement
// http.Handler are mounted under /rooms/.
type RoomSource interface {
	room.Service
	Rooms() <-chan room.Room
}

// Options configure a Worker.
type Options struct {
	// Addr is the HTTP listen address; empty disables the HTTP server.
	Addr string
	// MaxSessions bounds concurrently running jobs; 0 means unbounded.
	MaxSessions int
	// AdmissionRate limits new jobs per second; 0 disables rate limiting.
	AdmissionRate  float64
	AdmissionBurst int
	// ShutdownTimeout bounds the farewell of live sessions on shutdown.
	ShutdownTimeout time.Duration
	// Farewell instructs the goodbye each live session generates on shutdown.
	Farewell string
	// VAD configures the process-wide activity detector.
	VAD vad.Config
	// Source delivers rooms; defaults to a WebSocket hub.
	Source RoomSource
	// Registry collects Prometheus metrics; defaults to a fresh registry.
	Registry *prometheus.Registry
	// Namespace prefixes metric names.
	Namespace string
	Logger    logging.Logger
	// SessionOptions apply to every session started through RunSession.
	SessionOptions []func(o *session.Options)
}

// Worker accepts rooms, admits them and runs one entrypoint job per room.
type Worker struct {
	opts     Options
	entry    Entrypoint
	source   RoomSource
	detector *vad.Energy
	metrics  *metrics.Prometheus
	sessions *session.Registry
	limiter  *rate.Limiter
	slots    chan struct{}
	logger   logging.Logger

	jobs sync.WaitGroup

	mu   sync.Mutex
	addr net.Addr
}

// New prewarms the VAD and builds a worker running entry for every admitted room.
func New(entry Entrypoint, optFns ...func(o *Options)) (*Worker, error) {
	if entry == nil {
		return nil, errors.New("worker: entrypoint is required")
	}

	opts := Options{
		Addr:            ":8080",
		ShutdownTimeout: 30 * time.Second,
		VAD:             vad.DefaultConfig(),
		Namespace:       "voicemesh",
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxSessions < 0 {
		return nil, fmt.Errorf("worker: max sessions must not be negative, got %d", opts.MaxSessions)
	}

	detector, err := vad.Prewarm(opts.VAD)
	if err != nil {
		return nil, fmt.Errorf("worker: prewarm vad: %w", err)
	}

	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	if opts.Source == nil {
		logger := opts.Logger
		opts.Source = ws.NewHub(func(o *ws.Options) { o.Logger = logger })
	}

	w := &Worker{
		opts:     opts,
		entry:    entry,
		source:   opts.Source,
		detector: detector,
		metrics:  metrics.NewPrometheus(opts.Namespace, opts.Registry),
		sessions: session.NewRegistry(),
		logger:   opts.Logger,
	}

	if opts.AdmissionRate > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(opts.AdmissionRate), max(opts.AdmissionBurst, 1))
	}

	if opts.MaxSessions > 0 {
		w.slots = make(chan struct{}, opts.MaxSessions)
	}

	return w, nil
}

// Sessions returns the registry of live sessions.
func (w *Worker) Sessions() *session.Registry { return w.sessions }

// Metrics returns the process-wide metrics recorder.
func (w *Worker) Metrics() *metrics.Prometheus { return w.metrics }

// Addr returns the address the HTTP server listens on, once Run started it.
func (w *Worker) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.addr
}

// Handler serves the room endpoint, /metrics, /healthz and /sessions.
func (w *Worker) Handler() http.Handler {
	mux := http.NewServeMux()

	if h, ok := w.source.(http.Handler); ok {
		mux.Handle("/rooms/", h)
	}

	mux.Handle("/metrics", promhttp.HandlerFor(w.opts.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/sessions", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(w.sessions.List())
	})

	return mux
}

// Run serves HTTP and dispatches rooms until ctx is cancelled, then ends
// every live session with a farewell and waits for all jobs to return.
func (w *Worker) Run(ctx context.Context) error {
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	g, gctx := errgroup.WithContext(ctx)

	if w.opts.Addr != "" {
		ln, err := net.Listen("tcp", w.opts.Addr)
		if err != nil {
			return fmt.Errorf("worker: listen %s: %w", w.opts.Addr, err)
		}

		w.mu.Lock()
		w.addr = ln.Addr()
		w.mu.Unlock()

		srv := &http.Server{Handler: w.Handler(), ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("worker: serve: %w", err)
			}

			return nil
		})

		g.Go(func() error {
			<-gctx.Done()

			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return srv.Shutdown(sctx)
		})

		w.logger.Info("worker.listening", "addr", ln.Addr().String())
	}

	g.Go(func() error {
		w.accept(gctx, jobCtx)
		return nil
	})

	err := g.Wait()

	w.shutdown(cancelJobs)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (w *Worker) accept(ctx, jobCtx context.Context) {
	rooms := w.source.Rooms()

	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-rooms:
			if !ok {
				return
			}

			w.dispatch(jobCtx, r)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, r room.Room) {
	decision := w.admit()
	w.metrics.Admission(decision)

	if decision != AdmissionAccepted {
		w.logger.Warn("worker.room.rejected", "room_id", r.ID(), "decision", decision)

		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := w.source.DeleteRoom(dctx, r.ID()); err != nil && !errors.Is(err, room.ErrNotFound) {
			w.logger.Warn("worker.room.delete_failed", "room_id", r.ID(), "error", err)
		}

		return
	}

	w.jobs.Add(1)

	go func() {
		defer w.jobs.Done()
		defer w.release()

		w.runJob(ctx, r)
	}()
}

// admit reserves a session slot when the room may start.
func (w *Worker) admit() string {
	if w.limiter != nil && !w.limiter.Allow() {
		return AdmissionRateLimited
	}

	if w.slots != nil {
		select {
		case w.slots <- struct{}{}:
		default:
			return AdmissionAtCapacity
		}
	}

	return AdmissionAccepted
}

func (w *Worker) release() {
	if w.slots != nil {
		<-w.slots
	}
}

func (w *Worker) runJob(ctx context.Context, r room.Room) {
	job := &JobContext{
		Room:     r,
		Rooms:    w.source,
		Detector: w.detector,
		Logger:   w.logger,
		worker:   w,
	}

	start := time.Now()

	w.metrics.SessionStarted()
	w.logger.Info("worker.job.started", "room_id", r.ID())

	err := w.safeEntry(ctx, job)

	result := "closed"

	switch {
	case errors.Is(err, core.ErrTransportLost):
		result = "lost"
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		result = "cancelled"
		err = nil
	case err != nil:
		result = "failed"
	}

	w.metrics.SessionEnded(result, time.Since(start))

	if err != nil {
		w.logger.Error("worker.job.failed", "room_id", r.ID(), "result", result, "error", err)
		return
	}

	w.logger.Info("worker.job.completed", "room_id", r.ID(), "duration_ms", time.Since(start).Milliseconds())
}

func (w *Worker) safeEntry(ctx context.Context, job *JobContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("entrypoint panic: %v", rec)
		}
	}()

	return w.entry(ctx, job)
}

func (w *Worker) shutdown(cancelJobs context.CancelFunc) {
	if n := w.sessions.Len(); n > 0 {
		w.logger.Info("worker.shutdown.ending_sessions", "sessions", n)

		ctx, cancel := context.WithTimeout(context.Background(), w.opts.ShutdownTimeout)
		if err := w.sessions.EndAll(ctx, w.opts.Farewell); err != nil {
			w.logger.Warn("worker.shutdown.end_failed", "error", err)
		}
		cancel()
	}

	cancelJobs()
	w.jobs.Wait()

	if c, ok := w.source.(interface{ Close() }); ok {
		c.Close()
	}

	w.logger.Info("worker.shutdown.completed")
}
