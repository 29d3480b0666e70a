// Package logging provides a minimal logging interface and adapters for voicemesh.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that sessions, routers and workers use for observability. Arguments after the
// message are alternating key/value pairs. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StructuredLogger with session/component context and domain helpers
//   - ZapAdapter wrapping go.uber.org/zap
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	sess := session.New[triage.State](room, rooms, session.WithLogger(logger))
package logging
