// Package testutil contains in-memory fakes of the session collaborators
// (room, room service, recognizer, synthesizer, activity detector) and an
// event recorder. They are deterministic, safe for concurrent use and not
// intended for production usage.
package testutil
