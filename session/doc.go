// Package session runs one live voice conversation.
//
// A Session binds a room, a shared conversation state and exactly one active
// agent at a time. Three goroutines cooperate per session: the input loop
// feeds room audio to the activity detector and the recognizer, the playout
// loop generates, synthesizes and publishes one speech at a time, and the
// control loop handles user utterances, tool batches and directives.
//
// The HandoffController swaps the active agent on transfer directives and the
// TerminationGate moves the session through Active, Farewelling and Closed.
// A Registry tracks the live sessions of a worker process.
package session
