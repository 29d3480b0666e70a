// Package core provides the foundational domain types shared by every
// voicemesh package:
//
//   - Agents (personas with instructions, tools, history and a voice)
//   - Tools and the ToolContext handed to them (shared state, directives)
//   - Directives (continue, transfer to another agent, terminate)
//   - Runtime and SpeechHandle, the surface a session exposes to agents/tools
//   - Messages, History and observable Events
//   - The error taxonomy (unknown tool, handoff conflict, teardown, generation)
//
// Concrete agents, the session runtime and the transport adapters live in
// their own packages and depend on these contracts only.
package core
