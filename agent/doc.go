// Package agent provides VoiceAgent, the standard core.Agent implementation:
// a named persona with (possibly state dependent) instructions, an ordered
// tool set with a name lookup table, its own conversation history, an
// optional voice override and lifecycle hooks.
//
// Agents are cheap to build and are meant to be constructed right before they
// are activated, typically inside the tool that transfers to them:
//
//	specialist := agent.New[triage.State]("sales",
//		agent.WithInstruction(agent.NewInstructionFromText[triage.State]("You are a sales specialist...")),
//		agent.WithTools(triage.FinishTool()),
//	)
//	tc.TransferTo(specialist, "Great! I'll transfer you to our sales agent now.", true)
package agent
