// Package triage provides the building blocks of a front-door / specialist
// voice flow: a shared State with participant records, the tools that fill
// it, and ready-made agents for a sales flow and an editor flow.
//
// A flow starts with its lead agent. The lead records participants with
// user_introduction and either transfers the call (user_wants_transfer,
// classify_*) or ends it (user_declines_transfer). Specialists are built
// lazily inside the transfer tool, inherit the lead's history and speak a
// fixed announcement before their first generated reply.
//
//	lead, err := triage.NewLead("sales", triage.WithSpecialistVoice(echo))
//	...
//	err = sess.Run(ctx, lead)
package triage
