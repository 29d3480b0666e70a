// Package model defines the provider-agnostic language model contract used by
// voice agents.
//
// Providers (OpenAI, Anthropic) implement Model so the session runtime stays
// decoupled from vendor SDKs. Requests carry the active agent's rendered
// instructions, a snapshot of its history and its tool definitions; responses
// carry spoken text plus zero or more tool calls.
package model
