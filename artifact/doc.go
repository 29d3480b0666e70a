// Package artifact contains implementations of core.ArtifactStore and the
// transcript artifact written when a session closes.
//
// The ArtifactStore interface lives in the core package to avoid dependency
// cycles. Callers should depend on the core interface rather than concrete
// types so they can substitute alternative persistence layers.
package artifact
