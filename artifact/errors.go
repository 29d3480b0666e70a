package artifact

import "fmt"

var (
	// ErrNotFound is returned when an artifact for the given session / name
	// pair does not exist in the underlying store.
	ErrNotFound = fmt.Errorf("artifact not found")

	// ErrInvalidName is returned for names that could escape the session's
	// namespace.
	ErrInvalidName = fmt.Errorf("invalid artifact name")
)
