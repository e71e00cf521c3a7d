package entry

import "errors"

// Sentinel errors for entry store operations.
// These errors are part of the Store's public API and should be checked
// using errors.Is().
//
// Example:
//
//	e, err := store.Get(ctx, id)
//	if errors.Is(err, entry.ErrNotFound) {
//	    // Handle missing entry
//	}
var (
	// ErrNotFound indicates the requested entry does not exist in the database.
	ErrNotFound = errors.New("entry not found")

	// ErrValidation indicates the entry violates a store invariant and the
	// caller must correct it (empty content, source_url/source_type mismatch,
	// wrong embedding dimension).
	ErrValidation = errors.New("invalid entry")
)
