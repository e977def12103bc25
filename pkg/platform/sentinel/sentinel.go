package sentinel

import "errors"

// Sentinel errors for storage facts. Stores and infrastructure adapters return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: no record exists for the key
//   - ErrOutOfRange: a positional lookup is past the end of a sequence
//   - ErrConflict: a concurrent writer claimed the same slot
//   - ErrUnavailable: backing service temporarily unreachable
//
// Validation failures use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrOutOfRange  = errors.New("out of range")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
