package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, directory clients and the
// outbox return these (optionally wrapped) so services can translate them into
// coded domain errors.
//
//   - ErrNotFound: record or directory entry does not exist
//   - ErrConflict: a uniqueness constraint was hit (reference, ledger sequence)
//   - ErrInvalidState: the stored record is not in the state the caller expected
//   - ErrUnavailable: a store or collaborator is temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
