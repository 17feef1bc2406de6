package types

import "errors"

// Upload error taxonomy. Constraint violations are never retried; only
// ErrBackendUnavailable is safe to retry.
var (
	// ErrInvalidUploadParameters means the part count or part size violates
	// the backend's constraints. Raised before anything touches the network.
	ErrInvalidUploadParameters = errors.New("invalid upload parameters")

	// ErrSessionNotFound means the operation referenced an unknown or
	// already-deleted session id.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrUploadAlreadyFinalized means a mutating call was made against a
	// session that already reached a terminal status.
	ErrUploadAlreadyFinalized = errors.New("upload already finalized")

	// ErrIncompleteUpload means the completion part set does not cover
	// 1..totalParts exactly once.
	ErrIncompleteUpload = errors.New("incomplete upload")

	// ErrBackendUnavailable wraps transient storage-service failures.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)
