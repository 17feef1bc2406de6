package types

import (
	"time"
)

// SessionStatus is the lifecycle state of an upload session.
type SessionStatus string

const (
	StatusPending   SessionStatus = "PENDING"
	StatusUploading SessionStatus = "UPLOADING"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusFailed    SessionStatus = "FAILED"
	StatusAborted   SessionStatus = "ABORTED"
)

// Terminal reports whether no further transition may leave the status.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows moving to next.
// Transitions are monotonic; nothing re-enters PENDING and nothing leaves
// a terminal status.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusUploading || next == StatusAborted || next == StatusFailed
	case StatusUploading:
		return next == StatusCompleted || next == StatusAborted || next == StatusFailed
	}
	return false
}

// UploadDescriptor describes the object a caller wants to upload.
type UploadDescriptor struct {
	FileID       string
	ObjectName   string
	DeclaredSize int64
	ContentType  string
	TotalParts   int
	PartSize     int64
}

// UploadSession is the unit of work for one object upload. SessionID stays
// empty until the backend initiates the upload and never changes afterward.
type UploadSession struct {
	SessionID     string
	FileID        string
	ObjectName    string
	DeclaredSize  int64
	ContentType   string
	TotalParts    int
	PartSize      int64
	Status        SessionStatus
	ExpiresAt     time.Time
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FinalLocation string
}

// PartAccess is the per-part upload capability handed back at initiation:
// a presigned URL for native backends, a signed token URL otherwise.
type PartAccess struct {
	PartNumber int    `json:"partNumber"`
	AccessURL  string `json:"accessURL"`
}

// InitiateResult is the backend's answer to InitiateUpload.
type InitiateResult struct {
	SessionID        string       `json:"sessionId"`
	ExpiresInSeconds int64        `json:"expiresInSeconds"`
	Parts            []PartAccess `json:"parts"`
}

// CompletedPart pairs a part number with the integrity tag the backend
// returned when the part was received.
type CompletedPart struct {
	PartNumber   int    `json:"partNumber"`
	IntegrityTag string `json:"integrityTag"`
}

// FileRecord is the durable-object view handed to ObjectURL lookups.
// Location is empty while the object has no durable bytes yet.
type FileRecord struct {
	FileID   string
	Name     string
	Location string
}
