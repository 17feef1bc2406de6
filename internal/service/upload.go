package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/elastic-io/ferry/internal/backend"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/store"
	"github.com/elastic-io/ferry/internal/types"
)

// UploadService coordinates the upload lifecycle: it owns the session state
// machine and delegates byte-level work to the configured backend. The
// backend is chosen once at construction, never per call.
type UploadService interface {
	Initiate(desc *types.UploadDescriptor, createdBy string) (*types.InitiateResult, error)

	// UploadPart accepts part bytes for backends without native multipart
	// support. Native backends receive parts directly via presigned URLs.
	UploadPart(sessionID string, partNumber int, data []byte) (string, error)

	Complete(sessionID string, parts []types.CompletedPart) (string, error)
	Abort(sessionID string) error

	Get(sessionID string) (*types.UploadSession, error)

	ObjectURL(sessionID string) (string, error)

	NativeMultipart() bool
}

type uploadService struct {
	store   store.SessionStore
	backend backend.Backend
	expiry  time.Duration
}

func NewUploadService(st store.SessionStore, be backend.Backend, expiry time.Duration) (UploadService, error) {
	if st == nil || be == nil {
		return nil, fmt.Errorf("session store and backend are required")
	}
	return &uploadService{store: st, backend: be, expiry: expiry}, nil
}

func (s *uploadService) NativeMultipart() bool {
	return s.backend.SupportsNativeMultipart()
}

// Initiate opens a backend upload session and records it. The record is
// created only after the backend call succeeds, so a failed initiate leaves
// no session behind.
func (s *uploadService) Initiate(desc *types.UploadDescriptor, createdBy string) (*types.InitiateResult, error) {
	res, err := s.backend.InitiateUpload(desc)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &types.UploadSession{
		SessionID:    res.SessionID,
		FileID:       desc.FileID,
		ObjectName:   desc.ObjectName,
		DeclaredSize: desc.DeclaredSize,
		ContentType:  desc.ContentType,
		TotalParts:   desc.TotalParts,
		PartSize:     desc.PartSize,
		Status:       types.StatusUploading,
		ExpiresAt:    now.Add(s.expiry),
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateSession(sess); err != nil {
		// unwind the backend session so nothing is left staged
		if aerr := s.backend.AbortUpload(sess); aerr != nil {
			log.Logger.Warn("Failed to abort upload ", sess.SessionID, " after store error: ", aerr)
		}
		return nil, fmt.Errorf("failed to record session: %w", err)
	}

	log.Logger.Info("Initiated upload session ", sess.SessionID, " for ", desc.FileID,
		" (", desc.TotalParts, " parts, expires ", sess.ExpiresAt.Format(time.RFC3339), ")")

	return res, nil
}

func (s *uploadService) UploadPart(sessionID string, partNumber int, data []byte) (string, error) {
	receiver, ok := s.backend.(backend.PartReceiver)
	if !ok {
		return "", fmt.Errorf("%w: backend receives parts directly via presigned URLs",
			types.ErrInvalidUploadParameters)
	}

	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	if sess.Status.Terminal() {
		return "", fmt.Errorf("%w: session %s is %s", types.ErrUploadAlreadyFinalized, sessionID, sess.Status)
	}
	if partNumber < 1 || partNumber > sess.TotalParts {
		return "", fmt.Errorf("%w: part number %d out of range 1..%d",
			types.ErrInvalidUploadParameters, partNumber, sess.TotalParts)
	}

	return receiver.UploadPart(sessionID, partNumber, data)
}

// Complete finalizes the upload. The session status moves only after the
// backend reports success, so a crash mid-call leaves the session in
// UPLOADING and the caller may retry.
func (s *uploadService) Complete(sessionID string, parts []types.CompletedPart) (string, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	if sess.Status.Terminal() {
		return "", fmt.Errorf("%w: session %s is %s", types.ErrUploadAlreadyFinalized, sessionID, sess.Status)
	}

	if err := validatePartSet(sess.TotalParts, parts); err != nil {
		return "", err
	}

	location, err := s.backend.CompleteUpload(sess, parts)
	if err != nil {
		return "", err
	}

	err = s.store.UpdateSession(sessionID,
		[]types.SessionStatus{types.StatusUploading},
		func(u *types.UploadSession) error {
			u.Status = types.StatusCompleted
			u.FinalLocation = location
			return nil
		})
	if err != nil {
		// another caller finalized between the backend call and the status
		// update; the object is durable either way
		if errors.Is(err, store.ErrStatusConflict) {
			return "", fmt.Errorf("%w: session %s", types.ErrUploadAlreadyFinalized, sessionID)
		}
		return "", err
	}

	log.Logger.Info("Completed upload session ", sessionID, " at ", location)

	return location, nil
}

// Abort releases the session. Aborting an already-terminal session is a
// no-op so client aborts and cleanup sweeps may race freely.
func (s *uploadService) Abort(sessionID string) error {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return nil
	}

	if err := s.backend.AbortUpload(sess); err != nil {
		return err
	}

	err = s.store.UpdateSession(sessionID,
		[]types.SessionStatus{types.StatusPending, types.StatusUploading},
		func(u *types.UploadSession) error {
			u.Status = types.StatusAborted
			return nil
		})
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil
		}
		return err
	}

	log.Logger.Info("Aborted upload session ", sessionID)

	return nil
}

func (s *uploadService) Get(sessionID string) (*types.UploadSession, error) {
	return s.store.GetSession(sessionID)
}

func (s *uploadService) ObjectURL(sessionID string) (string, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	return s.backend.ObjectURL(&types.FileRecord{
		FileID:   sess.FileID,
		Name:     sess.ObjectName,
		Location: sess.FinalLocation,
	})
}

// validatePartSet checks that parts covers 1..totalParts exactly once.
func validatePartSet(totalParts int, parts []types.CompletedPart) error {
	if len(parts) != totalParts {
		return fmt.Errorf("%w: expected %d parts, got %d",
			types.ErrIncompleteUpload, totalParts, len(parts))
	}
	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		if p.PartNumber < 1 || p.PartNumber > totalParts {
			return fmt.Errorf("%w: part number %d out of range 1..%d",
				types.ErrIncompleteUpload, p.PartNumber, totalParts)
		}
		if seen[p.PartNumber] {
			return fmt.Errorf("%w: part number %d submitted twice",
				types.ErrIncompleteUpload, p.PartNumber)
		}
		seen[p.PartNumber] = true
	}
	return nil
}
