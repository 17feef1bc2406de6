package local

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/elastic-io/ferry/internal/backend"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/token"
	"github.com/elastic-io/ferry/internal/types"
	"github.com/elastic-io/ferry/internal/utils"
)

func init() {
	backend.Register("local", NewLocalBackend)
}

const (
	stagingDirName = "staging"
	objectsDirName = "objects"
)

// localBackend simulates multipart upload on plain filesystem storage.
// Each session owns a private staging directory; parts land there as
// numbered files and completion concatenates them into the final object.
// Signed tokens stand in for presigned URLs.
type localBackend struct {
	root   string
	signer *token.Signer
	opts   backend.Options
}

func NewLocalBackend(opts backend.Options) (backend.Backend, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("object directory is required")
	}
	if opts.SigningSecret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	for _, dir := range []string{stagingDirName, objectsDirName} {
		if err := os.MkdirAll(filepath.Join(opts.Dir, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return &localBackend{
		root:   opts.Dir,
		signer: token.NewSigner(opts.SigningSecret),
		opts:   opts,
	}, nil
}

func (b *localBackend) SupportsNativeMultipart() bool { return false }

func (b *localBackend) stagingDir(sessionID string) string {
	return filepath.Join(b.root, stagingDirName, sessionID)
}

func (b *localBackend) objectPath(fileID string) string {
	return filepath.Join(b.root, objectsDirName, fileID)
}

func partFileName(partNumber int) string {
	// zero padded so directory order matches part order
	return fmt.Sprintf("part-%05d", partNumber)
}

func (b *localBackend) InitiateUpload(desc *types.UploadDescriptor) (*types.InitiateResult, error) {
	if err := backend.ValidateDescriptor(desc); err != nil {
		return nil, err
	}

	sessionID := utils.UID(utils.HEX, 32)

	log.Logger.Info("Creating staging area for ", desc.FileID, " session ", sessionID)

	if err := os.MkdirAll(b.stagingDir(sessionID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging area: %w", err)
	}

	parts := make([]types.PartAccess, 0, desc.TotalParts)
	for n := 1; n <= desc.TotalParts; n++ {
		tok, err := b.signer.Sign(desc.FileID, n, sessionID, b.opts.Expiry)
		if err != nil {
			os.RemoveAll(b.stagingDir(sessionID))
			return nil, fmt.Errorf("failed to sign part token: %w", err)
		}
		parts = append(parts, types.PartAccess{
			PartNumber: n,
			AccessURL:  fmt.Sprintf("/v1/uploads/%s/parts/%d?token=%s", sessionID, n, tok),
		})
	}

	return &types.InitiateResult{
		SessionID:        sessionID,
		ExpiresInSeconds: int64(b.opts.Expiry.Seconds()),
		Parts:            parts,
	}, nil
}

// UploadPart stages one part and returns its integrity tag. Re-uploading a
// part number overwrites the previous bytes, so retries are idempotent.
func (b *localBackend) UploadPart(sessionID string, partNumber int, data []byte) (string, error) {
	if partNumber < 1 {
		return "", fmt.Errorf("%w: part number must be positive, got %d",
			types.ErrInvalidUploadParameters, partNumber)
	}

	dir := b.stagingDir(sessionID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: no staging area for %s", types.ErrSessionNotFound, sessionID)
	}

	log.Logger.Info("Staging part ", partNumber, " for session ", sessionID, " (size: ", len(data), " bytes)")

	if err := os.WriteFile(filepath.Join(dir, partFileName(partNumber)), data, 0644); err != nil {
		return "", fmt.Errorf("failed to stage part %d: %w", partNumber, err)
	}

	return backend.CalculateETag(data), nil
}

func (b *localBackend) CompleteUpload(sess *types.UploadSession, parts []types.CompletedPart) (string, error) {
	dir := b.stagingDir(sess.SessionID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: no staging area for %s", types.ErrSessionNotFound, sess.SessionID)
	}

	sorted := make([]types.CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PartNumber < sorted[j].PartNumber
	})

	log.Logger.Info("Assembling ", len(sorted), " parts for session ", sess.SessionID)

	finalPath := b.objectPath(sess.FileID)
	tmp, err := os.CreateTemp(filepath.Join(b.root, objectsDirName), sess.FileID+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create assembly file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	var etags []string
	for _, p := range sorted {
		data, err := os.ReadFile(filepath.Join(dir, partFileName(p.PartNumber)))
		if err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("%w: part %d was never staged",
					types.ErrIncompleteUpload, p.PartNumber)
			}
			return "", fmt.Errorf("failed to read part %d: %w", p.PartNumber, err)
		}

		etag := backend.CalculateETag(data)
		if p.IntegrityTag != "" && p.IntegrityTag != etag {
			return "", fmt.Errorf("integrity tag mismatch for part %d: expected %s, got %s",
				p.PartNumber, etag, p.IntegrityTag)
		}
		etags = append(etags, etag)

		if _, err := tmp.Write(data); err != nil {
			return "", fmt.Errorf("failed to assemble part %d: %w", p.PartNumber, err)
		}
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to flush assembled object: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		return "", fmt.Errorf("failed to finalize object: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		// the object is durable; a stale staging dir only wastes space
		log.Logger.Warn("Failed to remove staging area ", dir, ": ", err)
	}

	log.Logger.Info("Completed upload for ", sess.FileID, " with final ETag ", backend.CalculateMultipartETag(etags))

	return finalPath, nil
}

func (b *localBackend) AbortUpload(sess *types.UploadSession) error {
	dir := b.stagingDir(sess.SessionID)

	log.Logger.Info("Removing staging area for session ", sess.SessionID)

	// RemoveAll succeeds on an absent directory, which keeps abort idempotent
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove staging area: %w", err)
	}
	return nil
}

func (b *localBackend) ObjectURL(rec *types.FileRecord) (string, error) {
	if rec == nil || rec.Location == "" {
		return "", nil
	}
	return "file://" + rec.Location, nil
}
