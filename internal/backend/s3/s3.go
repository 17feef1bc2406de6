package s3

import (
	"fmt"
	"path"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/elastic-io/ferry/internal/backend"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/types"
)

func init() {
	backend.Register("s3", NewS3Backend)
}

// s3Backend drives a native S3-compatible multipart protocol. The
// coordinator never touches part bytes here: clients upload straight to the
// storage service through presigned single-part URLs.
type s3Backend struct {
	client *s3.S3
	bucket string
	opts   backend.Options
}

func NewS3Backend(opts backend.Options) (backend.Backend, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(opts.Region),
		Endpoint:         aws.String(opts.Endpoint),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}
	return &s3Backend{client: s3.New(sess), bucket: opts.Bucket, opts: opts}, nil
}

func (b *s3Backend) SupportsNativeMultipart() bool { return true }

// objectKey derives the storage key deterministically from the logical file
// identity so retries of initiate land on the same key.
func objectKey(fileID, objectName string) string {
	return path.Join("objects", fileID, objectName)
}

func (b *s3Backend) InitiateUpload(desc *types.UploadDescriptor) (*types.InitiateResult, error) {
	if err := b.validate(desc); err != nil {
		return nil, err
	}

	key := objectKey(desc.FileID, desc.ObjectName)

	log.Logger.Info("Creating multipart upload for ", key, " with ", desc.TotalParts, " parts")

	out, err := b.client.CreateMultipartUpload(&s3.CreateMultipartUploadInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(desc.ContentType),
	})
	if err != nil {
		return nil, wrapAWS("create multipart upload", err)
	}

	uploadID := aws.StringValue(out.UploadId)

	parts := make([]types.PartAccess, 0, desc.TotalParts)
	for n := 1; n <= desc.TotalParts; n++ {
		req, _ := b.client.UploadPartRequest(&s3.UploadPartInput{
			Bucket:     aws.String(b.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int64(int64(n)),
		})
		url, err := req.Presign(b.opts.Expiry)
		if err != nil {
			// unwind the half-opened session before reporting
			if aerr := b.abort(uploadID, key); aerr != nil {
				log.Logger.Warn("Failed to abort upload ", uploadID, " after presign error: ", aerr)
			}
			return nil, fmt.Errorf("failed to presign part %d: %w", n, err)
		}
		parts = append(parts, types.PartAccess{PartNumber: n, AccessURL: url})
	}

	return &types.InitiateResult{
		SessionID:        uploadID,
		ExpiresInSeconds: int64(b.opts.Expiry.Seconds()),
		Parts:            parts,
	}, nil
}

// validate enforces the protocol limits before anything reaches the network.
func (b *s3Backend) validate(desc *types.UploadDescriptor) error {
	if err := backend.ValidateDescriptor(desc); err != nil {
		return err
	}
	if desc.TotalParts > backend.MaxParts {
		return fmt.Errorf("%w: total parts %d exceeds protocol maximum %d",
			types.ErrInvalidUploadParameters, desc.TotalParts, backend.MaxParts)
	}
	// every part except the last must meet the protocol minimum
	if desc.TotalParts > 1 && desc.PartSize < backend.MinPartSize {
		return fmt.Errorf("%w: part size %d is below protocol minimum %d",
			types.ErrInvalidUploadParameters, desc.PartSize, int64(backend.MinPartSize))
	}
	return nil
}

func (b *s3Backend) CompleteUpload(sess *types.UploadSession, parts []types.CompletedPart) (string, error) {
	key := objectKey(sess.FileID, sess.ObjectName)

	sorted := make([]types.CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PartNumber < sorted[j].PartNumber
	})

	completed := make([]*s3.CompletedPart, 0, len(sorted))
	for _, p := range sorted {
		completed = append(completed, &s3.CompletedPart{
			PartNumber: aws.Int64(int64(p.PartNumber)),
			ETag:       aws.String(p.IntegrityTag),
		})
	}

	log.Logger.Info("Completing multipart upload ", sess.SessionID, " for ", key, " with ", len(completed), " parts")

	out, err := b.client.CompleteMultipartUpload(&s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(sess.SessionID),
		MultipartUpload: &s3.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", wrapAWS("complete multipart upload", err)
	}

	location := aws.StringValue(out.Location)
	if location == "" {
		location = fmt.Sprintf("s3://%s/%s", b.bucket, key)
	}
	return location, nil
}

func (b *s3Backend) AbortUpload(sess *types.UploadSession) error {
	return b.abort(sess.SessionID, objectKey(sess.FileID, sess.ObjectName))
}

func (b *s3Backend) abort(uploadID, key string) error {
	log.Logger.Info("Aborting multipart upload ", uploadID, " for ", key)

	_, err := b.client.AbortMultipartUpload(&s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		// already finalized or already aborted; the race is expected
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchUpload {
			return nil
		}
		return wrapAWS("abort multipart upload", err)
	}
	return nil
}

func (b *s3Backend) ObjectURL(rec *types.FileRecord) (string, error) {
	if rec == nil || rec.Location == "" {
		return "", nil
	}
	req, _ := b.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(rec.FileID, rec.Name)),
	})
	url, err := req.Presign(b.opts.Expiry)
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}
	return url, nil
}

// wrapAWS classifies storage-service failures: transport errors and 5xx
// responses are retry-safe for the caller, everything else is not.
func wrapAWS(op string, err error) error {
	if err == nil {
		return nil
	}
	if reqErr, ok := err.(awserr.RequestFailure); ok {
		if reqErr.StatusCode() >= 500 {
			return fmt.Errorf("%w: %s: %v", types.ErrBackendUnavailable, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == "RequestError" {
		return fmt.Errorf("%w: %s: %v", types.ErrBackendUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
