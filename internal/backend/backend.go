package backend

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/elastic-io/ferry/internal/types"
)

// S3-compatible multipart protocol limits. Interop depends on these values.
const (
	MaxParts    = 10000
	MinPartSize = 5 * types.MB
)

// Backend is the storage capability every deployment provides: open an
// upload session, finalize it from a part manifest, release it, and resolve
// object locations. Implementations without a native multipart protocol
// additionally accept part bytes through PartReceiver.
type Backend interface {
	InitiateUpload(desc *types.UploadDescriptor) (*types.InitiateResult, error)
	CompleteUpload(sess *types.UploadSession, parts []types.CompletedPart) (string, error)

	// AbortUpload releases staged state. Aborting a session the backend no
	// longer knows is a no-op, not an error; cleanup and client aborts race.
	AbortUpload(sess *types.UploadSession) error

	ObjectURL(rec *types.FileRecord) (string, error)

	SupportsNativeMultipart() bool
}

// PartReceiver is implemented by backends that carry part bytes themselves
// instead of handing out presigned URLs.
type PartReceiver interface {
	UploadPart(sessionID string, partNumber int, data []byte) (string, error)
}

// Options carries everything a backend constructor may need; each
// implementation picks the fields that concern it.
type Options struct {
	Expiry time.Duration

	// native S3-compatible storage
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string

	// local filesystem storage
	Dir           string
	SigningSecret string
}

type factory func(Options) (Backend, error)

var Backends = map[string]factory{}

func Register(name string, f factory) {
	if _, ok := Backends[name]; ok {
		panic(fmt.Errorf("backend %s already registered", name))
	}
	Backends[name] = f
}

func New(name string, opts Options) (Backend, error) {
	if f, ok := Backends[name]; ok {
		return f(opts)
	}
	return nil, fmt.Errorf("backend %s not found", name)
}

// ValidateDescriptor checks the constraints every backend shares.
func ValidateDescriptor(desc *types.UploadDescriptor) error {
	if desc.FileID == "" {
		return fmt.Errorf("%w: file id is required", types.ErrInvalidUploadParameters)
	}
	if desc.TotalParts < 1 {
		return fmt.Errorf("%w: total parts must be at least 1, got %d",
			types.ErrInvalidUploadParameters, desc.TotalParts)
	}
	return nil
}

// CalculateETag computes the MD5 of data, quoted the way S3 quotes ETags.
func CalculateETag(data []byte) string {
	hash := md5.Sum(data)
	return fmt.Sprintf("\"%s\"", hex.EncodeToString(hash[:]))
}

// CalculateMultipartETag computes the final ETag of an assembled upload,
// S3 style: "{md5-of-concatenated-part-etags}-{part-count}".
func CalculateMultipartETag(etags []string) string {
	cleanETags := make([]string, len(etags))
	for i, etag := range etags {
		cleanETags[i] = strings.Trim(etag, "\"")
	}

	combined := strings.Join(cleanETags, "")
	hash := md5.Sum([]byte(combined))

	return fmt.Sprintf("\"%s-%d\"", hex.EncodeToString(hash[:]), len(etags))
}
