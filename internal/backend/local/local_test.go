package local

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elastic-io/ferry/internal/backend"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBackend(t *testing.T) (backend.Backend, string, func()) {
	log.Init("", "debug")
	tempDir, err := ioutil.TempDir("", "local_test_*")
	require.NoError(t, err)

	be, err := NewLocalBackend(backend.Options{
		Dir:           tempDir,
		SigningSecret: "test-secret",
		Expiry:        time.Hour,
	})
	require.NoError(t, err)

	return be, tempDir, func() { os.RemoveAll(tempDir) }
}

func TestNewLocalBackend(t *testing.T) {
	t.Run("requires directory", func(t *testing.T) {
		_, err := NewLocalBackend(backend.Options{SigningSecret: "s"})
		assert.Error(t, err)
	})

	t.Run("requires secret", func(t *testing.T) {
		_, err := NewLocalBackend(backend.Options{Dir: "./tmp-test"})
		assert.Error(t, err)
	})

	t.Run("reports no native multipart", func(t *testing.T) {
		be, _, cleanup := setupTestBackend(t)
		defer cleanup()
		assert.False(t, be.SupportsNativeMultipart())
	})
}

func TestInitiateUpload(t *testing.T) {
	be, tempDir, cleanup := setupTestBackend(t)
	defer cleanup()

	res, err := be.InitiateUpload(&types.UploadDescriptor{
		FileID:     "file-1",
		ObjectName: "data.bin",
		TotalParts: 3,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, int64(3600), res.ExpiresInSeconds)
	require.Len(t, res.Parts, 3)
	for i, p := range res.Parts {
		assert.Equal(t, i+1, p.PartNumber)
		assert.Contains(t, p.AccessURL, res.SessionID)
		assert.Contains(t, p.AccessURL, "token=")
	}

	// the staging area must exist before any part arrives
	_, err = os.Stat(filepath.Join(tempDir, "staging", res.SessionID))
	assert.NoError(t, err)
}

func TestInitiateUploadRejectsBadDescriptor(t *testing.T) {
	be, _, cleanup := setupTestBackend(t)
	defer cleanup()

	_, err := be.InitiateUpload(&types.UploadDescriptor{ObjectName: "x", TotalParts: 1})
	assert.ErrorIs(t, err, types.ErrInvalidUploadParameters)

	_, err = be.InitiateUpload(&types.UploadDescriptor{FileID: "file-1", TotalParts: 0})
	assert.ErrorIs(t, err, types.ErrInvalidUploadParameters)
}

func TestUploadAndComplete(t *testing.T) {
	be, tempDir, cleanup := setupTestBackend(t)
	defer cleanup()

	receiver := be.(backend.PartReceiver)

	res, err := be.InitiateUpload(&types.UploadDescriptor{FileID: "file-2", TotalParts: 2})
	require.NoError(t, err)

	// parts arrive out of order
	tag2, err := receiver.UploadPart(res.SessionID, 2, []byte("BBBB"))
	require.NoError(t, err)
	tag1, err := receiver.UploadPart(res.SessionID, 1, []byte("AAAA"))
	require.NoError(t, err)

	sess := &types.UploadSession{SessionID: res.SessionID, FileID: "file-2"}
	location, err := be.CompleteUpload(sess, []types.CompletedPart{
		{PartNumber: 2, IntegrityTag: tag2},
		{PartNumber: 1, IntegrityTag: tag1},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBB", string(data))

	// staging area is gone after completion
	_, err = os.Stat(filepath.Join(tempDir, "staging", res.SessionID))
	assert.True(t, os.IsNotExist(err))
}

func TestUploadPartIdempotent(t *testing.T) {
	be, _, cleanup := setupTestBackend(t)
	defer cleanup()

	receiver := be.(backend.PartReceiver)

	res, err := be.InitiateUpload(&types.UploadDescriptor{FileID: "file-3", TotalParts: 1})
	require.NoError(t, err)

	_, err = receiver.UploadPart(res.SessionID, 1, []byte("first"))
	require.NoError(t, err)
	tag, err := receiver.UploadPart(res.SessionID, 1, []byte("final"))
	require.NoError(t, err)

	sess := &types.UploadSession{SessionID: res.SessionID, FileID: "file-3"}
	location, err := be.CompleteUpload(sess, []types.CompletedPart{{PartNumber: 1, IntegrityTag: tag}})
	require.NoError(t, err)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "final", string(data))
}

func TestCompleteMissingPart(t *testing.T) {
	be, _, cleanup := setupTestBackend(t)
	defer cleanup()

	receiver := be.(backend.PartReceiver)

	res, err := be.InitiateUpload(&types.UploadDescriptor{FileID: "file-4", TotalParts: 2})
	require.NoError(t, err)

	_, err = receiver.UploadPart(res.SessionID, 1, []byte("only one"))
	require.NoError(t, err)

	sess := &types.UploadSession{SessionID: res.SessionID, FileID: "file-4"}
	_, err = be.CompleteUpload(sess, []types.CompletedPart{
		{PartNumber: 1},
		{PartNumber: 2},
	})
	assert.ErrorIs(t, err, types.ErrIncompleteUpload)
}

func TestUploadPartUnknownSession(t *testing.T) {
	be, _, cleanup := setupTestBackend(t)
	defer cleanup()

	receiver := be.(backend.PartReceiver)

	_, err := receiver.UploadPart("no-such-session", 1, []byte("data"))
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestAbortUpload(t *testing.T) {
	be, tempDir, cleanup := setupTestBackend(t)
	defer cleanup()

	res, err := be.InitiateUpload(&types.UploadDescriptor{FileID: "file-5", TotalParts: 1})
	require.NoError(t, err)

	sess := &types.UploadSession{SessionID: res.SessionID, FileID: "file-5"}
	require.NoError(t, be.AbortUpload(sess))

	_, err = os.Stat(filepath.Join(tempDir, "staging", res.SessionID))
	assert.True(t, os.IsNotExist(err))

	// abort of an already reclaimed session stays silent
	assert.NoError(t, be.AbortUpload(sess))
	assert.NoError(t, be.AbortUpload(&types.UploadSession{SessionID: "never-existed"}))
}

func TestObjectURL(t *testing.T) {
	be, _, cleanup := setupTestBackend(t)
	defer cleanup()

	url, err := be.ObjectURL(&types.FileRecord{FileID: "f", Name: "n"})
	require.NoError(t, err)
	assert.Empty(t, url)

	url, err = be.ObjectURL(&types.FileRecord{FileID: "f", Name: "n", Location: "/data/objects/f"})
	require.NoError(t, err)
	assert.Equal(t, "file:///data/objects/f", url)
}
