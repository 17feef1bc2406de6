package service

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elastic-io/ferry/internal/backend"
	"github.com/elastic-io/ferry/internal/backend/local"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/store"
	_ "github.com/elastic-io/ferry/internal/store/bolt"
	"github.com/elastic-io/ferry/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCleanup(t *testing.T) (*CleanupService, UploadService, store.SessionStore, string, func()) {
	log.Init("", "debug")
	tempDir, err := ioutil.TempDir("", "cleanup_test_*")
	require.NoError(t, err)

	st, err := store.NewSessionStore("bolt", filepath.Join(tempDir, "sessions.db"))
	require.NoError(t, err)

	objectDir := filepath.Join(tempDir, "objects")
	be, err := local.NewLocalBackend(backend.Options{
		Dir:           objectDir,
		SigningSecret: "test-secret",
		Expiry:        time.Hour,
	})
	require.NoError(t, err)

	svc, err := NewUploadService(st, be, time.Hour)
	require.NoError(t, err)

	cleanup := NewCleanupService(st, be, 7*24*time.Hour, time.Hour)

	teardown := func() {
		st.Close()
		os.RemoveAll(tempDir)
	}
	return cleanup, svc, st, objectDir, teardown
}

// ages a session so the expiry sweep picks it up
func expireSession(t *testing.T, st store.SessionStore, sessionID string) {
	require.NoError(t, st.UpdateSession(sessionID, nil, func(u *types.UploadSession) error {
		u.ExpiresAt = time.Now().Add(-time.Minute)
		return nil
	}))
}

func TestSweepExpired(t *testing.T) {
	cleanup, svc, st, objectDir, teardown := setupCleanup(t)
	defer teardown()

	expired, err := svc.Initiate(&types.UploadDescriptor{FileID: "old", TotalParts: 1}, "")
	require.NoError(t, err)
	_, err = svc.UploadPart(expired.SessionID, 1, []byte("abandoned"))
	require.NoError(t, err)
	expireSession(t, st, expired.SessionID)

	live, err := svc.Initiate(&types.UploadDescriptor{FileID: "new", TotalParts: 1}, "")
	require.NoError(t, err)

	swept := cleanup.SweepExpired(time.Now())
	assert.Equal(t, 1, swept)

	t.Run("expired session is aborted", func(t *testing.T) {
		sess, err := st.GetSession(expired.SessionID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusAborted, sess.Status)

		_, err = os.Stat(filepath.Join(objectDir, "staging", expired.SessionID))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("live session is untouched", func(t *testing.T) {
		sess, err := st.GetSession(live.SessionID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusUploading, sess.Status)
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		assert.Equal(t, 0, cleanup.SweepExpired(time.Now()))
	})
}

func TestSweepExpiredSkipsCompleted(t *testing.T) {
	cleanup, svc, st, _, teardown := setupCleanup(t)
	defer teardown()

	res, err := svc.Initiate(&types.UploadDescriptor{FileID: "done", TotalParts: 1}, "")
	require.NoError(t, err)
	tag, err := svc.UploadPart(res.SessionID, 1, []byte("finished"))
	require.NoError(t, err)
	_, err = svc.Complete(res.SessionID, []types.CompletedPart{{PartNumber: 1, IntegrityTag: tag}})
	require.NoError(t, err)

	assert.Equal(t, 0, cleanup.SweepExpired(time.Now().Add(48*time.Hour)))

	sess, err := st.GetSession(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, sess.Status)
}

func TestSweepRetention(t *testing.T) {
	cleanup, _, st, _, teardown := setupCleanup(t)
	defer teardown()

	now := time.Now()

	old := &types.UploadSession{
		SessionID: "old-aborted",
		FileID:    "f1",
		Status:    types.StatusAborted,
		ExpiresAt: now.Add(-30 * 24 * time.Hour),
		CreatedAt: now.Add(-30 * 24 * time.Hour),
		UpdatedAt: now.Add(-30 * 24 * time.Hour),
	}
	require.NoError(t, st.CreateSession(old))

	recent := &types.UploadSession{
		SessionID: "recent-failed",
		FileID:    "f2",
		Status:    types.StatusFailed,
		ExpiresAt: now.Add(-time.Hour),
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	}
	require.NoError(t, st.CreateSession(recent))

	deleted := cleanup.SweepRetention(now)
	assert.Equal(t, 1, deleted)

	_, err := st.GetSession("old-aborted")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	_, err = st.GetSession("recent-failed")
	assert.NoError(t, err)
}

func TestStartStop(t *testing.T) {
	cleanup, _, _, _, teardown := setupCleanup(t)
	defer teardown()

	cleanup.Start()
	cleanup.Stop()

	// a second stop must not panic
	cleanup.Stop()
}
