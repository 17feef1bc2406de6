package service

import (
	"runtime/debug"
	"time"

	"github.com/elastic-io/ferry/internal/backend"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/store"
	"github.com/elastic-io/ferry/internal/types"
)

// CleanupService reclaims what unfinished uploads leave behind: the expired
// sweep aborts sessions nobody came back for, the retention sweep deletes
// terminal records past the retention window.
type CleanupService struct {
	store     store.SessionStore
	backend   backend.Backend
	retention time.Duration
	interval  time.Duration

	ticker *time.Ticker
	done   chan struct{}
}

func NewCleanupService(st store.SessionStore, be backend.Backend, retention, interval time.Duration) *CleanupService {
	return &CleanupService{
		store:     st,
		backend:   be,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// SweepExpired aborts every PENDING/UPLOADING session whose expiry passed.
// A failure on one session is logged and does not stop the sweep.
func (c *CleanupService) SweepExpired(now time.Time) int {
	sessions, err := c.store.FindExpiredSessions(now)
	if err != nil {
		log.Logger.Error("Failed to scan for expired sessions: ", err)
		return 0
	}

	swept := 0
	for _, sess := range sessions {
		if err := c.backend.AbortUpload(sess); err != nil {
			log.Logger.Warn("Failed to abort expired session ", sess.SessionID, ": ", err)
			c.markFailed(sess.SessionID)
			continue
		}

		err := c.store.UpdateSession(sess.SessionID,
			[]types.SessionStatus{types.StatusPending, types.StatusUploading},
			func(u *types.UploadSession) error {
				u.Status = types.StatusAborted
				return nil
			})
		if err != nil {
			// a racing complete or abort won; the idempotent backend abort
			// above made that safe
			log.Logger.Debug("Skipping expired session ", sess.SessionID, ": ", err)
			continue
		}

		log.Logger.Info("Cleaned up expired upload session: ", sess.SessionID)
		swept++
	}
	return swept
}

// markFailed records that an expired session could not be reclaimed; the
// retention sweep deletes the record later.
func (c *CleanupService) markFailed(sessionID string) {
	err := c.store.UpdateSession(sessionID,
		[]types.SessionStatus{types.StatusPending, types.StatusUploading},
		func(u *types.UploadSession) error {
			u.Status = types.StatusFailed
			return nil
		})
	if err != nil {
		log.Logger.Warn("Failed to mark session ", sessionID, " as failed: ", err)
	}
}

// SweepRetention permanently deletes FAILED/ABORTED session records whose
// last modification is older than the retention window.
func (c *CleanupService) SweepRetention(now time.Time) int {
	cutoff := now.Add(-c.retention)

	sessions, err := c.store.FindStaleTerminalSessions(cutoff)
	if err != nil {
		log.Logger.Error("Failed to scan for stale sessions: ", err)
		return 0
	}

	deleted := 0
	for _, sess := range sessions {
		if err := c.store.DeleteSession(sess.SessionID); err != nil {
			log.Logger.Warn("Failed to delete stale session ", sess.SessionID, ": ", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		log.Logger.Info("Deleted ", deleted, " stale session records")
	}
	return deleted
}

// Start runs both sweeps on the configured interval until Stop is called.
func (c *CleanupService) Start() {
	c.ticker = time.NewTicker(c.interval)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Logger.Errorf("Recovered from panic in cleanup routine: %v\n%s", r, debug.Stack())
				time.Sleep(time.Minute)
				c.Start()
			}
		}()

		for {
			select {
			case <-c.ticker.C:
				now := time.Now()
				c.SweepExpired(now)
				c.SweepRetention(now)
			case <-c.done:
				return
			}
		}
	}()
}

func (c *CleanupService) Stop() {
	if c.ticker != nil {
		c.ticker.Stop()
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
