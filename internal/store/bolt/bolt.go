package bolt

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/store"
	"github.com/elastic-io/ferry/internal/types"
	"go.etcd.io/bbolt"
)

func init() {
	store.EngineRegister("bolt", NewBoltSessionStore)
}

const (
	sessionsBucket = "sessions"

	maxRetries = 3
	retryDelay = 100 * time.Millisecond
)

// BoltSessionStore keeps upload session records in a single BoltDB bucket
// keyed by session id. Bolt's serialized update transactions give the
// check-and-set semantics the coordinator relies on.
type BoltSessionStore struct {
	db        *bbolt.DB
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

func NewBoltSessionStore(path string) (store.SessionStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout:      1 * time.Second,
		FreelistType: bbolt.FreelistMapType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sessions bucket: %w", err)
	}

	return &BoltSessionStore{db: db}, nil
}

func (s *BoltSessionStore) safeBucketOperation(tx *bbolt.Tx, operation func(*bbolt.Bucket) error) error {
	defer func() {
		if r := recover(); r != nil {
			log.Logger.Errorf("Recovered from panic in bucket operation: %v\n%s", r, debug.Stack())
		}
	}()

	bucket := tx.Bucket([]byte(sessionsBucket))
	if bucket == nil {
		return fmt.Errorf("bucket %s not found", sessionsBucket)
	}
	return operation(bucket)
}

func (s *BoltSessionStore) withRetry(operation func() error) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := operation(); err != nil {
			lastErr = err
			log.Logger.Warnf("Operation failed (attempt %d/%d): %v", i+1, maxRetries, err)
			if i < maxRetries-1 {
				time.Sleep(retryDelay * time.Duration(i+1))
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

func (s *BoltSessionStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.db == nil {
			return
		}
		s.closed = true
		err = s.db.Close()
		s.db = nil
	})
	return err
}

func (s *BoltSessionStore) CreateSession(sess *types.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil || s.closed {
		return fmt.Errorf("store is closed")
	}

	data, err := sess.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.withRetry(func() error {
		return s.db.Update(func(tx *bbolt.Tx) error {
			return s.safeBucketOperation(tx, func(b *bbolt.Bucket) error {
				if b.Get([]byte(sess.SessionID)) != nil {
					return fmt.Errorf("session already exists: %s", sess.SessionID)
				}
				return b.Put([]byte(sess.SessionID), data)
			})
		})
	})
}

func (s *BoltSessionStore) GetSession(id string) (*types.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil || s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var sess *types.UploadSession
	err := s.db.View(func(tx *bbolt.Tx) error {
		return s.safeBucketOperation(tx, func(b *bbolt.Bucket) error {
			data := b.Get([]byte(id))
			if data == nil {
				return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
			}
			sess = &types.UploadSession{}
			return sess.UnmarshalJSON(data)
		})
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *BoltSessionStore) UpdateSession(id string, expected []types.SessionStatus, mutate func(*types.UploadSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil || s.closed {
		return fmt.Errorf("store is closed")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.safeBucketOperation(tx, func(b *bbolt.Bucket) error {
			data := b.Get([]byte(id))
			if data == nil {
				return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
			}

			sess := &types.UploadSession{}
			if err := sess.UnmarshalJSON(data); err != nil {
				return fmt.Errorf("failed to unmarshal session: %w", err)
			}

			if !store.StatusIn(sess.Status, expected) {
				return fmt.Errorf("%w: session %s is %s", store.ErrStatusConflict, id, sess.Status)
			}

			if err := mutate(sess); err != nil {
				return err
			}
			sess.UpdatedAt = time.Now()

			out, err := sess.MarshalJSON()
			if err != nil {
				return fmt.Errorf("failed to marshal session: %w", err)
			}
			return b.Put([]byte(id), out)
		})
	})
}

func (s *BoltSessionStore) FindExpiredSessions(now time.Time) ([]*types.UploadSession, error) {
	return s.scan(func(sess *types.UploadSession) bool {
		switch sess.Status {
		case types.StatusPending, types.StatusUploading:
			return sess.ExpiresAt.Before(now)
		}
		return false
	})
}

func (s *BoltSessionStore) FindStaleTerminalSessions(cutoff time.Time) ([]*types.UploadSession, error) {
	return s.scan(func(sess *types.UploadSession) bool {
		switch sess.Status {
		case types.StatusFailed, types.StatusAborted:
			return sess.UpdatedAt.Before(cutoff)
		}
		return false
	})
}

func (s *BoltSessionStore) scan(match func(*types.UploadSession) bool) ([]*types.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil || s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var sessions []*types.UploadSession

	err := s.withRetry(func() error {
		sessions = sessions[:0]
		return s.db.View(func(tx *bbolt.Tx) error {
			return s.safeBucketOperation(tx, func(b *bbolt.Bucket) error {
				return b.ForEach(func(k, v []byte) error {
					sess := &types.UploadSession{}
					if err := sess.UnmarshalJSON(v); err != nil {
						log.Logger.Warn("Failed to unmarshal session record: ", err)
						return nil
					}
					if match(sess) {
						sessions = append(sessions, sess)
					}
					return nil
				})
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return sessions, nil
}

func (s *BoltSessionStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil || s.closed {
		return fmt.Errorf("store is closed")
	}

	return s.withRetry(func() error {
		return s.db.Update(func(tx *bbolt.Tx) error {
			return s.safeBucketOperation(tx, func(b *bbolt.Bucket) error {
				if b.Get([]byte(id)) == nil {
					return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
				}
				return b.Delete([]byte(id))
			})
		})
	})
}
