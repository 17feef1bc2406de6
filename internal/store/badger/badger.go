package badger

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/elastic-io/ferry/internal/log"
	"github.com/elastic-io/ferry/internal/store"
	"github.com/elastic-io/ferry/internal/types"
)

func init() {
	store.EngineRegister("badger", NewBadgerSessionStore)
}

// Badger is a flat key-value store; the prefix scopes session records.
const sessionPrefix = "sessions/"

type BadgerSessionStore struct {
	db *badger.DB
	mu sync.RWMutex
}

func NewBadgerSessionStore(path string) (store.SessionStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = false
	opts.ValueThreshold = 1 * types.MB
	opts.BlockCacheSize = 64 * types.MB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Logger.Errorf("Recovered from panic in GC routine: %v\n%s", r, debug.Stack())
			}
		}()
		if err := db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
			log.Logger.Errorf("Error running value log GC: %v", err)
		}
	}()

	return &BadgerSessionStore{db: db}, nil
}

func sessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

func (s *BadgerSessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BadgerSessionStore) CreateSession(sess *types.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return fmt.Errorf("store is closed")
	}

	data, err := sess.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(sess.SessionID)); err == nil {
			return fmt.Errorf("session already exists: %s", sess.SessionID)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(sessionKey(sess.SessionID), data)
	})
}

func (s *BadgerSessionStore) GetSession(id string) (*types.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("store is closed")
	}

	var sess *types.UploadSession
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			sess = &types.UploadSession{}
			return sess.UnmarshalJSON(val)
		})
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *BadgerSessionStore) UpdateSession(id string, expected []types.SessionStatus, mutate func(*types.UploadSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return fmt.Errorf("store is closed")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
		}
		if err != nil {
			return err
		}

		sess := &types.UploadSession{}
		if err := item.Value(func(val []byte) error {
			return sess.UnmarshalJSON(val)
		}); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}

		if !store.StatusIn(sess.Status, expected) {
			return fmt.Errorf("%w: session %s is %s", store.ErrStatusConflict, id, sess.Status)
		}

		if err := mutate(sess); err != nil {
			return err
		}
		sess.UpdatedAt = time.Now()

		data, err := sess.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		return txn.Set(sessionKey(id), data)
	})
}

func (s *BadgerSessionStore) FindExpiredSessions(now time.Time) ([]*types.UploadSession, error) {
	return s.scan(func(sess *types.UploadSession) bool {
		switch sess.Status {
		case types.StatusPending, types.StatusUploading:
			return sess.ExpiresAt.Before(now)
		}
		return false
	})
}

func (s *BadgerSessionStore) FindStaleTerminalSessions(cutoff time.Time) ([]*types.UploadSession, error) {
	return s.scan(func(sess *types.UploadSession) bool {
		switch sess.Status {
		case types.StatusFailed, types.StatusAborted:
			return sess.UpdatedAt.Before(cutoff)
		}
		return false
	})
}

func (s *BadgerSessionStore) scan(match func(*types.UploadSession) bool) ([]*types.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("store is closed")
	}

	var sessions []*types.UploadSession

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				sess := &types.UploadSession{}
				if err := sess.UnmarshalJSON(val); err != nil {
					log.Logger.Warn("Failed to unmarshal session record: ", err)
					return nil
				}
				if match(sess) {
					sessions = append(sessions, sess)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return sessions, nil
}

func (s *BadgerSessionStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return fmt.Errorf("store is closed")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(id)); err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
		} else if err != nil {
			return err
		}
		return txn.Delete(sessionKey(id))
	})
}
