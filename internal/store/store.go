package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/elastic-io/ferry/internal/types"
)

// ErrStatusConflict is returned by UpdateSession when the session's current
// status is not in the expected set. Callers decide how to surface it.
var ErrStatusConflict = errors.New("session status conflict")

// SessionStore is the persistence contract for upload sessions. Updates are
// atomic check-and-set operations so concurrent finalizations serialize at
// this layer.
type SessionStore interface {
	CreateSession(s *types.UploadSession) error
	GetSession(id string) (*types.UploadSession, error)

	// UpdateSession loads the session, verifies its status is one of
	// expected (any status when the set is empty), applies mutate and
	// persists the result in one transaction.
	UpdateSession(id string, expected []types.SessionStatus, mutate func(*types.UploadSession) error) error

	// FindExpiredSessions returns unfinished sessions whose expiry passed.
	FindExpiredSessions(now time.Time) ([]*types.UploadSession, error)

	// FindStaleTerminalSessions returns FAILED/ABORTED sessions last
	// touched before cutoff.
	FindStaleTerminalSessions(cutoff time.Time) ([]*types.UploadSession, error)

	DeleteSession(id string) error

	Close() error
}

type engine func(string) (SessionStore, error)

var Engines = map[string]engine{}

func EngineRegister(name string, e engine) {
	if _, ok := Engines[name]; ok {
		panic(fmt.Errorf("engine %s already registered", name))
	}
	Engines[name] = e
}

func NewSessionStore(engine, path string) (SessionStore, error) {
	if e, ok := Engines[engine]; ok {
		return e(path)
	}
	return nil, fmt.Errorf("engine %s not found", engine)
}

// StatusIn reports membership of s in set; an empty set matches anything.
func StatusIn(s types.SessionStatus, set []types.SessionStatus) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
