package cli

import (
	"context"
	"errors"
	"fmt"

	"banksim/internal/gameclock"
	"banksim/internal/kvstore"
)

const (
	sessionKey   = "session"
	gameClockKey = "gameclock"
)

var ErrNoSession = errors.New("no session, run `phone signup` first")

type Session struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Sessions keeps the signed-in user in the phone's local store.
type Sessions struct {
	store *kvstore.FileStore
}

func NewSessions(store *kvstore.FileStore) *Sessions {
	return &Sessions{store: store}
}

func (s *Sessions) Save(sess Session) error {
	return s.store.Put(sessionKey, sess)
}

func (s *Sessions) Load() (Session, error) {
	var sess Session
	err := s.store.Get(sessionKey, &sess)
	if errors.Is(err, kvstore.ErrNotFound) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	if sess.UserID <= 0 {
		return Session{}, fmt.Errorf("%w: session has no user id", ErrNoSession)
	}
	return sess, nil
}

func (s *Sessions) Clear() error {
	return s.store.Delete(sessionKey)
}

// ClockStore persists game clock state under the "gameclock" key.
type ClockStore struct {
	store *kvstore.FileStore
}

func NewClockStore(store *kvstore.FileStore) *ClockStore {
	return &ClockStore{store: store}
}

func (c *ClockStore) Load(_ context.Context) (gameclock.State, error) {
	var st gameclock.State
	err := c.store.Get(gameClockKey, &st)
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, kvstore.ErrNotFound):
		return gameclock.State{}, gameclock.ErrNotFound
	case errors.Is(err, kvstore.ErrCorrupt):
		return gameclock.State{}, fmt.Errorf("%w: %v", gameclock.ErrCorrupt, err)
	default:
		return gameclock.State{}, err
	}
}

func (c *ClockStore) Save(_ context.Context, st gameclock.State) error {
	return c.store.Put(gameClockKey, st)
}

// BusinessStore keeps the ids of business templates each player owns, one
// key per user so players sharing a device do not see each other's.
type BusinessStore struct {
	store *kvstore.FileStore
}

func NewBusinessStore(store *kvstore.FileStore) *BusinessStore {
	return &BusinessStore{store: store}
}

func businessesKey(userID int64) string {
	return fmt.Sprintf("businesses_%d", userID)
}

func (b *BusinessStore) Owned(userID int64) ([]string, error) {
	var ids []string
	err := b.store.Get(businessesKey(userID), &ids)
	if errors.Is(err, kvstore.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (b *BusinessStore) SetOwned(userID int64, ids []string) error {
	return b.store.Put(businessesKey(userID), ids)
}
