package store

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/teamchat/internal/models"
)

// ErrNoSession is returned when no token is stored for a session.
var ErrNoSession = errors.New("no stored session")

// Session is the persisted login of one named session.
type Session struct {
	Name      string
	Token     string
	UserID    models.UserID
	Username  string
	UpdatedAt time.Time
}

// SaveSession inserts or replaces the stored login for s.Name.
func (db *DB) SaveSession(s *Session) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sessions (name, token, user_id, username, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			token = excluded.token,
			user_id = CASE WHEN excluded.user_id != 0 THEN excluded.user_id ELSE sessions.user_id END,
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE sessions.username END,
			updated_at = excluded.updated_at`,
		s.Name, s.Token, int64(s.UserID), s.Username, now)
	return err
}

// LoadSession returns the stored login for name, or ErrNoSession.
func (db *DB) LoadSession(name string) (*Session, error) {
	var (
		s       Session
		userID  int64
		updated int64
	)
	err := db.QueryRow(`SELECT name, token, user_id, username, updated_at FROM sessions WHERE name = ?`, name).
		Scan(&s.Name, &s.Token, &userID, &s.Username, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	s.UserID = models.UserID(userID)
	s.UpdatedAt = time.UnixMilli(updated)
	return &s, nil
}

// DeleteSession forgets the stored login. Deleting a missing session is not an error.
func (db *DB) DeleteSession(name string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE name = ?`, name)
	return err
}

// TokenStore exposes one session's stored token to the REST client and the
// daemon. Reads are served from memory after the first load.
type TokenStore struct {
	db   *DB
	name string

	mu     sync.Mutex
	loaded bool
	token  string
}

// Tokens returns the TokenStore for the named session.
func (db *DB) Tokens(name string) *TokenStore {
	return &TokenStore{db: db, name: name}
}

// Token returns the stored token, or "" when the session is logged out.
func (ts *TokenStore) Token() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.loaded {
		if s, err := ts.db.LoadSession(ts.name); err == nil {
			ts.token = s.Token
		}
		ts.loaded = true
	}
	return ts.token
}

// Set stores a fresh token along with the identity it belongs to.
func (ts *TokenStore) Set(token string, user models.User) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if err := ts.db.SaveSession(&Session{Name: ts.name, Token: token, UserID: user.ID, Username: user.Username}); err != nil {
		return err
	}
	ts.token, ts.loaded = token, true
	return nil
}

// Clear removes the stored token.
func (ts *TokenStore) Clear() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token, ts.loaded = "", true
	return ts.db.DeleteSession(ts.name)
}
