package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/marks/internal/model"
)

// SessionStore is the server-side index of issued token pairs. Restoring a
// session from cookies means looking the access token up here.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionCols = `access_token, refresh_token, user_id, expires_at, created_at`

func scanSession(scanner interface{ Scan(...any) error }) (*model.Session, error) {
	var sess model.Session
	err := scanner.Scan(&sess.AccessToken, &sess.RefreshToken, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SessionStore) Create(sess *model.Session) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO sessions (access_token, refresh_token, user_id, expires_at)
		 VALUES (?, ?, ?, ?)`,
		sess.AccessToken, sess.RefreshToken, sess.UserID, sess.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByAccessToken returns the live session for the token, or nil when the
// token is unknown or expired. Expired rows are indistinguishable from
// absent ones on purpose: the view layer never sees a partial session.
func (s *SessionStore) GetByAccessToken(token string) (*model.Session, error) {
	row := s.db.QueryRow(
		`SELECT `+sessionCols+` FROM sessions
		 WHERE access_token = ? AND expires_at > datetime('now')`,
		token,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Replace swaps the stored session wholesale, as happens on token refresh.
func (s *SessionStore) Replace(oldAccessToken string, next *model.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sessions WHERE access_token = ?`, oldAccessToken); err != nil {
		return fmt.Errorf("delete old session: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO sessions (access_token, refresh_token, user_id, expires_at)
		 VALUES (?, ?, ?, ?)`,
		next.AccessToken, next.RefreshToken, next.UserID, next.ExpiresAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert new session: %w", err)
	}
	return tx.Commit()
}

func (s *SessionStore) DeleteByAccessToken(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE access_token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes expired sessions and returns the number deleted.
func (s *SessionStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
