package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/marks/internal/model"
)

type BookmarkStore struct {
	db *sql.DB
}

func NewBookmarkStore(db *sql.DB) *BookmarkStore {
	return &BookmarkStore{db: db}
}

const bookmarkCols = `id, title, url, user_id, created_at`

func scanBookmark(scanner interface{ Scan(...any) error }) (*model.Bookmark, error) {
	var b model.Bookmark
	err := scanner.Scan(&b.ID, &b.Title, &b.URL, &b.UserID, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a bookmark and returns the stored row. The id and creation
// timestamp are assigned here, never by the caller.
func (s *BookmarkStore) Create(title, url, userID string) (*model.Bookmark, error) {
	result, err := s.db.Exec(
		`INSERT INTO bookmarks (title, url, user_id) VALUES (?, ?, ?)`,
		title, url, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert bookmark: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *BookmarkStore) GetByID(id int64) (*model.Bookmark, error) {
	row := s.db.QueryRow(`SELECT `+bookmarkCols+` FROM bookmarks WHERE id = ?`, id)
	b, err := scanBookmark(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bookmark: %w", err)
	}
	return b, nil
}

// ListByUser returns the user's bookmarks newest first. Rows sharing a
// creation timestamp keep insertion order (ids are monotonic).
func (s *BookmarkStore) ListByUser(userID string) ([]model.Bookmark, error) {
	rows, err := s.db.Query(
		`SELECT `+bookmarkCols+` FROM bookmarks
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var bookmarks []model.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, *b)
	}
	return bookmarks, rows.Err()
}

// Delete removes the bookmark only if it belongs to userID, mirroring the
// ownership filter the view layer trusts. It reports whether a row was
// removed.
func (s *BookmarkStore) Delete(id int64, userID string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM bookmarks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete bookmark: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
