package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sxm1129/bookqueue/internal/model"
)

// UpsertBook inserts a new dim_books row for title, or refreshes
// author and total_chapters on an existing one, returning the book_id
// either way — the Go equivalent of upsert_book's
// mysql_insert(...).on_duplicate_key_update(...).
func (s *Store) UpsertBook(ctx context.Context, title, author string, totalChapters int) (int64, error) {
	const q = `
		INSERT INTO dim_books (title, author, total_chapters)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			author = VALUES(author),
			total_chapters = VALUES(total_chapters)`

	if _, err := s.db.ExecContext(ctx, q, title, nullableString(author), totalChapters); err != nil {
		return 0, fmt.Errorf("upsert book %q: %w", title, err)
	}

	// A no-op UPDATE (values unchanged) yields LastInsertId 0 on MySQL
	// even for an existing row, so the id is always looked up directly
	// rather than trusted from the Exec result.
	var bookID int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT book_id FROM dim_books WHERE title = ?`, title,
	).Scan(&bookID); err != nil {
		return 0, fmt.Errorf("lookup book %q after upsert: %w", title, err)
	}
	return bookID, nil
}

// GetBook fetches a single book row by id.
func (s *Store) GetBook(ctx context.Context, bookID int64) (*model.Book, error) {
	var b model.Book
	var author sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT book_id, title, author, total_chapters, created_at FROM dim_books WHERE book_id = ?`,
		bookID,
	).Scan(&b.BookID, &b.Title, &author, &b.TotalChapters, &b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", bookID, err)
	}
	b.Author = author.String
	return &b, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
