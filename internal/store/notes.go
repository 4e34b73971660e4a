package store

import (
	"context"
	"fmt"
	"time"
)

// AddNote inserts a new note. Returns the new id.
func (s *SQLiteStore) AddNote(ctx context.Context, n *Note) (int64, error) {
	if n.Title == "" {
		return 0, fmt.Errorf("note title cannot be empty")
	}
	if n.Origin == "" {
		n.Origin = RoleUser
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (title, body, origin, tag, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.Title, n.Body, n.Origin, n.Tag, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting note: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	n.ID = id
	n.CreatedAt = now
	return id, nil
}

// ListNotes returns all notes, newest first.
func (s *SQLiteStore) ListNotes(ctx context.Context) ([]*Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, body, origin, tag, created_at FROM notes ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		n := &Note{}
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.Origin, &n.Tag, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning note row: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
