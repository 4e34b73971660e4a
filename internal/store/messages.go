package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddMessage appends a turn to the conversation log. Returns the new id.
func (s *SQLiteStore) AddMessage(ctx context.Context, m *Message) (int64, error) {
	if m.Content == "" {
		return 0, fmt.Errorf("message content cannot be empty")
	}
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return 0, fmt.Errorf("invalid message role %q", m.Role)
	}

	now := time.Now().UTC()
	var payloadArg interface{}
	if m.Payload != "" {
		payloadArg = m.Payload
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (role, content, payload, created_at) VALUES (?, ?, ?, ?)`,
		m.Role, m.Content, payloadArg, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	m.ID = id
	m.CreatedAt = now
	return id, nil
}

// ListMessages returns the full conversation log in ascending id order.
func (s *SQLiteStore) ListMessages(ctx context.Context) ([]*Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, role, content, payload, created_at FROM messages ORDER BY id ASC`)
}

// MessagesAfter returns turns with id strictly greater than the given id,
// in ascending id order.
func (s *SQLiteStore) MessagesAfter(ctx context.Context, id int64) ([]*Message, error) {
	return s.queryMessages(ctx,
		`SELECT id, role, content, payload, created_at FROM messages WHERE id > ? ORDER BY id ASC`, id)
}

// RecentMessages returns the newest limit turns in ascending id order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 20
	}
	msgs, err := s.queryMessages(ctx,
		`SELECT id, role, content, payload, created_at FROM messages ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m := &Message{}
		var payload sql.NullString
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		m.Payload = payload.String
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
