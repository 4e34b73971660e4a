package store

import (
	"context"
	"fmt"
	"time"
)

// AddList inserts a new list container. Returns the new id.
func (s *SQLiteStore) AddList(ctx context.Context, l *List) (int64, error) {
	if l.Title == "" {
		return 0, fmt.Errorf("list title cannot be empty")
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO lists (title, category, created_at) VALUES (?, ?, ?)`,
		l.Title, l.Category, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting list: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	l.ID = id
	l.CreatedAt = now
	return id, nil
}

// ListLists returns all list containers, newest first.
func (s *SQLiteStore) ListLists(ctx context.Context) ([]*List, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, category, created_at FROM lists ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing lists: %w", err)
	}
	defer rows.Close()

	var lists []*List
	for rows.Next() {
		l := &List{}
		if err := rows.Scan(&l.ID, &l.Title, &l.Category, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning list row: %w", err)
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// DeleteList removes a list container; its items cascade-delete with it.
func (s *SQLiteStore) DeleteList(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting list %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("list %d not found", id)
	}
	return nil
}

// AddListItem inserts an item into an existing list. Returns the new id.
func (s *SQLiteStore) AddListItem(ctx context.Context, item *ListItem) (int64, error) {
	if item.Content == "" {
		return 0, fmt.Errorf("list item content cannot be empty")
	}
	if item.ListID <= 0 {
		return 0, fmt.Errorf("list item requires a list id")
	}

	now := time.Now().UTC()
	done := 0
	if item.Done {
		done = 1
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO list_items (list_id, content, done, created_at) VALUES (?, ?, ?, ?)`,
		item.ListID, item.Content, done, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting list item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	item.ID = id
	item.CreatedAt = now
	return id, nil
}

// ListItems returns the items of a list in insertion order.
func (s *SQLiteStore) ListItems(ctx context.Context, listID int64) ([]*ListItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, list_id, content, done, created_at FROM list_items WHERE list_id = ? ORDER BY id ASC`,
		listID)
	if err != nil {
		return nil, fmt.Errorf("listing items for list %d: %w", listID, err)
	}
	defer rows.Close()

	var items []*ListItem
	for rows.Next() {
		item := &ListItem{}
		var done int
		if err := rows.Scan(&item.ID, &item.ListID, &item.Content, &done, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning list item row: %w", err)
		}
		item.Done = done != 0
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetListItemDone toggles an item's completion flag.
func (s *SQLiteStore) SetListItemDone(ctx context.Context, id int64, done bool) error {
	v := 0
	if done {
		v = 1
	}
	result, err := s.db.ExecContext(ctx, `UPDATE list_items SET done = ? WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("updating list item %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("list item %d not found", id)
	}
	return nil
}
