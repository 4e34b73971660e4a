package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddFact inserts a new mindmap fact. A zero confidence is replaced by
// DefaultConfidence; a linked_to reference must point at an existing fact.
func (s *SQLiteStore) AddFact(ctx context.Context, f *MindmapFact) (int64, error) {
	if f.Label == "" {
		return 0, fmt.Errorf("fact label cannot be empty")
	}
	if f.Category == "" {
		return 0, fmt.Errorf("fact category cannot be empty")
	}
	if f.Confidence == 0 {
		f.Confidence = DefaultConfidence
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return 0, fmt.Errorf("fact confidence must be in [0,1], got %.2f", f.Confidence)
	}

	var linkedArg interface{}
	if f.LinkedTo != nil {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM mindmap_facts WHERE id = ?`, *f.LinkedTo).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("checking linked fact %d: %w", *f.LinkedTo, err)
		}
		if exists == 0 {
			return 0, fmt.Errorf("linked fact %d does not exist", *f.LinkedTo)
		}
		linkedArg = *f.LinkedTo
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO mindmap_facts (label, category, confidence, linked_to, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		f.Label, f.Category, f.Confidence, linkedArg, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting fact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	f.ID = id
	f.CreatedAt = now
	return id, nil
}

// ListFacts returns all mindmap facts, newest first.
func (s *SQLiteStore) ListFacts(ctx context.Context) ([]*MindmapFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, category, confidence, linked_to, created_at
		 FROM mindmap_facts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing facts: %w", err)
	}
	defer rows.Close()

	var facts []*MindmapFact
	for rows.Next() {
		f := &MindmapFact{}
		var linked sql.NullInt64
		if err := rows.Scan(&f.ID, &f.Label, &f.Category, &f.Confidence, &linked, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning fact row: %w", err)
		}
		if linked.Valid {
			v := linked.Int64
			f.LinkedTo = &v
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
