package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddGoal inserts a new goal. Returns the new id.
func (s *SQLiteStore) AddGoal(ctx context.Context, g *Goal) (int64, error) {
	if g.Title == "" {
		return 0, fmt.Errorf("goal title cannot be empty")
	}
	if g.Cadence == "" {
		g.Cadence = CadenceDaily
	}
	switch g.Cadence {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
	default:
		return 0, fmt.Errorf("invalid goal cadence %q", g.Cadence)
	}

	now := time.Now().UTC()
	var targetArg interface{}
	if g.Target != nil {
		targetArg = *g.Target
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (title, cadence, streak, target, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.Title, g.Cadence, g.Streak, targetArg, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting goal: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	g.ID = id
	g.CreatedAt = now
	return id, nil
}

// ListGoals returns all goals, newest first.
func (s *SQLiteStore) ListGoals(ctx context.Context) ([]*Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, cadence, streak, last_completed, target, created_at
		 FROM goals ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing goals: %w", err)
	}
	defer rows.Close()

	var goals []*Goal
	for rows.Next() {
		g := &Goal{}
		var lastCompleted sql.NullTime
		var target sql.NullFloat64
		if err := rows.Scan(&g.ID, &g.Title, &g.Cadence, &g.Streak, &lastCompleted, &target, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning goal row: %w", err)
		}
		if lastCompleted.Valid {
			t := lastCompleted.Time
			g.LastCompleted = &t
		}
		if target.Valid {
			v := target.Float64
			g.Target = &v
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// CompleteGoal increments the goal's streak by one and records the completion
// time. Streaks never decrement.
func (s *SQLiteStore) CompleteGoal(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE goals SET streak = streak + 1, last_completed = ? WHERE id = ?`,
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("completing goal %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("goal %d not found", id)
	}
	return nil
}
