package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// MetaAnalysisCheckpoint is the meta key holding the highest message id
// already folded into an analysis run.
const MetaAnalysisCheckpoint = "analysis_checkpoint"

// GetMeta returns the value for a meta key, or "" when the key is absent.
func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting meta %q: %w", key, err)
	}
	return value, nil
}

// SetMeta upserts a meta key.
func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting meta %q: %w", key, err)
	}
	return nil
}

// GetCheckpoint reads the analysis checkpoint, defaulting to 0.
func GetCheckpoint(ctx context.Context, s Store) (int64, error) {
	raw, err := s.GetMeta(ctx, MetaAnalysisCheckpoint)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	mark, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing analysis checkpoint %q: %w", raw, err)
	}
	return mark, nil
}

// SetCheckpoint persists the analysis checkpoint.
func SetCheckpoint(ctx context.Context, s Store, mark int64) error {
	return s.SetMeta(ctx, MetaAnalysisCheckpoint, strconv.FormatInt(mark, 10))
}
