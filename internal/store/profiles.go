package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SaveProfile inserts the profile, or updates the existing row when one is
// already present. Exactly one profile exists per installation; the singleton
// is enforced here, not by a uniqueness constraint.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p *Profile) (int64, error) {
	if p.Name == "" {
		return 0, fmt.Errorf("profile name cannot be empty")
	}
	if len(p.Traits) > MaxActiveTraits {
		return 0, fmt.Errorf("at most %d traits may be active, got %d", MaxActiveTraits, len(p.Traits))
	}

	traits, err := json.Marshal(p.Traits)
	if err != nil {
		return 0, fmt.Errorf("marshaling traits: %w", err)
	}
	if p.Traits == nil {
		traits = []byte("[]")
	}

	existing, err := s.GetProfile(ctx)
	if err != nil {
		return 0, err
	}

	if existing != nil {
		_, err := s.db.ExecContext(ctx,
			`UPDATE profiles SET name = ?, nickname = ?, role = ?, age_group = ?, gender = ?, traits = ?
			 WHERE id = ?`,
			p.Name, p.Nickname, p.Role, p.AgeGroup, p.Gender, string(traits), existing.ID,
		)
		if err != nil {
			return 0, fmt.Errorf("updating profile: %w", err)
		}
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		return existing.ID, nil
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (name, nickname, role, age_group, gender, traits, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Nickname, p.Role, p.AgeGroup, p.Gender, string(traits), now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting profile: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	p.ID = id
	p.CreatedAt = now
	return id, nil
}

// GetProfile returns the installation's profile, or nil when none exists yet.
func (s *SQLiteStore) GetProfile(ctx context.Context) (*Profile, error) {
	p := &Profile{}
	var traits string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, nickname, role, age_group, gender, traits, created_at
		 FROM profiles ORDER BY id ASC LIMIT 1`,
	).Scan(&p.ID, &p.Name, &p.Nickname, &p.Role, &p.AgeGroup, &p.Gender, &traits, &p.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}

	if err := json.Unmarshal([]byte(traits), &p.Traits); err != nil {
		p.Traits = nil
	}

	return p, nil
}
