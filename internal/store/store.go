// Package store provides the SQLite storage layer for aide.
//
// All assistant data lives in a single SQLite database file, including:
// - The conversation log (user and assistant turns)
// - Records extracted from conversations (notes, list items, goals, mindmap facts)
// - The user profile and persona traits
// - Pipeline metadata such as the analysis checkpoint
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.aide/aide.db"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Goal cadences.
const (
	CadenceDaily   = "daily"
	CadenceWeekly  = "weekly"
	CadenceMonthly = "monthly"
)

// Mindmap fact categories.
const (
	CategoryValues      = "values"
	CategoryGoals       = "goals"
	CategoryPersonality = "personality"
	CategoryFacts       = "facts"
)

// DefaultConfidence is assigned to mindmap facts that arrive without one.
const DefaultConfidence = 0.8

// MaxActiveTraits caps the number of persona traits on a profile.
const MaxActiveTraits = 3

// Profile is the single per-installation user profile.
type Profile struct {
	ID        int64
	Name      string
	Nickname  string
	Role      string
	AgeGroup  string
	Gender    string
	Traits    []string
	CreatedAt time.Time
}

// DisplayName returns the nickname when set, the name otherwise.
func (p *Profile) DisplayName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.Name
}

// Message is a single conversation turn. Immutable once created.
type Message struct {
	ID        int64
	Role      string // RoleUser or RoleAssistant
	Content   string
	Payload   string // optional side-channel JSON (e.g. suggestion chips)
	CreatedAt time.Time
}

// Note is a captured note, written either by the user or the pipeline.
type Note struct {
	ID        int64
	Title     string
	Body      string
	Origin    string // RoleUser or RoleAssistant
	Tag       string
	CreatedAt time.Time
}

// List is a container of list items.
type List struct {
	ID        int64
	Title     string
	Category  string
	CreatedAt time.Time
}

// ListItem belongs to exactly one List and cascade-deletes with it.
type ListItem struct {
	ID        int64
	ListID    int64
	Content   string
	Done      bool
	CreatedAt time.Time
}

// Goal tracks a recurring goal with a completion streak.
type Goal struct {
	ID            int64
	Title         string
	Cadence       string // daily, weekly, monthly
	Streak        int
	LastCompleted *time.Time
	Target        *float64
	CreatedAt     time.Time
}

// MindmapFact is a single node in the user's mindmap.
type MindmapFact struct {
	ID         int64
	Label      string
	Category   string // values, goals, personality, facts
	Confidence float64
	LinkedTo   *int64 // optional non-owning link to another fact
	CreatedAt  time.Time
}

// Stats holds observability counts about the store.
type Stats struct {
	MessageCount  int64
	NoteCount     int64
	ListCount     int64
	ListItemCount int64
	GoalCount     int64
	FactCount     int64
	Checkpoint    int64
	DBSizeBytes   int64
}

// Config holds configuration for Open.
type Config struct {
	DBPath string
}

// Store defines the core storage interface.
type Store interface {
	// Profile (singleton)
	SaveProfile(ctx context.Context, p *Profile) (int64, error)
	GetProfile(ctx context.Context) (*Profile, error)

	// Messages (conversation log)
	AddMessage(ctx context.Context, m *Message) (int64, error)
	ListMessages(ctx context.Context) ([]*Message, error)
	MessagesAfter(ctx context.Context, id int64) ([]*Message, error)
	RecentMessages(ctx context.Context, limit int) ([]*Message, error)

	// Notes
	AddNote(ctx context.Context, n *Note) (int64, error)
	ListNotes(ctx context.Context) ([]*Note, error)

	// Lists
	AddList(ctx context.Context, l *List) (int64, error)
	ListLists(ctx context.Context) ([]*List, error)
	DeleteList(ctx context.Context, id int64) error
	AddListItem(ctx context.Context, item *ListItem) (int64, error)
	ListItems(ctx context.Context, listID int64) ([]*ListItem, error)
	SetListItemDone(ctx context.Context, id int64, done bool) error

	// Goals
	AddGoal(ctx context.Context, g *Goal) (int64, error)
	ListGoals(ctx context.Context) ([]*Goal, error)
	CompleteGoal(ctx context.Context, id int64, at time.Time) error

	// Mindmap
	AddFact(ctx context.Context, f *MindmapFact) (int64, error)
	ListFacts(ctx context.Context) ([]*MindmapFact, error)

	// Pipeline metadata
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	// Observability
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// Open creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func Open(cfg Config) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Enable WAL mode and foreign keys
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// GetDB exposes the underlying handle for callers that need raw SQL.
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats returns row counts and database size.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		table string
		dst   *int64
	}{
		{"messages", &stats.MessageCount},
		{"notes", &stats.NoteCount},
		{"lists", &stats.ListCount},
		{"list_items", &stats.ListItemCount},
		{"goals", &stats.GoalCount},
		{"mindmap_facts", &stats.FactCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}

	if raw, err := s.GetMeta(ctx, MetaAnalysisCheckpoint); err == nil && raw != "" {
		fmt.Sscanf(raw, "%d", &stats.Checkpoint)
	}

	if s.dbPath != ":memory:" {
		if fi, err := os.Stat(s.dbPath); err == nil {
			stats.DBSizeBytes = fi.Size()
		}
	}

	return stats, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
