package store

import (
	"context"
	"testing"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	// Verify tables exist by querying each
	ss := s.(*SQLiteStore)
	tables := []string{"profiles", "messages", "notes", "lists",
		"list_items", "goals", "mindmap_facts", "meta"}
	for _, table := range tables {
		var name string
		err := ss.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestSchemaVersionSeeded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	version, err := s.GetMeta(ctx, "schema_version")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if version != "1" {
		t.Errorf("expected schema_version '1', got %q", version)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ss := s.(*SQLiteStore)

	// Running migrate again must not fail or duplicate anything.
	if err := ss.migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	var count int
	if err := ss.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('messages') WHERE name='payload'",
	).Scan(&count); err != nil {
		t.Fatalf("checking payload column: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one payload column, got %d", count)
	}
}

func TestAddMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &Message{Role: RoleUser, Content: "hello there"}
	id, err := s.AddMessage(ctx, m)
	if err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}
	if m.ID != id {
		t.Errorf("message ID not updated: expected %d, got %d", id, m.ID)
	}
	if m.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestAddMessageValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddMessage(ctx, &Message{Role: RoleUser}); err == nil {
		t.Error("expected error for empty content")
	}
	if _, err := s.AddMessage(ctx, &Message{Role: "system", Content: "x"}); err == nil {
		t.Error("expected error for invalid role")
	}
}

func TestMessageOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	contents := []string{"first", "second", "third", "fourth"}
	for i, c := range contents {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if _, err := s.AddMessage(ctx, &Message{Role: role, Content: c}); err != nil {
			t.Fatalf("AddMessage %d failed: %v", i, err)
		}
	}

	msgs, err := s.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != contents[i] {
			t.Errorf("message %d: expected %q, got %q", i, contents[i], m.Content)
		}
	}

	// Ids must be strictly increasing.
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Errorf("ids not monotonic: %d after %d", msgs[i].ID, msgs[i-1].ID)
		}
	}
}

func TestMessagesAfter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, c := range []string{"a", "b", "c"} {
		id, err := s.AddMessage(ctx, &Message{Role: RoleUser, Content: c})
		if err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
		ids = append(ids, id)
	}

	msgs, err := s.MessagesAfter(ctx, ids[0])
	if err != nil {
		t.Fatalf("MessagesAfter failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after id %d, got %d", ids[0], len(msgs))
	}
	if msgs[0].Content != "b" || msgs[1].Content != "c" {
		t.Errorf("unexpected tail: %q, %q", msgs[0].Content, msgs[1].Content)
	}

	msgs, err = s.MessagesAfter(ctx, ids[2])
	if err != nil {
		t.Fatalf("MessagesAfter failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages after last id, got %d", len(msgs))
	}
}

func TestRecentMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := s.AddMessage(ctx, &Message{Role: RoleUser, Content: string(rune('a' + i))}); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	msgs, err := s.RecentMessages(ctx, 3)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// Chronological order: h, i, j
	if msgs[0].Content != "h" || msgs[2].Content != "j" {
		t.Errorf("unexpected recent window: %q .. %q", msgs[0].Content, msgs[2].Content)
	}
}

func TestMessagePayloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &Message{Role: RoleAssistant, Content: "hi", Payload: `{"suggestions":["Tell me more"]}`}
	if _, err := s.AddMessage(ctx, m); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	msgs, err := s.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if msgs[0].Payload != m.Payload {
		t.Errorf("payload mismatch: got %q", msgs[0].Payload)
	}
}

func TestProfileSingleton(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.GetProfile(ctx)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if p != nil {
		t.Fatal("expected nil profile on fresh store")
	}

	first := &Profile{Name: "Ada", Nickname: "A", Traits: []string{"curious", "direct"}}
	id1, err := s.SaveProfile(ctx, first)
	if err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	// A second save updates in place, it never creates a second row.
	second := &Profile{Name: "Ada Lovelace", Role: "engineer"}
	id2, err := s.SaveProfile(ctx, second)
	if err != nil {
		t.Fatalf("second SaveProfile failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected same profile id, got %d and %d", id1, id2)
	}

	got, err := s.GetProfile(ctx)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.Name != "Ada Lovelace" || got.Role != "engineer" {
		t.Errorf("unexpected profile after update: %+v", got)
	}

	var count int
	ss := s.(*SQLiteStore)
	ss.db.QueryRow("SELECT COUNT(*) FROM profiles").Scan(&count)
	if count != 1 {
		t.Errorf("expected exactly one profile row, got %d", count)
	}
}

func TestProfileTraitsCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &Profile{Name: "Ada", Traits: []string{"a", "b", "c", "d"}}
	if _, err := s.SaveProfile(ctx, p); err == nil {
		t.Error("expected error for more than 3 traits")
	}
}

func TestProfileDisplayName(t *testing.T) {
	p := &Profile{Name: "Ada", Nickname: "Boss"}
	if p.DisplayName() != "Boss" {
		t.Errorf("expected nickname, got %q", p.DisplayName())
	}
	p.Nickname = ""
	if p.DisplayName() != "Ada" {
		t.Errorf("expected name, got %q", p.DisplayName())
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetMeta(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	if err := s.SetMeta(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetMeta upsert failed: %v", err)
	}
	v, err := s.GetMeta(ctx, "k")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if v != "v2" {
		t.Errorf("expected v2, got %q", v)
	}

	missing, err := s.GetMeta(ctx, "absent")
	if err != nil {
		t.Fatalf("GetMeta for absent key failed: %v", err)
	}
	if missing != "" {
		t.Errorf("expected empty value for absent key, got %q", missing)
	}
}

func TestCheckpointHelpers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mark, err := GetCheckpoint(ctx, s)
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if mark != 0 {
		t.Errorf("expected zero checkpoint on fresh store, got %d", mark)
	}

	if err := SetCheckpoint(ctx, s, 42); err != nil {
		t.Fatalf("SetCheckpoint failed: %v", err)
	}
	mark, err = GetCheckpoint(ctx, s)
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if mark != 42 {
		t.Errorf("expected checkpoint 42, got %d", mark)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.AddMessage(ctx, &Message{Role: RoleUser, Content: "hi"})
	s.AddNote(ctx, &Note{Title: "t", Body: "b"})
	SetCheckpoint(ctx, s, 7)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.MessageCount != 1 {
		t.Errorf("expected 1 message, got %d", stats.MessageCount)
	}
	if stats.NoteCount != 1 {
		t.Errorf("expected 1 note, got %d", stats.NoteCount)
	}
	if stats.Checkpoint != 7 {
		t.Errorf("expected checkpoint 7, got %d", stats.Checkpoint)
	}
}
