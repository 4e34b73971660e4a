package store

import (
	"context"
	"testing"
	"time"
)

// --- Notes ---

func TestAddNote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := &Note{Title: "Trip ideas", Body: "Kyoto in autumn", Origin: RoleAssistant, Tag: "travel"}
	id, err := s.AddNote(ctx, n)
	if err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	notes, err := s.ListNotes(ctx)
	if err != nil {
		t.Fatalf("ListNotes failed: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
	if notes[0].Origin != RoleAssistant || notes[0].Tag != "travel" {
		t.Errorf("unexpected note: %+v", notes[0])
	}
}

func TestAddNoteDefaultsOrigin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := &Note{Title: "x", Body: "y"}
	if _, err := s.AddNote(ctx, n); err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}
	if n.Origin != RoleUser {
		t.Errorf("expected origin %q, got %q", RoleUser, n.Origin)
	}
}

// --- Lists ---

func TestListItemsCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	l := &List{Title: "Groceries", Category: "groceries"}
	listID, err := s.AddList(ctx, l)
	if err != nil {
		t.Fatalf("AddList failed: %v", err)
	}

	for _, c := range []string{"Milk", "Eggs"} {
		if _, err := s.AddListItem(ctx, &ListItem{ListID: listID, Content: c}); err != nil {
			t.Fatalf("AddListItem failed: %v", err)
		}
	}

	if err := s.DeleteList(ctx, listID); err != nil {
		t.Fatalf("DeleteList failed: %v", err)
	}

	ss := s.(*SQLiteStore)
	var count int
	ss.db.QueryRow("SELECT COUNT(*) FROM list_items").Scan(&count)
	if count != 0 {
		t.Errorf("expected items to cascade-delete, %d remain", count)
	}
}

func TestAddListItemRequiresList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddListItem(ctx, &ListItem{ListID: 999, Content: "orphan"}); err == nil {
		t.Error("expected foreign key error for missing list")
	}
}

func TestSetListItemDone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	listID, _ := s.AddList(ctx, &List{Title: "Todo"})
	itemID, err := s.AddListItem(ctx, &ListItem{ListID: listID, Content: "ship it"})
	if err != nil {
		t.Fatalf("AddListItem failed: %v", err)
	}

	if err := s.SetListItemDone(ctx, itemID, true); err != nil {
		t.Fatalf("SetListItemDone failed: %v", err)
	}

	items, err := s.ListItems(ctx, listID)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if !items[0].Done {
		t.Error("expected item to be done")
	}
}

// --- Goals ---

func TestCompleteGoal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	target := 10.0
	g := &Goal{Title: "Run", Cadence: CadenceWeekly, Target: &target}
	id, err := s.AddGoal(ctx, g)
	if err != nil {
		t.Fatalf("AddGoal failed: %v", err)
	}

	at := time.Now().UTC()
	if err := s.CompleteGoal(ctx, id, at); err != nil {
		t.Fatalf("CompleteGoal failed: %v", err)
	}
	if err := s.CompleteGoal(ctx, id, at.Add(time.Hour)); err != nil {
		t.Fatalf("second CompleteGoal failed: %v", err)
	}

	goals, err := s.ListGoals(ctx)
	if err != nil {
		t.Fatalf("ListGoals failed: %v", err)
	}
	if goals[0].Streak != 2 {
		t.Errorf("expected streak 2, got %d", goals[0].Streak)
	}
	if goals[0].LastCompleted == nil {
		t.Error("expected last_completed to be set")
	}
	if goals[0].Target == nil || *goals[0].Target != 10.0 {
		t.Errorf("unexpected target: %v", goals[0].Target)
	}
}

func TestCompleteGoalNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CompleteGoal(ctx, 12345, time.Now()); err == nil {
		t.Error("expected error for missing goal")
	}
}

func TestAddGoalInvalidCadence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddGoal(ctx, &Goal{Title: "x", Cadence: "hourly"}); err == nil {
		t.Error("expected error for invalid cadence")
	}
}

// --- Mindmap ---

func TestAddFactDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := &MindmapFact{Label: "Loves hiking", Category: CategoryValues}
	if _, err := s.AddFact(ctx, f); err != nil {
		t.Fatalf("AddFact failed: %v", err)
	}
	if f.Confidence != DefaultConfidence {
		t.Errorf("expected default confidence %.1f, got %.2f", DefaultConfidence, f.Confidence)
	}
}

func TestAddFactLinked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base, err := s.AddFact(ctx, &MindmapFact{Label: "Outdoors", Category: CategoryValues, Confidence: 0.9})
	if err != nil {
		t.Fatalf("AddFact failed: %v", err)
	}

	linked := &MindmapFact{Label: "Hiking", Category: CategoryFacts, Confidence: 0.7, LinkedTo: &base}
	if _, err := s.AddFact(ctx, linked); err != nil {
		t.Fatalf("AddFact with link failed: %v", err)
	}

	missing := int64(999)
	bad := &MindmapFact{Label: "Dangling", Category: CategoryFacts, Confidence: 0.5, LinkedTo: &missing}
	if _, err := s.AddFact(ctx, bad); err == nil {
		t.Error("expected error for dangling link")
	}
}

func TestAddFactConfidenceRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddFact(ctx, &MindmapFact{Label: "x", Category: CategoryFacts, Confidence: 1.5}); err == nil {
		t.Error("expected error for confidence above 1")
	}
	if _, err := s.AddFact(ctx, &MindmapFact{Label: "x", Category: CategoryFacts, Confidence: -0.1}); err == nil {
		t.Error("expected error for negative confidence")
	}
}
