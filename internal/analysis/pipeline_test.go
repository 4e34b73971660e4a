package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aide-sh/aide/internal/llm"
	"github.com/aide-sh/aide/internal/store"
)

// stubEngine is a canned-response Provider for pipeline tests.
type stubEngine struct {
	mu        sync.Mutex
	response  string
	err       error
	readyErr  error
	calls     int
	lastInput string
	block     chan struct{} // when set, Complete waits until closed
}

func (s *stubEngine) Complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (string, error) {
	s.mu.Lock()
	s.calls++
	s.lastInput = prompt
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	return s.response, s.err
}

func (s *stubEngine) Ready(ctx context.Context) error { return s.readyErr }
func (s *stubEngine) Name() string                    { return "stub" }

func (s *stubEngine) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func addTurns(t *testing.T, st store.Store, contents ...string) []int64 {
	t.Helper()
	var ids []int64
	for i, c := range contents {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		id, err := st.AddMessage(context.Background(), &store.Message{Role: role, Content: c})
		if err != nil {
			t.Fatalf("adding turn: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

const emptyResult = `{"notes":[],"listItems":[],"completedGoals":[],"mindmapNodes":[]}`

func TestPipelineAdvancesCheckpoint(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := addTurns(t, st, "remember to buy milk", "added to your list")

	engine := &stubEngine{response: emptyResult}
	p := New(st, engine, nil)

	p.ProcessRecentConversations(ctx)

	if engine.callCount() != 1 {
		t.Fatalf("expected 1 analysis call, got %d", engine.callCount())
	}
	mark, err := store.GetCheckpoint(ctx, st)
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if mark != ids[len(ids)-1] {
		t.Errorf("expected checkpoint %d, got %d", ids[len(ids)-1], mark)
	}
}

func TestPipelineUnderThresholdGuard(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	engine := &stubEngine{response: emptyResult}
	p := New(st, engine, nil)

	// Zero new turns: no call, no checkpoint movement.
	p.ProcessRecentConversations(ctx)
	if engine.callCount() != 0 {
		t.Errorf("expected no analysis call with 0 turns, got %d", engine.callCount())
	}

	// One new turn: still under threshold.
	addTurns(t, st, "hello")
	p.ProcessRecentConversations(ctx)
	if engine.callCount() != 0 {
		t.Errorf("expected no analysis call with 1 turn, got %d", engine.callCount())
	}

	mark, _ := store.GetCheckpoint(ctx, st)
	if mark != 0 {
		t.Errorf("checkpoint moved without analysis: %d", mark)
	}
}

func TestPipelineSkipsWhenEngineNotReady(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	addTurns(t, st, "a", "b")

	engine := &stubEngine{response: emptyResult, readyErr: fmt.Errorf("model loading")}
	p := New(st, engine, nil)

	p.ProcessRecentConversations(ctx)
	if engine.callCount() != 0 {
		t.Errorf("expected no call when engine not ready, got %d", engine.callCount())
	}
}

func TestPipelineRetriesAfterParseFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ids := addTurns(t, st, "note this down", "sure")

	engine := &stubEngine{response: "I'm sorry, I can't produce JSON"}
	p := New(st, engine, nil)

	p.ProcessRecentConversations(ctx)
	mark, _ := store.GetCheckpoint(ctx, st)
	if mark != 0 {
		t.Fatalf("checkpoint must not advance on parse failure, got %d", mark)
	}

	// Same turns are retried on the next invocation.
	engine.response = emptyResult
	p.ProcessRecentConversations(ctx)
	if engine.callCount() != 2 {
		t.Fatalf("expected retry call, got %d calls", engine.callCount())
	}
	mark, _ = store.GetCheckpoint(ctx, st)
	if mark != ids[len(ids)-1] {
		t.Errorf("expected checkpoint %d after retry, got %d", ids[len(ids)-1], mark)
	}
}

func TestPipelineSwallowsEngineErrors(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	addTurns(t, st, "a", "b")

	engine := &stubEngine{err: fmt.Errorf("connection refused")}
	p := New(st, engine, nil)

	// Must not panic or propagate; checkpoint stays put; busy is released.
	p.ProcessRecentConversations(ctx)
	mark, _ := store.GetCheckpoint(ctx, st)
	if mark != 0 {
		t.Errorf("checkpoint moved on engine error: %d", mark)
	}
	if p.Busy() {
		t.Error("busy flag not released after error")
	}
}

func TestPipelineSingleFlight(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	addTurns(t, st, "a", "b")

	gate := make(chan struct{})
	engine := &stubEngine{response: emptyResult, block: gate}
	p := New(st, engine, nil)

	done := make(chan struct{})
	go func() {
		p.ProcessRecentConversations(ctx)
		close(done)
	}()

	// Wait for the first run to reach the engine.
	for i := 0; i < 100 && engine.callCount() == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if engine.callCount() != 1 {
		t.Fatalf("first run never reached engine")
	}

	// A second trigger while busy returns immediately without calling.
	p.ProcessRecentConversations(ctx)
	if engine.callCount() != 1 {
		t.Errorf("overlapping run reached engine: %d calls", engine.callCount())
	}

	close(gate)
	<-done
	if p.Busy() {
		t.Error("busy flag not released")
	}
}

func TestPipelineCheckpointMonotonic(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	engine := &stubEngine{response: emptyResult}
	p := New(st, engine, nil)

	var prev int64
	for round := 0; round < 3; round++ {
		addTurns(t, st, "ping", "pong")
		p.ProcessRecentConversations(ctx)
		mark, err := store.GetCheckpoint(ctx, st)
		if err != nil {
			t.Fatalf("GetCheckpoint failed: %v", err)
		}
		if mark < prev {
			t.Fatalf("checkpoint decreased: %d -> %d", prev, mark)
		}
		if mark == prev {
			t.Fatalf("checkpoint did not advance on round %d", round)
		}
		prev = mark
	}
}

func TestApplyNotes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	addTurns(t, st, "note: kyoto trip ideas", "noted")

	engine := &stubEngine{response: `{
		"notes": [
			{"title": "Kyoto trip", "body": "visit in autumn"},
			{"title": "", "body": "no title, skipped"},
			{"title": "no body, skipped", "body": ""}
		],
		"listItems": [], "completedGoals": [], "mindmapNodes": []
	}`}
	p := New(st, engine, nil)
	p.ProcessRecentConversations(ctx)

	notes, err := st.ListNotes(ctx)
	if err != nil {
		t.Fatalf("ListNotes failed: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
	if notes[0].Origin != store.RoleAssistant {
		t.Errorf("expected assistant origin, got %q", notes[0].Origin)
	}

	// Notes are not deduplicated: a second run with the same note creates
	// another row.
	addTurns(t, st, "again", "ok")
	p.ProcessRecentConversations(ctx)
	notes, _ = st.ListNotes(ctx)
	if len(notes) != 2 {
		t.Errorf("expected 2 notes after repeat, got %d", len(notes))
	}
}

func TestApplyListFuzzyMatchAndDedup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Pre-existing container; fuzzy-matches incoming name "my groceries".
	listID, err := st.AddList(ctx, &store.List{Title: "Groceries", Category: "groceries"})
	if err != nil {
		t.Fatalf("AddList failed: %v", err)
	}

	addTurns(t, st, "add milk to my groceries list", "done")
	engine := &stubEngine{response: `{
		"notes": [], "completedGoals": [], "mindmapNodes": [],
		"listItems": [{"listName": "my groceries", "items": ["Milk", "milk"]}]
	}`}
	p := New(st, engine, nil)
	p.ProcessRecentConversations(ctx)

	lists, _ := st.ListLists(ctx)
	if len(lists) != 1 {
		t.Fatalf("expected no new list, got %d lists", len(lists))
	}

	items, err := st.ListItems(ctx, listID)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item after dedup, got %d", len(items))
	}
	if items[0].Content != "Milk" {
		t.Errorf("expected first spelling kept, got %q", items[0].Content)
	}

	// A second run with an already-present item inserts nothing.
	addTurns(t, st, "milk again", "ok")
	engine.response = `{
		"notes": [], "completedGoals": [], "mindmapNodes": [],
		"listItems": [{"listName": "GROCERIES", "items": ["MILK"]}]
	}`
	p.ProcessRecentConversations(ctx)
	items, _ = st.ListItems(ctx, listID)
	if len(items) != 1 {
		t.Errorf("expected 1 item after second run, got %d", len(items))
	}
}

func TestApplyListCreatesContainer(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	addTurns(t, st, "start a packing list", "ok")

	engine := &stubEngine{response: `{
		"notes": [], "completedGoals": [], "mindmapNodes": [],
		"listItems": [{"listName": "Packing List", "items": ["Passport", "Charger"]}]
	}`}
	p := New(st, engine, nil)
	p.ProcessRecentConversations(ctx)

	lists, err := st.ListLists(ctx)
	if err != nil {
		t.Fatalf("ListLists failed: %v", err)
	}
	if len(lists) != 1 {
		t.Fatalf("expected 1 list, got %d", len(lists))
	}
	if lists[0].Title != "Packing List" {
		t.Errorf("unexpected title %q", lists[0].Title)
	}
	if lists[0].Category != "packing_list" {
		t.Errorf("expected category packing_list, got %q", lists[0].Category)
	}

	items, _ := st.ListItems(ctx, lists[0].ID)
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}

func TestApplyCompletedGoals(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	goalID, err := st.AddGoal(ctx, &store.Goal{Title: "Morning Run", Cadence: store.CadenceDaily})
	if err != nil {
		t.Fatalf("AddGoal failed: %v", err)
	}

	addTurns(t, st, "went for my run today", "nice work")
	engine := &stubEngine{response: `{
		"notes": [], "listItems": [], "mindmapNodes": [],
		"completedGoals": [{"title": "run"}, {"title": "meditate"}]
	}`}
	p := New(st, engine, nil)
	p.ProcessRecentConversations(ctx)

	goals, _ := st.ListGoals(ctx)
	if len(goals) != 1 {
		t.Fatalf("completion mention must not create goals, got %d", len(goals))
	}
	if goals[0].ID != goalID || goals[0].Streak != 1 {
		t.Errorf("expected streak 1 on goal %d, got %+v", goalID, goals[0])
	}
	if goals[0].LastCompleted == nil {
		t.Error("expected last_completed to be set")
	}
}

func TestApplyMindmapDedupAcrossRuns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	engine := &stubEngine{response: `{
		"notes": [], "listItems": [], "completedGoals": [],
		"mindmapNodes": [{"label": "Loves hiking", "category": "values", "confidence": 0.9}]
	}`}
	p := New(st, engine, nil)

	addTurns(t, st, "I love hiking", "great")
	p.ProcessRecentConversations(ctx)

	addTurns(t, st, "hiking is the best", "agreed")
	p.ProcessRecentConversations(ctx)

	facts, err := st.ListFacts(ctx)
	if err != nil {
		t.Fatalf("ListFacts failed: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected exactly 1 fact after duplicate runs, got %d", len(facts))
	}
	if facts[0].Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %.2f", facts[0].Confidence)
	}
}

func TestApplyMindmapConfidenceDefault(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	addTurns(t, st, "a", "b")

	engine := &stubEngine{response: `{
		"notes": [], "listItems": [], "completedGoals": [],
		"mindmapNodes": [
			{"label": "Plays guitar", "category": "facts"},
			{"label": "", "category": "facts", "confidence": 0.5},
			{"label": "no category", "category": ""}
		]
	}`}
	p := New(st, engine, nil)
	p.ProcessRecentConversations(ctx)

	facts, _ := st.ListFacts(ctx)
	if len(facts) != 1 {
		t.Fatalf("expected 1 valid fact, got %d", len(facts))
	}
	if facts[0].Confidence != store.DefaultConfidence {
		t.Errorf("expected default confidence, got %.2f", facts[0].Confidence)
	}
}

func TestBuildRequestContainsTranscript(t *testing.T) {
	turns := []*store.Message{
		{Role: store.RoleUser, Content: "add eggs to groceries"},
		{Role: store.RoleAssistant, Content: "added"},
	}
	req := BuildRequest(turns)
	if !strings.Contains(req, "User: add eggs to groceries") {
		t.Errorf("missing user line:\n%s", req)
	}
	if !strings.Contains(req, "Assistant: added") {
		t.Errorf("missing assistant line:\n%s", req)
	}
}

func TestListCategory(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Groceries", "groceries"},
		{"Packing List", "packing_list"},
		{"  Weekend   To Do  ", "weekend_to_do"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ListCategory(tt.in); got != tt.want {
			t.Errorf("ListCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatchEitherFold(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Groceries", "grocery", false}, // no substring either way
		{"Groceries", "groceries", true},
		{"Groceries", "GROC", true},
		{"todo", "my todo list", true},
		{"", "x", false},
		{"x", "", false},
	}
	for _, tt := range tests {
		if got := matchEitherFold(tt.a, tt.b); got != tt.want {
			t.Errorf("matchEitherFold(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
