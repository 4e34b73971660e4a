// Package analysis turns conversation turns into structured records.
//
// The pipeline reads the unseen tail of the message log, asks the completion
// engine for a structured-JSON analysis, parses it defensively, and applies
// each extracted item to the store with duplicate and fuzzy-name checks. It
// is a best-effort background task: runs are droppable, errors are swallowed,
// and a persisted checkpoint makes re-processing safe.
package analysis

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aide-sh/aide/internal/llm"
	"github.com/aide-sh/aide/internal/store"
)

// MinNewTurns is the minimum number of unprocessed turns required before an
// analysis call is worth making. A lone message cannot yield a
// question/answer extraction.
const MinNewTurns = 2

// completionMaxTokens bounds the analysis response size.
const completionMaxTokens = 1024

// Pipeline is the background extraction pipeline. A busy flag makes runs
// single-flight; the checkpoint (highest message id already analyzed) lives
// in the store's meta table and only advances after a successful apply.
type Pipeline struct {
	store  store.Store
	engine llm.Provider
	log    *zap.Logger
	busy   atomic.Bool
	now    func() time.Time
}

// New creates a pipeline. A nil logger disables logging.
func New(st store.Store, engine llm.Provider, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		store:  st,
		engine: engine,
		log:    log,
		now:    time.Now,
	}
}

// ProcessRecentConversations runs one analysis pass over the turns that
// arrived since the last checkpoint. If a run is already in flight or the
// engine is not ready, it returns immediately with no queuing and no error. All
// failures are logged and swallowed; the caller never sees them.
func (p *Pipeline) ProcessRecentConversations(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		return
	}
	defer p.busy.Store(false)

	if err := p.engine.Ready(ctx); err != nil {
		p.log.Debug("completion engine not ready, skipping analysis", zap.Error(err))
		return
	}

	if err := p.run(ctx); err != nil {
		p.log.Warn("analysis run failed", zap.Error(err))
	}
}

// Busy reports whether a run is in flight.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

func (p *Pipeline) run(ctx context.Context) error {
	mark, err := store.GetCheckpoint(ctx, p.store)
	if err != nil {
		return err
	}

	turns, err := p.store.MessagesAfter(ctx, mark)
	if err != nil {
		return err
	}
	if len(turns) < MinNewTurns {
		return nil
	}

	raw, err := p.engine.Complete(ctx, BuildRequest(turns), llm.CompletionOpts{
		System:      SystemPrompt(),
		Format:      "json",
		Temperature: 0.1,
		MaxTokens:   completionMaxTokens,
	})
	if err != nil {
		return err
	}

	result := ParseResult(raw)
	if result == nil {
		// Unparseable response: leave the checkpoint alone so the same
		// turns are retried on the next invocation.
		p.log.Debug("analysis response not parseable, will retry",
			zap.Int("turns", len(turns)))
		return nil
	}

	p.apply(ctx, result)

	// The checkpoint advances once apply completes, even if individual
	// items inside the result were skipped as duplicates.
	last := turns[len(turns)-1].ID
	if err := store.SetCheckpoint(ctx, p.store, last); err != nil {
		return err
	}

	p.log.Info("analysis applied",
		zap.Int("turns", len(turns)),
		zap.Int64("checkpoint", last),
		zap.Int("notes", len(result.Notes)),
		zap.Int("list_groups", len(result.ListItems)),
		zap.Int("completed_goals", len(result.CompletedGoals)),
		zap.Int("mindmap_nodes", len(result.MindmapNodes)))
	return nil
}

// apply folds an analysis result into the store. Each sub-item is
// independent and best-effort: a store failure skips that item and the loop
// continues. There is no transaction spanning the whole apply.
func (p *Pipeline) apply(ctx context.Context, result *Result) {
	p.applyNotes(ctx, result.Notes)
	p.applyListGroups(ctx, result.ListItems)
	p.applyCompletedGoals(ctx, result.CompletedGoals)
	p.applyMindmapNodes(ctx, result.MindmapNodes)
}

// applyNotes creates a note for every item with both fields non-empty.
// No dedup: repeated identical notes each capture a point in time.
func (p *Pipeline) applyNotes(ctx context.Context, notes []NoteItem) {
	for _, n := range notes {
		if strings.TrimSpace(n.Title) == "" || strings.TrimSpace(n.Body) == "" {
			continue
		}
		note := &store.Note{Title: n.Title, Body: n.Body, Origin: store.RoleAssistant}
		if _, err := p.store.AddNote(ctx, note); err != nil {
			p.log.Warn("adding extracted note", zap.String("title", n.Title), zap.Error(err))
		}
	}
}

// applyListGroups merges extracted items into an existing fuzzy-matched list,
// or creates a new one. Within a matched list, an incoming item is a
// duplicate when an existing entry matches case-insensitively on full string
// equality.
func (p *Pipeline) applyListGroups(ctx context.Context, groups []ListGroup) {
	if len(groups) == 0 {
		return
	}

	lists, err := p.store.ListLists(ctx)
	if err != nil {
		p.log.Warn("loading lists for merge", zap.Error(err))
		return
	}

	for _, group := range groups {
		if strings.TrimSpace(group.ListName) == "" {
			continue
		}

		var target *store.List
		for _, l := range lists {
			if matchEitherFold(l.Title, group.ListName) {
				target = l
				break
			}
		}

		if target == nil {
			created := &store.List{
				Title:    group.ListName,
				Category: ListCategory(group.ListName),
			}
			if _, err := p.store.AddList(ctx, created); err != nil {
				p.log.Warn("creating list", zap.String("list", group.ListName), zap.Error(err))
				continue
			}
			lists = append(lists, created)
			for _, item := range group.Items {
				if strings.TrimSpace(item) == "" {
					continue
				}
				entry := &store.ListItem{ListID: created.ID, Content: item}
				if _, err := p.store.AddListItem(ctx, entry); err != nil {
					p.log.Warn("adding list item", zap.String("item", item), zap.Error(err))
				}
			}
			continue
		}

		existing, err := p.store.ListItems(ctx, target.ID)
		if err != nil {
			p.log.Warn("loading list items", zap.Int64("list_id", target.ID), zap.Error(err))
			continue
		}
		seen := make(map[string]struct{}, len(existing))
		for _, e := range existing {
			seen[strings.ToLower(e.Content)] = struct{}{}
		}

		for _, item := range group.Items {
			if strings.TrimSpace(item) == "" {
				continue
			}
			key := strings.ToLower(item)
			if _, dup := seen[key]; dup {
				continue
			}
			entry := &store.ListItem{ListID: target.ID, Content: item}
			if _, err := p.store.AddListItem(ctx, entry); err != nil {
				p.log.Warn("adding list item", zap.String("item", item), zap.Error(err))
				continue
			}
			seen[key] = struct{}{}
		}
	}
}

// applyCompletedGoals increments the streak of a fuzzy-matched goal and
// stamps its completion time. A completion mention never creates a goal.
func (p *Pipeline) applyCompletedGoals(ctx context.Context, completed []CompletedGoal) {
	if len(completed) == 0 {
		return
	}

	goals, err := p.store.ListGoals(ctx)
	if err != nil {
		p.log.Warn("loading goals for merge", zap.Error(err))
		return
	}

	for _, c := range completed {
		if strings.TrimSpace(c.Title) == "" {
			continue
		}
		for _, g := range goals {
			if !matchEitherFold(g.Title, c.Title) {
				continue
			}
			if err := p.store.CompleteGoal(ctx, g.ID, p.now()); err != nil {
				p.log.Warn("completing goal", zap.Int64("goal_id", g.ID), zap.Error(err))
			}
			break
		}
	}
}

// applyMindmapNodes creates facts that don't already exist under a
// case-insensitive exact label match. Confidence defaults to 0.8 when the
// field is absent or zero.
func (p *Pipeline) applyMindmapNodes(ctx context.Context, nodes []MindmapNode) {
	if len(nodes) == 0 {
		return
	}

	facts, err := p.store.ListFacts(ctx)
	if err != nil {
		p.log.Warn("loading facts for merge", zap.Error(err))
		return
	}
	seen := make(map[string]struct{}, len(facts))
	for _, f := range facts {
		seen[strings.ToLower(f.Label)] = struct{}{}
	}

	for _, n := range nodes {
		if strings.TrimSpace(n.Label) == "" || strings.TrimSpace(n.Category) == "" {
			continue
		}
		key := strings.ToLower(n.Label)
		if _, dup := seen[key]; dup {
			continue
		}
		confidence := n.Confidence
		if confidence <= 0 {
			confidence = store.DefaultConfidence
		}
		fact := &store.MindmapFact{Label: n.Label, Category: n.Category, Confidence: confidence}
		if _, err := p.store.AddFact(ctx, fact); err != nil {
			p.log.Warn("adding mindmap fact", zap.String("label", n.Label), zap.Error(err))
			continue
		}
		seen[key] = struct{}{}
	}
}
