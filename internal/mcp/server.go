// Package mcp provides a Model Context Protocol server for aide.
//
// It exposes the assistant's capabilities (chat, analysis, notes, lists,
// goals, mindmap, profile, stats) as MCP tools, and the profile plus the
// recent conversation as MCP resources. Stdio transport only.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aide-sh/aide/internal/analysis"
	"github.com/aide-sh/aide/internal/chat"
	"github.com/aide-sh/aide/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store    store.Store
	Chat     *chat.Engine
	Pipeline *analysis.Pipeline
	Version  string
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines.
// SQLite (even with WAL) supports only one writer at a time, and concurrent
// reads during writes can return stale results. A global mutex ensures
// correct ordering: a chat turn is durable before analysis sees it.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all aide tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Aide",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerChatTool(s, cfg.Chat)
	registerAnalyzeTool(s, cfg.Pipeline, cfg.Store)
	registerNotesTool(s, cfg.Store)
	registerNoteAddTool(s, cfg.Store)
	registerListsTool(s, cfg.Store)
	registerListAddItemTool(s, cfg.Store)
	registerGoalsTool(s, cfg.Store)
	registerGoalAddTool(s, cfg.Store)
	registerGoalCompleteTool(s, cfg.Store)
	registerMindmapTool(s, cfg.Store)
	registerProfileGetTool(s, cfg.Store)
	registerProfileSetTool(s, cfg.Store)
	registerStatsTool(s, cfg.Store)

	registerProfileResource(s, cfg.Store)
	registerRecentConversationResource(s, cfg.Store)

	return s
}

// --- Tools ---

func registerChatTool(s *server.MCPServer, engine *chat.Engine) {
	tool := mcp.NewTool("aide_chat",
		mcp.WithDescription("Send a message to the assistant and get its reply. The turn is persisted to the conversation log and later analyzed for notes, list items, goal completions, and mindmap facts."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The user message to send"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		message, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError("message is required"), nil
		}

		reply, err := engine.Send(ctx, message)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("chat error: %v", err)), nil
		}

		result := map[string]interface{}{
			"message_id":  reply.MessageID,
			"reply":       reply.Text,
			"suggestions": reply.Suggestions,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerAnalyzeTool(s *server.MCPServer, pipeline *analysis.Pipeline, st store.Store) {
	tool := mcp.NewTool("aide_analyze",
		mcp.WithDescription("Run one analysis pass over conversation turns not yet processed: extracts notes, list items, completed goals, and mindmap facts. A no-op when fewer than two new turns exist or the completion engine is unavailable."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		pipeline.ProcessRecentConversations(ctx)

		checkpoint, err := store.GetCheckpoint(ctx, st)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reading checkpoint: %v", err)), nil
		}

		result := map[string]interface{}{
			"checkpoint": checkpoint,
			"busy":       pipeline.Busy(),
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerNotesTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("aide_notes",
		mcp.WithDescription("List all saved notes, newest first. Notes are created manually or extracted from conversations."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		notes, err := st.ListNotes(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("notes error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(notes, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerNoteAddTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("aide_note_add",
		mcp.WithDescription("Save a note with a title and body."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short note title"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Note content"),
		),
		mcp.WithString("tag",
			mcp.Description("Optional tag for grouping notes"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		title, err := req.RequireString("title")
		if err != nil || strings.TrimSpace(title) == "" {
			return mcp.NewToolResultError("title is required"), nil
		}
		body, err := req.RequireString("body")
		if err != nil || strings.TrimSpace(body) == "" {
			return mcp.NewToolResultError("body is required"), nil
		}

		note := &store.Note{Title: title, Body: body, Origin: store.RoleUser}
		if tag, err := req.RequireString("tag"); err == nil && tag != "" {
			note.Tag = tag
		}

		id, err := st.AddNote(ctx, note)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("note error: %v", err)), nil
		}

		return toolResultJSON(map[string]interface{}{"id": id}), nil
	})
}

func registerListsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("aide_lists",
		mcp.WithDescription("List all list containers with their items."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		lists, err := st.ListLists(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("lists error: %v", err)), nil
		}

		type listView struct {
			*store.List
			Items []*store.ListItem `json:"items"`
		}
		out := make([]listView, 0, len(lists))
		for _, l := range lists {
			items, err := st.ListItems(ctx, l.ID)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("list items error: %v", err)), nil
			}
			out = append(out, listView{List: l, Items: items})
		}

		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerListAddItemTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("aide_list_add_item",
		mcp.WithDescription("Add an item to a named list. Matches an existing list case-insensitively by title, or creates one."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("list",
			mcp.Required(),
			mcp.Description("List title, e.g. 'Groceries'"),
		),
		mcp.WithString("item",
			mcp.Required(),
			mcp.Description("Item text to add"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		name, err := req.RequireString("list")
		if err != nil || strings.TrimSpace(name) == "" {
			return mcp.NewToolResultError("list is required"), nil
		}
		item, err := req.RequireString("item")
		if err != nil || strings.TrimSpace(item) == "" {
			return mcp.NewToolResultError("item is required"), nil
		}

		target, created, err := findOrCreateList(ctx, st, name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list error: %v", err)), nil
		}

		id, err := st.AddListItem(ctx, &store.ListItem{ListID: target.ID, Content: item})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("item error: %v", err)), nil
		}

		return toolResultJSON(map[string]interface{}{
			"item_id":      id,
			"list_id":      target.ID,
			"list":         target.Title,
			"list_created": created,
		}), nil
	})
}

func registerGoalsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("aide_goals",
		mcp.WithDescription("List all recurring goals with cadence, streak, and last completion."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		goals, err := st.ListGoals(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("goals error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(goals, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerGoalAddTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("aide_goal_add",
		mcp.WithDescription("Create a recurring goal."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Goal title, e.g. 'Morning run'"),
		),
		mcp.WithString("cadence",
			mcp.Description("Recurrence cadence (default: daily)"),
			mcp.Enum("daily", "weekly", "monthly"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		title, err := req.RequireString("title")
		if err != nil || strings.TrimSpace(title) == "" {
			return mcp.NewToolResultError("title is required"), nil
		}

		cadence := store.CadenceDaily
		if c, err := req.RequireString("cadence"); err == nil && c != "" {
			cadence = c
		}

		id, err := st.AddGoal(ctx, &store.Goal{Title: title, Cadence: cadence})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("goal error: %v", err)), nil
		}

		return toolResultJSON(map[string]interface{}{"id": id}), nil
	})
}

func registerGoalCompleteTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("aide_goal_complete",
		mcp.WithDescription("Mark a goal completed now: increments its streak and stamps the completion time."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Goal id from aide_goals"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		idVal, err := req.RequireFloat("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		if err := st.CompleteGoal(ctx, int64(idVal), time.Now().UTC()); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("complete error: %v", err)), nil
		}

		return toolResultJSON(map[string]interface{}{"completed": int64(idVal)}), nil
	})
}

func registerMindmapTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("aide_mindmap",
		mcp.WithDescription("List mindmap facts the assistant has learned about the user: label, category (values/goals/personality/facts), confidence, and optional links between facts."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("category",
			mcp.Description("Filter by category"),
			mcp.Enum("values", "goals", "personality", "facts"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		facts, err := st.ListFacts(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("mindmap error: %v", err)), nil
		}

		if category, err := req.RequireString("category"); err == nil && category != "" {
			filtered := facts[:0]
			for _, f := range facts {
				if f.Category == category {
					filtered = append(filtered, f)
				}
			}
			facts = filtered
		}

		data, _ := json.MarshalIndent(facts, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerProfileGetTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("aide_profile_get",
		mcp.WithDescription("Get the user profile: name, nickname, role, age group, gender, and persona traits."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		profile, err := st.GetProfile(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("profile error: %v", err)), nil
		}
		if profile == nil {
			return mcp.NewToolResultText(`{"profile": null}`), nil
		}

		data, _ := json.MarshalIndent(profile, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerProfileSetTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("aide_profile_set",
		mcp.WithDescription("Create or update the single user profile. Omitted fields keep their current value. Traits are comma-separated, at most three."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("name", mcp.Description("User's name")),
		mcp.WithString("nickname", mcp.Description("Preferred nickname; takes precedence in prompts")),
		mcp.WithString("role", mcp.Description("Occupation or role")),
		mcp.WithString("age_group", mcp.Description("Age group, e.g. '25-34'")),
		mcp.WithString("gender", mcp.Description("Gender")),
		mcp.WithString("traits", mcp.Description("Comma-separated persona traits, e.g. 'warm,playful'")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		profile, err := st.GetProfile(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("profile error: %v", err)), nil
		}
		if profile == nil {
			profile = &store.Profile{}
		}

		if v, err := req.RequireString("name"); err == nil && v != "" {
			profile.Name = v
		}
		if v, err := req.RequireString("nickname"); err == nil && v != "" {
			profile.Nickname = v
		}
		if v, err := req.RequireString("role"); err == nil && v != "" {
			profile.Role = v
		}
		if v, err := req.RequireString("age_group"); err == nil && v != "" {
			profile.AgeGroup = v
		}
		if v, err := req.RequireString("gender"); err == nil && v != "" {
			profile.Gender = v
		}
		if v, err := req.RequireString("traits"); err == nil && v != "" {
			profile.Traits = splitTraits(v)
		}

		id, err := st.SaveProfile(ctx, profile)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("profile error: %v", err)), nil
		}

		return toolResultJSON(map[string]interface{}{"id": id}), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("aide_stats",
		mcp.WithDescription("Get store statistics: row counts per record type, the analysis checkpoint, and database size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- helpers ---

// findOrCreateList matches a list case-insensitively by exact title, creating
// one when no match exists. Reports whether a new list was created.
func findOrCreateList(ctx context.Context, st store.Store, name string) (*store.List, bool, error) {
	lists, err := st.ListLists(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, l := range lists {
		if strings.EqualFold(l.Title, name) {
			return l, false, nil
		}
	}

	created := &store.List{Title: name, Category: analysis.ListCategory(name)}
	if _, err := st.AddList(ctx, created); err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func splitTraits(raw string) []string {
	var traits []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			traits = append(traits, t)
		}
	}
	return traits
}

func toolResultJSON(v interface{}) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}
