package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aide-sh/aide/internal/chat"
	"github.com/aide-sh/aide/internal/store"
)

// recentConversationLimit bounds the conversation resource payload.
const recentConversationLimit = 50

func registerProfileResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"aide://profile",
		"User Profile",
		mcp.WithResourceDescription("The user's profile: name, nickname, role, age group, gender, persona traits."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		profile, err := st.GetProfile(ctx)
		if err != nil {
			return nil, err
		}

		payload := map[string]interface{}{"profile": profile}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerRecentConversationResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"aide://conversation/recent",
		"Recent Conversation",
		mcp.WithResourceDescription("The most recent conversation turns in chronological order, with suggestion chips on assistant turns."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		msgs, err := st.RecentMessages(ctx, recentConversationLimit)
		if err != nil {
			return nil, err
		}

		type turnView struct {
			ID          int64    `json:"id"`
			Role        string   `json:"role"`
			Content     string   `json:"content"`
			Suggestions []string `json:"suggestions,omitempty"`
			CreatedAt   string   `json:"created_at"`
		}
		turns := make([]turnView, 0, len(msgs))
		for _, m := range msgs {
			turns = append(turns, turnView{
				ID:          m.ID,
				Role:        m.Role,
				Content:     m.Content,
				Suggestions: chat.DecodeSuggestions(m.Payload),
				CreatedAt:   m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			})
		}

		payload := map[string]interface{}{
			"turns": turns,
			"count": len(turns),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
