package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skillsprint/coach/internal/pipeline"
	"github.com/skillsprint/coach/internal/profile"
	"github.com/skillsprint/coach/internal/sprint"
	"github.com/skillsprint/coach/internal/topic"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Coach   *pipeline.Coach
	Sprints *sprint.Generator
	Topics  *topic.Table
	// Store is optional; without it the recent-interactions resource is
	// not registered.
	Store InteractionStore
	// Passcode is presented on behalf of MCP callers, who cannot set
	// headers.
	Passcode string
	Version  string
}

// NewMCPServer creates an MCP server exposing the coach and sprint
// generator as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"skillsprint",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Skill Sprint: short business micro-coaching answers, learning links and sprint exercises."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("coach",
			mcp.WithDescription("Answer one coaching message. Returns reply, quick replies, learning links and an optional sprint seed as JSON."),
			mcp.WithString("user", mcp.Description("The user's message"), mcp.Required()),
			mcp.WithString("profile", mcp.Description("Profile JSON object: focus, goals30d, time, style")),
			mcp.WithString("kpis", mcp.Description("KPI snapshot JSON object keyed by category")),
			mcp.WithString("last", mcp.Description("JSON array of recent turns {speaker, text}")),
		),
		mcpCoach(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_sprint",
			mcp.WithDescription("Generate today's sprint exercise, or next steps when goals are given."),
			mcp.WithString("profile", mcp.Description("Profile JSON object")),
			mcp.WithString("kpis", mcp.Description("KPI snapshot JSON object keyed by category")),
			mcp.WithArray("goals", mcp.Description("30-day goals; switches to follow-up steps")),
			mcp.WithString("seed_title", mcp.Description("Title of the sprint seed from a coach reply")),
			mcp.WithString("seed_topic", mcp.Description("Focus area of the sprint seed")),
		),
		mcpGenerateSprint(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"content://topics",
			"Topic Table",
			mcp.WithResourceDescription("Topics the coach recognizes, with their learning slugs"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTopics(deps),
	)

	if deps.Store != nil {
		s.AddResource(
			mcp.NewResource(
				"interactions://recent",
				"Recent Interactions",
				mcp.WithResourceDescription("Last 10 audited requests (summaries only)"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRecent(deps),
		)
	}

	return s
}

func mcpCoach(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := req.RequireString("user")
		if err != nil {
			return mcpError("user is required"), nil
		}

		in := pipeline.Request{User: user}
		if err := decodeArg(req, "profile", &in.Profile); err != nil {
			return mcpError(err.Error()), nil
		}
		if err := decodeArg(req, "kpis", &in.KPIs); err != nil {
			return mcpError(err.Error()), nil
		}
		if last := req.GetString("last", ""); last != "" {
			in.Tail = profile.ParseTail(json.RawMessage(last))
		}

		res, _ := deps.Coach.Respond(ctx, in)
		return mcpJSON(res)
	}
}

func mcpGenerateSprint(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in := sprint.Request{Passcode: deps.Passcode}
		if err := decodeArg(req, "profile", &in.Profile); err != nil {
			return mcpError(err.Error()), nil
		}
		if err := decodeArg(req, "kpis", &in.KPIs); err != nil {
			return mcpError(err.Error()), nil
		}
		if goals := req.GetStringSlice("goals", nil); goals != nil {
			in.Followup = &sprint.Followup{Goals: goals}
		}
		if title := req.GetString("seed_title", ""); title != "" {
			in.Seed = &sprint.Seed{Title: title, Topic: req.GetString("seed_topic", "")}
		}

		return mcpJSON(deps.Sprints.Generate(ctx, in))
	}
}

type topicSummary struct {
	Key   string   `json:"key"`
	Title string   `json:"title"`
	Learn []string `json:"learn"`
}

func mcpResourceTopics(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		rules := deps.Topics.Rules()
		out := make([]topicSummary, 0, len(rules))
		for _, r := range rules {
			out = append(out, topicSummary{Key: r.Key, Title: r.Title, Learn: r.LearnSlugs})
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal topics: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.ListInteractions("", 10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Endpoint  string `json:"endpoint"`
			Source    string `json:"source"`
			Utterance string `json:"utterance"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			utterance := ix.Utterance
			if utf8.RuneCountInString(utterance) > 200 {
				runes := []rune(utterance)
				utterance = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Endpoint:  ix.Endpoint,
				Source:    ix.Source,
				Utterance: utterance,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// decodeArg unmarshals a string argument holding JSON into v. A missing or
// empty argument leaves v untouched.
func decodeArg(req mcp.CallToolRequest, name string, v any) error {
	raw := req.GetString(name, "")
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%s is not valid JSON: %v", name, err)
	}
	return nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
