// Package mcptools exposes the Hybrid Memory Engine over the Model Context
// Protocol's stdio transport: eight tools mirroring the engine's public
// operations, and four read-only documentation resources.
//
// Grounded on the teacher's declared (if unwired) mark3labs/mcp-go
// dependency — the corpus has no working reference usage of this library,
// so the tool/resource registration below follows the library's published
// API directly rather than any example file.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hybridmem/memory-service/internal/config"
	"github.com/hybridmem/memory-service/internal/engine"
	"github.com/hybridmem/memory-service/internal/service"
	"github.com/hybridmem/memory-service/internal/summarize"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer builds the MCP server wired to eng, with every tool and
// documentation resource registered.
func NewServer(eng *engine.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer("hybrid-memory-engine", version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
	)

	registerTools(s, eng)
	registerResources(s)
	return s
}

func registerTools(s *server.MCPServer, eng *engine.Engine) {
	s.AddTool(mcp.NewTool("memory_initialize",
		mcp.WithDescription("Initialize the memory stores; with reset=true, wipe and recreate them"),
		mcp.WithBoolean("reset", mcp.Description("wipe existing data before reinitializing")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reset := req.GetBool("reset", false)
		return envelopeResult(eng.Initialize(ctx, reset)), nil
	})

	s.AddTool(mcp.NewTool("memory_store",
		mcp.WithDescription("Store a new memory under a topic, with optional tags"),
		mcp.WithString("content", mcp.Required(), mcp.Description("the text to remember")),
		mcp.WithString("topic", mcp.Required(), mcp.Description("topic bucket this memory belongs to")),
		mcp.WithArray("tags", mcp.Description("free-form tags"), mcp.Items(map[string]any{"type": "string"})),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		topic, err := req.RequireString("topic")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		tags := stringSliceArg(req, "tags")
		return envelopeResult(eng.Store(ctx, content, topic, tags)), nil
	})

	s.AddTool(mcp.NewTool("memory_retrieve",
		mcp.WithDescription("Retrieve memories by semantic similarity, optionally filtered by topic"),
		mcp.WithString("query", mcp.Required(), mcp.Description("search text")),
		mcp.WithNumber("max_results", mcp.Description("maximum number of matches, default 5")),
		mcp.WithString("topic", mcp.Description("restrict results to this topic")),
		mcp.WithString("return_type", mcp.Description("full_text | summary | both, default full_text")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		defaultMax := 5
		if cfg := config.FromContext(ctx); cfg != nil {
			defaultMax = cfg.DefaultMaxResults
		}
		maxResults := int(req.GetFloat("max_results", float64(defaultMax)))
		topic := req.GetString("topic", "")
		returnType := engine.ReturnType(req.GetString("return_type", string(engine.ReturnFullText)))
		results := eng.Retrieve(ctx, query, maxResults, topic, returnType)
		return envelopeListResult(results), nil
	})

	s.AddTool(mcp.NewTool("memory_update",
		mcp.WithDescription("Update an existing memory's content, topic, and/or tags"),
		mcp.WithString("memory_id", mcp.Required()),
		mcp.WithString("content", mcp.Description("new content, if changing")),
		mcp.WithString("topic", mcp.Description("new topic, if changing")),
		mcp.WithArray("tags", mcp.Description("new tags, if changing"), mcp.Items(map[string]any{"type": "string"})),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		memoryID, err := req.RequireString("memory_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var content, topic *string
		if v, ok := req.GetArguments()["content"]; ok {
			s := fmt.Sprint(v)
			content = &s
		}
		if v, ok := req.GetArguments()["topic"]; ok {
			s := fmt.Sprint(v)
			topic = &s
		}
		var tags *[]string
		if _, ok := req.GetArguments()["tags"]; ok {
			t := stringSliceArg(req, "tags")
			tags = &t
		}
		return envelopeResult(eng.Update(ctx, memoryID, content, topic, tags)), nil
	})

	s.AddTool(mcp.NewTool("memory_delete",
		mcp.WithDescription("Delete a memory and its summaries from both stores"),
		mcp.WithString("memory_id", mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		memoryID, err := req.RequireString("memory_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return envelopeResult(eng.Delete(ctx, memoryID)), nil
	})

	s.AddTool(mcp.NewTool("memory_list_topics",
		mcp.WithDescription("List all topics with their memory counts"),
	), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		env := eng.ListTopics(ctx)
		if !env.IsOK() {
			return envelopeResult(env), nil
		}
		topics, _ := env["topics"].([]map[string]interface{})
		if len(topics) == 0 {
			return envelopeListResult([]service.Envelope{service.OK("no topics", nil)}), nil
		}
		list := make([]service.Envelope, len(topics))
		for i, t := range topics {
			list[i] = service.OK("topic", t)
		}
		return envelopeListResult(list), nil
	})

	s.AddTool(mcp.NewTool("memory_status",
		mcp.WithDescription("Report aggregate counts across the relational and vector stores"),
	), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return envelopeResult(eng.Status(ctx)), nil
	})

	s.AddTool(mcp.NewTool("memory_summarize",
		mcp.WithDescription("Produce an on-demand summary; exactly one of memory_id, query, topic must be given"),
		mcp.WithString("memory_id", mcp.Description("summarize this specific memory's content")),
		mcp.WithString("query", mcp.Description("summarize memories matching this query")),
		mcp.WithString("topic", mcp.Description("summarize memories in this topic")),
		mcp.WithString("summary_type", mcp.Required(), mcp.Description("abstractive | extractive | query_focused")),
		mcp.WithString("length", mcp.Required(), mcp.Description("short | medium | detailed")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		memoryID := req.GetString("memory_id", "")
		query := req.GetString("query", "")
		topic := req.GetString("topic", "")
		summaryType, err := req.RequireString("summary_type")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		length, err := req.RequireString("length")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		env := eng.Summarize(ctx, memoryID, query, topic, summarize.Kind(summaryType), summarize.Length(length))
		return envelopeResult(env), nil
	})
}

func stringSliceArg(req mcp.CallToolRequest, name string) []string {
	raw, ok := req.GetArguments()[name]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

func envelopeResult(env service.Envelope) *mcp.CallToolResult {
	body, err := json.Marshal(env)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(body))
}

func envelopeListResult(envs []service.Envelope) *mcp.CallToolResult {
	body, err := json.Marshal(envs)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(body))
}
