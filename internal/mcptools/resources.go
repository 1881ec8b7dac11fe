package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerResources(s *server.MCPServer) {
	for _, doc := range []struct {
		uri, name, description, body string
	}{
		{
			uri:         "memory://docs/agents",
			name:        "Agent integration guide",
			description: "How an agent should use the memory tools",
			body:        agentsDoc,
		},
		{
			uri:         "memory://docs/readme",
			name:        "Service overview",
			description: "What this service is and how it is organized",
			body:        readmeDoc,
		},
		{
			uri:         "memory://docs/schema",
			name:        "Data model",
			description: "Relational schema and vector collection layout",
			body:        schemaDoc,
		},
		{
			uri:         "memory://docs/roadmap",
			name:        "Roadmap",
			description: "Known gaps and planned follow-up work",
			body:        roadmapDoc,
		},
	} {
		doc := doc
		s.AddResource(mcp.NewResource(doc.uri, doc.name,
			mcp.WithResourceDescription(doc.description),
			mcp.WithMIMEType("text/markdown"),
		), func(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      req.Params.URI,
					MIMEType: "text/markdown",
					Text:     doc.body,
				},
			}, nil
		})
	}
}

const agentsDoc = `# Agent integration guide

Offload durable facts with ` + "`memory_store`" + `, tagging them with a topic so
related memories can be retrieved or filtered together later.

Retrieval is summary-first: ` + "`memory_retrieve`" + ` searches over summary
embeddings and hydrates full content from the relational store. Request
` + "`return_type=summary`" + ` when only the gist is needed, or ` + "`both`" + ` when the
agent wants to decide for itself whether to pull the full text.

` + "`memory_retrieve`" + ` and ` + "`memory_list_topics`" + ` always return a list. An
empty result set is a single-element list containing an ` + "`ok`" + ` envelope with
no content fields — check for that shape rather than treating an empty list
as "no results".
`

const readmeDoc = `# Hybrid Memory Engine

A persistent memory service for language-model agents. It pairs a
relational store (authoritative rows) with a vector store (embeddings for
three collections: memories, summaries, topics) and keeps them coherent
under concurrent writes.

Writes trigger size-tiered summarization: short content is used verbatim as
its own summary, longer content is condensed through the configured
summarization backend. Every successful write also ticks the backup
manager, which snapshots the data directory on a configurable interval.
`

const schemaDoc = `# Data model

**Relational** (SQLite):
- ` + "`topics(name, description, item_count, created_at, updated_at)`" + `
- ` + "`memory_items(id, content, topic_name, tags, created_at, updated_at, version)`" + `
- ` + "`summaries(id, memory_id, summary_type, summary_text, created_at, updated_at)`" + `,
  unique on ` + "`(memory_id, summary_type)`" + `, cascades on memory deletion.

**Vector** (sqlite-vec): three collections — memories, summaries, topics —
each a vec0 virtual table paired with a metadata shadow table carrying the
external id, topic, tags, and (for summaries) the owning memory id.
`

const roadmapDoc = `# Roadmap

- Drift reconciliation exists only as an internal function; no tool or
  CLI command runs it, so orphaned vectors are not reported.
- The local fallback embedder has no semantic generalization, and no
  configuration option selects a different embedding model.
`
