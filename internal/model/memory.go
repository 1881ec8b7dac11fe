// Package model holds the plain structs for the three entities the hybrid
// memory engine manages: Topic, MemoryItem, Summary. Column mapping lives in
// internal/relational's SQL strings rather than struct tags — this module
// talks to SQLite through database/sql directly, not an ORM.
package model

import "time"

// Topic is a named bucket with a reference count of memories belonging to
// it. Created implicitly the first time a memory references it; removed
// once its ItemCount reaches zero.
type Topic struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ItemCount   int       `json:"item_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MemoryItem is a single durable text record with topic, tags, and version.
type MemoryItem struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	TopicName string    `json:"topic"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// SummaryType is one of the closed set of summary kinds the engine produces.
type SummaryType string

const (
	// SummaryTypeAbstractiveMedium is the uniform type stored for the
	// default summary of every memory, regardless of which size tier
	// produced it, so the "find the default summary" lookup is deterministic.
	SummaryTypeAbstractiveMedium SummaryType = "abstractive_medium"
)

// Summary is a derived textual compression of a memory.
type Summary struct {
	ID          string      `json:"id"`
	MemoryID    string      `json:"memory_id"`
	SummaryType SummaryType `json:"summary_type"`
	SummaryText string      `json:"summary_text"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TopicStat summarizes a topic's standing for Status().
type TopicStat struct {
	Name      string `json:"name"`
	ItemCount int    `json:"item_count"`
}

// RelationalStatus is the subset of status() data owned by the relational store.
type RelationalStatus struct {
	TotalMemories int         `json:"total_memories"`
	TotalTopics   int         `json:"total_topics"`
	TopTopics     []TopicStat `json:"top_topics"`
	LatestItemAt  *time.Time  `json:"latest_item_at,omitempty"`
}

// VectorStatus is the subset of status() data owned by the vector store.
type VectorStatus struct {
	Name           string `json:"name"`
	MemoryVectors  int    `json:"memory_vectors"`
	SummaryVectors int    `json:"summary_vectors"`
	TopicVectors   int    `json:"topic_vectors"`
}
