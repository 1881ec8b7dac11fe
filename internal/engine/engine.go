// Package engine is the Hybrid Memory Engine (C6): the coordinator that
// keeps the relational store and the vector store coherent under concurrent
// writes, offers summary-first retrieval, drives size-tiered summarization,
// and notifies the backup manager on every successful write.
//
// Grounded on the teacher's periodic-service style (internal/service,
// charmbracelet/log structured fields) generalized from eviction/indexing
// duties to this domain's store/retrieve/update/delete/summarize
// operations, and on spec-derived ordering rules with no teacher
// equivalent (delete-before-cascade summary enumeration in particular).
package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/hybridmem/memory-service/internal/apperr"
	"github.com/hybridmem/memory-service/internal/backup"
	"github.com/hybridmem/memory-service/internal/config"
	"github.com/hybridmem/memory-service/internal/model"
	"github.com/hybridmem/memory-service/internal/relational"
	"github.com/hybridmem/memory-service/internal/service"
	"github.com/hybridmem/memory-service/internal/summarize"
	"github.com/hybridmem/memory-service/internal/vectorstore"
)

// ReturnType selects which fields retrieve() includes per matched memory.
type ReturnType string

const (
	ReturnFullText ReturnType = "full_text"
	ReturnSummary  ReturnType = "summary"
	ReturnBoth     ReturnType = "both"
)

// Engine coordinates the relational store, vector store, summarizer, and
// backup manager. All fields are explicitly injected rather than resolved
// from process-wide globals, so tests can construct disjoint instances
// against distinct temp directories.
type Engine struct {
	rel        *relational.Store
	vec        *vectorstore.Store
	embedder   vectorstore.Embedder
	summarizer summarize.Summarizer
	backupMgr  *backup.Manager
	cfg        config.Config
	logger     *log.Logger
}

// New builds an Engine from its already-open dependencies.
func New(cfg config.Config, rel *relational.Store, vec *vectorstore.Store, embedder vectorstore.Embedder, summarizer summarize.Summarizer, backupMgr *backup.Manager, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		rel:        rel,
		vec:        vec,
		embedder:   embedder,
		summarizer: summarizer,
		backupMgr:  backupMgr,
		cfg:        cfg,
		logger:     logger.With("component", "engine"),
	}
}

// Initialize implements init(reset). Both stores are already open and
// schema-ready by the time an Engine exists; reset truncates their tables
// in place rather than reopening the underlying files.
func (e *Engine) Initialize(ctx context.Context, reset bool) service.Envelope {
	if !reset {
		return service.OK("already initialized", nil)
	}
	if err := e.rel.Reset(ctx); err != nil {
		return service.Err(err)
	}
	if err := e.vec.Reset(ctx); err != nil {
		return service.Err(err)
	}
	e.backupMgr.InvalidateCache()
	return service.OK("reinitialized", nil)
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, apperr.Internal("embed text", err)
	}
	return vecs[0], nil
}

// tier classifies content length into the size-tier policy that drives
// default-summary generation.
type tier string

const (
	tierTiny  tier = "tiny"
	tierSmall tier = "small"
	tierLarge tier = "large"
)

func (e *Engine) classifyTier(content string) tier {
	n := utf8.RuneCountInString(content)
	switch {
	case n < e.cfg.TinyContentThreshold:
		return tierTiny
	case n < e.cfg.SmallContentThreshold:
		return tierSmall
	default:
		return tierLarge
	}
}

// produceDefaultSummary applies the size-tier policy from the engine's
// §4.4 table, returning the summary text. Summarizer failures on the
// small/large tiers are non-fatal: the caller is told no summary was
// produced and the calling operation still succeeds.
func (e *Engine) produceDefaultSummary(ctx context.Context, content string) (text string, tier tier, ok bool) {
	t := e.classifyTier(content)
	switch t {
	case tierTiny:
		return content, t, true
	case tierSmall:
		out, err := e.summarizer.Summarize(ctx, content, summarize.KindExtractive, summarize.LengthShort, "")
		if err != nil {
			e.logger.Warn("default summary generation failed", "tier", t, "error", err)
			return "", t, false
		}
		return out, t, true
	default:
		out, err := e.summarizer.Summarize(ctx, content, summarize.KindAbstractive, summarize.LengthMedium, "")
		if err != nil {
			e.logger.Warn("default summary generation failed", "tier", t, "error", err)
			return "", t, false
		}
		return out, t, true
	}
}

// Store implements store(content, topic, tags).
func (e *Engine) Store(ctx context.Context, content, topic string, tags []string) service.Envelope {
	id := service.NewID()

	item, err := e.rel.InsertMemory(ctx, id, content, topic, tags)
	if err != nil {
		return service.Err(err)
	}

	var warning string
	vector, err := e.embed(ctx, content)
	if err != nil {
		warning = fmt.Sprintf("vector store write skipped: %v", err)
		e.logger.Error("embed for store failed", "memory_id", id, "error", err)
	} else if err := e.vec.Upsert(ctx, vectorstore.CollectionMemories, id, vector, vectorstore.Metadata{TopicName: topic, Tags: tags}); err != nil {
		warning = fmt.Sprintf("vector store write failed: %v", err)
		e.logger.Error("vector add_memory failed", "memory_id", id, "error", err)
	}

	if err := e.upsertTopicVector(ctx, topic, tags); err != nil {
		e.logger.Error("vector upsert_topic failed", "topic", topic, "error", err)
	}

	summaryGenerated := false
	var summaryID string
	var summaryTier tier
	if text, t, ok := e.produceDefaultSummary(ctx, content); ok {
		summaryTier = t
		sid := service.NewID()
		if _, err := e.rel.StoreSummary(ctx, sid, id, model.SummaryTypeAbstractiveMedium, text); err != nil {
			e.logger.Error("store default summary failed", "memory_id", id, "error", err)
		} else {
			summaryID = sid
			summaryGenerated = true
			if sv, err := e.embed(ctx, text); err == nil {
				if err := e.vec.Upsert(ctx, vectorstore.CollectionSummaries, sid, sv, vectorstore.Metadata{RefID: id, TopicName: topic, Extra: string(model.SummaryTypeAbstractiveMedium)}); err != nil {
					e.logger.Error("vector add_summary failed", "summary_id", sid, "error", err)
				}
			}
		}
	} else {
		summaryTier = e.classifyTier(content)
	}

	e.backupMgr.Tick(ctx)

	data := map[string]interface{}{
		"memory_id":         item.ID,
		"summary_generated": summaryGenerated,
		"summary_tier":      string(summaryTier),
	}
	if summaryID != "" {
		data["summary_id"] = summaryID
	}
	if warning != "" {
		data["warning"] = warning
	}
	return service.OK("memory stored", data)
}

func (e *Engine) upsertTopicVector(ctx context.Context, topic string, tags []string) error {
	vector, err := e.embed(ctx, topic)
	if err != nil {
		return err
	}
	return e.vec.Upsert(ctx, vectorstore.CollectionTopics, topic, vector, vectorstore.Metadata{TopicName: topic, Tags: tags})
}

// Retrieve implements retrieve(query, max_results, topic?, return_type).
// Semantic search runs over summary embeddings (summary-first retrieval);
// full content is hydrated from the relational store afterward. Per the
// external interface contract, zero matches yields a one-element list
// containing an "ok" envelope with no content fields, rather than an empty
// list — callers must detect this shape. maxResults is passed through
// unchanged: an explicit max_results=0 must search zero neighbors, not
// silently substitute a default; callers distinguish "absent" (apply
// their own default) from "explicit zero" before calling in.
func (e *Engine) Retrieve(ctx context.Context, query string, maxResults int, topic string, returnType ReturnType) []service.Envelope {
	if returnType == "" {
		returnType = ReturnFullText
	}

	queryVec, err := e.embed(ctx, query)
	if err != nil {
		return []service.Envelope{service.Err(err)}
	}

	hits, err := e.vec.Search(ctx, vectorstore.CollectionSummaries, queryVec, maxResults, topic)
	if err != nil {
		return []service.Envelope{service.Err(err)}
	}

	var results []service.Envelope
	for _, hit := range hits {
		meta, err := e.vec.Get(ctx, vectorstore.CollectionSummaries, hit.ID)
		if err != nil {
			continue
		}
		memoryID := meta.RefID
		if memoryID == "" {
			continue
		}
		item, err := e.rel.GetMemory(ctx, memoryID)
		if err != nil {
			continue
		}
		summary, err := e.rel.GetSummary(ctx, memoryID, model.SummaryType(meta.Extra))
		if err != nil {
			continue
		}
		results = append(results, shapeRetrieveResult(item, summary, returnType))
	}

	if len(results) == 0 {
		return []service.Envelope{service.OK("no matches", nil)}
	}
	return results
}

func shapeRetrieveResult(item *model.MemoryItem, summary *model.Summary, returnType ReturnType) service.Envelope {
	data := map[string]interface{}{}
	if returnType == ReturnFullText || returnType == ReturnBoth {
		data["id"] = item.ID
		data["content"] = item.Content
		data["topic"] = item.TopicName
		data["tags"] = item.Tags
		data["created_at"] = service.FormatTimestamp(item.CreatedAt)
		data["updated_at"] = service.FormatTimestamp(item.UpdatedAt)
		data["version"] = item.Version
	}
	if returnType == ReturnSummary || returnType == ReturnBoth {
		data["id"] = item.ID
		data["topic"] = item.TopicName
		data["tags"] = item.Tags
		data["summary_text"] = summary.SummaryText
		data["summary_type"] = string(summary.SummaryType)
	}
	return service.OK("match", data)
}

// Update implements update(memory_id, content?, topic?, tags?).
func (e *Engine) Update(ctx context.Context, memoryID string, content, topic *string, tags *[]string) service.Envelope {
	existing, err := e.rel.GetMemory(ctx, memoryID)
	if err != nil {
		return service.Err(err)
	}

	upd := relational.MemoryUpdate{Content: content, Topic: topic, Tags: tags}
	updated, err := e.rel.UpdateMemory(ctx, memoryID, upd)
	if err != nil {
		return service.Err(err)
	}

	effectiveTags := updated.Tags
	if err := e.vec.UpdateMetadata(ctx, vectorstore.CollectionMemories, memoryID, vectorstore.Metadata{TopicName: updated.TopicName, Tags: effectiveTags}); err != nil {
		e.logger.Error("vector update_memory metadata failed", "memory_id", memoryID, "error", err)
	}
	contentChanged := content != nil && *content != existing.Content
	if contentChanged {
		if vector, err := e.embed(ctx, updated.Content); err == nil {
			if err := e.vec.Upsert(ctx, vectorstore.CollectionMemories, memoryID, vector, vectorstore.Metadata{TopicName: updated.TopicName, Tags: effectiveTags}); err != nil {
				e.logger.Error("vector re-embed memory failed", "memory_id", memoryID, "error", err)
			}
		}
	}

	topicChanged := topic != nil && *topic != existing.TopicName
	if topicChanged {
		if err := e.upsertTopicVector(ctx, updated.TopicName, effectiveTags); err != nil {
			e.logger.Error("vector upsert_topic failed", "topic", updated.TopicName, "error", err)
		}
	}

	summaryGenerated := false
	var summaryID string
	if contentChanged {
		if text, _, ok := e.produceDefaultSummary(ctx, updated.Content); ok {
			existingSummary, getErr := e.rel.GetSummary(ctx, memoryID, model.SummaryTypeAbstractiveMedium)
			switch {
			case getErr == nil:
				if _, err := e.rel.UpdateSummary(ctx, existingSummary.ID, text); err != nil {
					e.logger.Error("update default summary failed", "memory_id", memoryID, "error", err)
				} else {
					summaryID = existingSummary.ID
					summaryGenerated = true
					if sv, err := e.embed(ctx, text); err == nil {
						if err := e.vec.Upsert(ctx, vectorstore.CollectionSummaries, existingSummary.ID, sv, vectorstore.Metadata{RefID: memoryID, TopicName: updated.TopicName, Extra: string(model.SummaryTypeAbstractiveMedium)}); err != nil {
							e.logger.Error("re-embed default summary failed", "memory_id", memoryID, "error", err)
						}
					}
				}
			case apperr.KindOf(getErr) == apperr.KindNotFound:
				sid := service.NewID()
				if _, err := e.rel.StoreSummary(ctx, sid, memoryID, model.SummaryTypeAbstractiveMedium, text); err != nil {
					e.logger.Error("store default summary failed", "memory_id", memoryID, "error", err)
				} else {
					summaryID = sid
					summaryGenerated = true
					if sv, err := e.embed(ctx, text); err == nil {
						if err := e.vec.Upsert(ctx, vectorstore.CollectionSummaries, sid, sv, vectorstore.Metadata{RefID: memoryID, TopicName: updated.TopicName, Extra: string(model.SummaryTypeAbstractiveMedium)}); err != nil {
							e.logger.Error("vector add_summary failed", "summary_id", sid, "error", err)
						}
					}
				}
			default:
				e.logger.Error("look up existing default summary failed", "memory_id", memoryID, "error", getErr)
			}
		}
	}

	e.backupMgr.Tick(ctx)

	data := map[string]interface{}{
		"memory_id":         updated.ID,
		"version":           updated.Version,
		"summary_generated": summaryGenerated,
	}
	if summaryID != "" {
		data["summary_id"] = summaryID
	}
	return service.OK("memory updated", data)
}

// Delete implements delete(memory_id). Summary ids are enumerated before
// the relational cascade removes the summary rows; skipping this step
// would orphan their vector-store mirrors once the cascade fires.
func (e *Engine) Delete(ctx context.Context, memoryID string) service.Envelope {
	summaryIDs, err := e.rel.ListSummaries(ctx, memoryID)
	if err != nil {
		return service.Err(err)
	}

	if err := e.rel.DeleteMemory(ctx, memoryID); err != nil {
		return service.Err(err)
	}

	if err := e.vec.Delete(ctx, vectorstore.CollectionMemories, memoryID); err != nil {
		e.logger.Error("vector delete_memory failed", "memory_id", memoryID, "error", err)
	}
	for _, sum := range summaryIDs {
		if err := e.vec.Delete(ctx, vectorstore.CollectionSummaries, sum.ID); err != nil {
			e.logger.Error("vector delete_summary failed", "summary_id", sum.ID, "error", err)
		}
	}

	e.backupMgr.Tick(ctx)
	return service.OK("memory deleted", map[string]interface{}{"memory_id": memoryID})
}

// ListTopics implements list_topics().
func (e *Engine) ListTopics(ctx context.Context) service.Envelope {
	topics, err := e.rel.ListTopics(ctx)
	if err != nil {
		return service.Err(err)
	}
	out := make([]map[string]interface{}, len(topics))
	for i, t := range topics {
		out[i] = map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"item_count":  t.ItemCount,
			"updated_at":  service.FormatTimestamp(t.UpdatedAt),
		}
	}
	return service.OK("topics listed", map[string]interface{}{"topics": out})
}

// Status implements status().
func (e *Engine) Status(ctx context.Context) service.Envelope {
	relStatus, err := e.rel.Status(ctx)
	if err != nil {
		return service.Err(err)
	}
	vecStatus, err := e.vec.Status(ctx)
	if err != nil {
		return service.Err(err)
	}
	backupNames, _ := e.backupMgr.List()

	data := map[string]interface{}{
		"total_memories": relStatus.TotalMemories,
		"total_topics":   relStatus.TotalTopics,
		"top_topics":     relStatus.TopTopics,
		"vector_store":   vecStatus,
		"backup_count":   len(backupNames),
	}
	if relStatus.LatestItemAt != nil {
		data["latest_item_at"] = service.FormatTimestamp(*relStatus.LatestItemAt)
	}
	if ts, ok := e.backupMgr.LastTimestamp(); ok {
		data["last_backup_at"] = service.FormatTimestamp(ts)
	}
	return service.OK("status", data)
}

// Summarize implements summarize(memory_id?|query?|topic?, summary_type,
// length). Exactly one of memory_id, query, topic must be provided. The
// produced text is returned but never persisted.
func (e *Engine) Summarize(ctx context.Context, memoryID, query, topic string, summaryType summarize.Kind, length summarize.Length) service.Envelope {
	selectors := 0
	for _, s := range []string{memoryID, query, topic} {
		if s != "" {
			selectors++
		}
	}
	if selectors != 1 {
		return service.Err(apperr.InvalidArgument("exactly one of memory_id, query, topic must be provided"))
	}

	var text string
	if memoryID != "" {
		item, err := e.rel.GetMemory(ctx, memoryID)
		if err != nil {
			return service.Err(err)
		}
		text = item.Content
	} else {
		seed := query
		if seed == "" {
			seed = topic
		}
		seedVec, err := e.embed(ctx, seed)
		if err != nil {
			return service.Err(err)
		}
		hits, err := e.vec.Search(ctx, vectorstore.CollectionMemories, seedVec, 10, topic)
		if err != nil {
			return service.Err(err)
		}
		var parts []string
		for _, h := range hits {
			item, err := e.rel.GetMemory(ctx, h.ID)
			if err != nil {
				continue
			}
			parts = append(parts, item.Content)
		}
		if len(parts) == 0 {
			return service.Err(apperr.NotFound("no candidate memories found for summarization"))
		}
		text = strings.Join(parts, "\n---\n")
	}

	queryArg := ""
	if summaryType == summarize.KindQueryFocused {
		queryArg = query
	}
	out, err := e.summarizer.Summarize(ctx, text, summaryType, length, queryArg)
	if err != nil {
		return service.Err(err)
	}
	return service.OK("summary produced", map[string]interface{}{"summary": out})
}
