package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hybridmem/memory-service/internal/backup"
	"github.com/hybridmem/memory-service/internal/config"
	"github.com/hybridmem/memory-service/internal/relational"
	"github.com/hybridmem/memory-service/internal/summarize"
	"github.com/hybridmem/memory-service/internal/vectorstore"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	fail bool
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string, kind summarize.Kind, length summarize.Length, query string) (string, error) {
	if f.fail {
		return "", summarizeUnavailable()
	}
	if kind == summarize.KindQueryFocused {
		return "focused: " + query, nil
	}
	return "summary(" + string(kind) + "): " + firstWords(text, 5), nil
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func summarizeUnavailable() error {
	return &unavailableError{}
}

type unavailableError struct{}

func (e *unavailableError) Error() string { return "summarizer unavailable" }

func newTestEngine(t *testing.T, summarizerFails bool) *Engine {
	t.Helper()
	dir := t.TempDir()

	rel, err := relational.Open(filepath.Join(dir, "memory.sqlite"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rel.Close() })

	vec, err := vectorstore.Open(filepath.Join(dir, "vectors.sqlite"), 384)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vec.Close() })

	backupMgr := backup.New(backup.Config{
		DataDir:        dir,
		BackupDir:      filepath.Join(dir, "backups"),
		Enabled:        false,
		Interval:       time.Hour,
		RetentionCount: 5,
	}, log.Default())

	cfg := config.DefaultConfig()
	return New(cfg, rel, vec, &vectorstore.LocalEmbedder{}, &fakeSummarizer{fail: summarizerFails}, backupMgr, log.Default())
}

func TestStore_TinyTierUsesContentAsSummary(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	env := e.Store(ctx, "I prefer tabs over spaces", "user_preferences", []string{"style"})
	require.True(t, env.IsOK())
	require.Equal(t, true, env["summary_generated"])
	require.Equal(t, "tiny", env["summary_tier"])

	results := e.Retrieve(ctx, "indentation", 5, "user_preferences", ReturnSummary)
	require.Len(t, results, 1)
	require.Equal(t, "I prefer tabs over spaces", results[0]["summary_text"])
}

func TestStore_LargeTierThenUpdateToTinyRegeneratesSummary(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	large := strings.Repeat("word ", 500)
	env := e.Store(ctx, large, "research", nil)
	require.True(t, env.IsOK())
	require.Equal(t, "large", env["summary_tier"])
	memoryID := env["memory_id"].(string)
	originalSummaryID := env["summary_id"]
	require.NotEmpty(t, originalSummaryID)

	shortText := "short replacement text"
	updEnv := e.Update(ctx, memoryID, &shortText, nil, nil)
	require.True(t, updEnv.IsOK())
	require.Equal(t, true, updEnv["summary_generated"])
	require.Equal(t, originalSummaryID, updEnv["summary_id"])
}

func TestDelete_RemovesFromBothStoresAndVectorSearchNoLongerFindsIt(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	env := e.Store(ctx, "a memory about onboarding", "docs", nil)
	require.True(t, env.IsOK())
	memoryID := env["memory_id"].(string)
	summaryID := env["summary_id"].(string)

	delEnv := e.Delete(ctx, memoryID)
	require.True(t, delEnv.IsOK())

	_, err := e.vec.Get(ctx, vectorstore.CollectionSummaries, summaryID)
	require.Error(t, err)

	results := e.Retrieve(ctx, "onboarding", 5, "", ReturnFullText)
	require.Len(t, results, 1)
	require.Equal(t, "ok", results[0]["status"])
	_, hasContent := results[0]["content"]
	require.False(t, hasContent)
}

func TestRetrieve_NoDataReturnsSingleElementEnvelope(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	results := e.Retrieve(ctx, "anything", 5, "", ReturnFullText)
	require.Len(t, results, 1)
	require.Equal(t, "ok", results[0]["status"])
	_, hasContent := results[0]["content"]
	require.False(t, hasContent)
}

func TestRetrieve_ExplicitZeroMaxResultsReturnsSingleElementEnvelope(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	env := e.Store(ctx, "a note about deploy process", "ops", []string{"deploy"})
	require.True(t, env.IsOK())

	results := e.Retrieve(ctx, "deploy process", 0, "ops", ReturnFullText)
	require.Len(t, results, 1)
	require.Equal(t, "ok", results[0]["status"])
	_, hasContent := results[0]["content"]
	require.False(t, hasContent)
}

func TestRetrieve_ReturnTypeBothIncludesBothShapes(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	env := e.Store(ctx, "a note about deploy process", "ops", []string{"deploy"})
	require.True(t, env.IsOK())

	results := e.Retrieve(ctx, "deploy process", 5, "ops", ReturnBoth)
	require.Len(t, results, 1)
	require.Contains(t, results[0], "content")
	require.Contains(t, results[0], "summary_text")
}

func TestUpdate_NotFoundReturnsErrorEnvelope(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	newContent := "does not matter"
	env := e.Update(ctx, "missing-id", &newContent, nil, nil)
	require.False(t, env.IsOK())
	require.Equal(t, "error", env["status"])
}

func TestSummarize_RequiresExactlyOneSelector(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	env := e.Summarize(ctx, "", "", "", summarize.KindAbstractive, summarize.LengthShort)
	require.False(t, env.IsOK())

	env = e.Store(ctx, "content for summarize test", "topic", nil)
	require.True(t, env.IsOK())
	memoryID := env["memory_id"].(string)

	env2 := e.Summarize(ctx, memoryID, "extra query", "", summarize.KindAbstractive, summarize.LengthShort)
	require.False(t, env2.IsOK())
}

func TestSummarize_ByMemoryIDDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	env := e.Store(ctx, "content for summarize test", "topic", nil)
	require.True(t, env.IsOK())
	memoryID := env["memory_id"].(string)

	summEnv := e.Summarize(ctx, memoryID, "", "", summarize.KindAbstractive, summarize.LengthShort)
	require.True(t, summEnv.IsOK())
	require.NotEmpty(t, summEnv["summary"])

	types, err := e.rel.ListSummaryTypes(ctx, memoryID)
	require.NoError(t, err)
	require.Len(t, types, 1)
}

func TestStatus_ReportsRelationalAndVectorCounts(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	_ = e.Store(ctx, "one", "topicA", nil)
	_ = e.Store(ctx, "two", "topicA", nil)

	env := e.Status(ctx)
	require.True(t, env.IsOK())
	require.Equal(t, 2, env["total_memories"])
	require.Equal(t, 1, env["total_topics"])
}

func TestListTopics_ReflectsStoredMemories(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, false)

	_ = e.Store(ctx, "one", "alpha", nil)
	_ = e.Store(ctx, "two", "beta", nil)

	env := e.ListTopics(ctx)
	require.True(t, env.IsOK())
	topics := env["topics"].([]map[string]interface{})
	require.Len(t, topics, 2)
}

func TestStore_SummarizerFailureDegradesGracefullyOnLargerTiers(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, true)

	large := strings.Repeat("word ", 500)
	env := e.Store(ctx, large, "research", nil)
	require.True(t, env.IsOK())
	require.Equal(t, false, env["summary_generated"])
}
