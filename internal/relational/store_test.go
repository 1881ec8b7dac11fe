package relational

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hybridmem/memory-service/internal/apperr"
	"github.com/hybridmem/memory-service/internal/model"
	"github.com/hybridmem/memory-service/internal/service"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "memory.sqlite"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertMemory_CreatesTopicWithCountOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := service.NewID()
	item, err := s.InsertMemory(ctx, id, "hello world", "greetings", []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, 1, item.Version)
	require.Equal(t, []string{"a", "b"}, item.Tags)

	topics, err := s.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	require.Equal(t, "greetings", topics[0].Name)
	require.Equal(t, 1, topics[0].ItemCount)
}

func TestInsertMemory_SecondMemoryIncrementsSameTopic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertMemory(ctx, service.NewID(), "one", "topicX", nil)
	require.NoError(t, err)
	_, err = s.InsertMemory(ctx, service.NewID(), "two", "topicX", nil)
	require.NoError(t, err)

	topics, err := s.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	require.Equal(t, 2, topics[0].ItemCount)
}

func TestDeleteMemory_DecrementsAndRemovesTopicAtZero(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id1 := service.NewID()
	id2 := service.NewID()
	_, err := s.InsertMemory(ctx, id1, "one", "X", nil)
	require.NoError(t, err)
	_, err = s.InsertMemory(ctx, id2, "two", "X", nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteMemory(ctx, id1))
	topics, err := s.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	require.Equal(t, 1, topics[0].ItemCount)

	require.NoError(t, s.DeleteMemory(ctx, id2))
	topics, err = s.ListTopics(ctx)
	require.NoError(t, err)
	require.Empty(t, topics)
}

func TestDeleteMemory_CascadesSummaries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := service.NewID()
	_, err := s.InsertMemory(ctx, id, "content", "topic", nil)
	require.NoError(t, err)
	_, err = s.StoreSummary(ctx, service.NewID(), id, model.SummaryTypeAbstractiveMedium, "summary text")
	require.NoError(t, err)

	require.NoError(t, s.DeleteMemory(ctx, id))

	sums, err := s.ListSummaries(ctx, id)
	require.NoError(t, err)
	require.Empty(t, sums)
}

func TestDeleteMemory_NotFoundIsIdempotentFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.DeleteMemory(ctx, "does-not-exist")
	require.Error(t, err)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateMemory_IncrementsVersionMonotonically(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := service.NewID()
	_, err := s.InsertMemory(ctx, id, "v1", "topic", nil)
	require.NoError(t, err)

	newContent := "v2"
	updated, err := s.UpdateMemory(ctx, id, MemoryUpdate{Content: &newContent})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, "v2", updated.Content)

	updated, err = s.UpdateMemory(ctx, id, MemoryUpdate{Content: &newContent})
	require.NoError(t, err)
	require.Equal(t, 3, updated.Version)
}

func TestUpdateMemory_TopicChangeMovesRefcount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := service.NewID()
	_, err := s.InsertMemory(ctx, id, "content", "old-topic", nil)
	require.NoError(t, err)

	newTopic := "new-topic"
	_, err = s.UpdateMemory(ctx, id, MemoryUpdate{Topic: &newTopic})
	require.NoError(t, err)

	topics, err := s.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	require.Equal(t, "new-topic", topics[0].Name)
	require.Equal(t, 1, topics[0].ItemCount)
}

func TestStoreSummary_UniqueConstraintYieldsConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := service.NewID()
	_, err := s.InsertMemory(ctx, id, "content", "topic", nil)
	require.NoError(t, err)

	_, err = s.StoreSummary(ctx, service.NewID(), id, model.SummaryTypeAbstractiveMedium, "one")
	require.NoError(t, err)

	_, err = s.StoreSummary(ctx, service.NewID(), id, model.SummaryTypeAbstractiveMedium, "two")
	require.Error(t, err)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestInsertMemory_RejectsEmptyContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertMemory(ctx, service.NewID(), "   ", "topic", nil)
	require.Error(t, err)
	require.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestInsertMemory_RejectsEmptyStringTag(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertMemory(ctx, service.NewID(), "content", "topic", []string{"a", "", "a"})
	require.Error(t, err)
	require.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestInsertMemory_DedupsTagsPreservingFirstOccurrence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	item, err := s.InsertMemory(ctx, service.NewID(), "content", "topic", []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, item.Tags)

	fetched, err := s.GetMemory(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, fetched.Tags)
}

func TestUpdateMemory_RejectsEmptyStringTag(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := service.NewID()
	_, err := s.InsertMemory(ctx, id, "content", "topic", []string{"a"})
	require.NoError(t, err)

	badTags := []string{"a", ""}
	_, err = s.UpdateMemory(ctx, id, MemoryUpdate{Tags: &badTags})
	require.Error(t, err)
	require.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestUpdateMemory_DedupsTagsPreservingFirstOccurrence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := service.NewID()
	_, err := s.InsertMemory(ctx, id, "content", "topic", nil)
	require.NoError(t, err)

	newTags := []string{"x", "y", "x", "z"}
	updated, err := s.UpdateMemory(ctx, id, MemoryUpdate{Tags: &newTags})
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y", "z"}, updated.Tags)
}

// stepClock advances one second per call, so consecutive writes get
// distinct second-resolution timestamps.
type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestListTopics_OrderedByUpdatedAtDescending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.clock = &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	_, err := s.InsertMemory(ctx, service.NewID(), "one", "first", nil)
	require.NoError(t, err)
	_, err = s.InsertMemory(ctx, service.NewID(), "two", "second", nil)
	require.NoError(t, err)

	topics, err := s.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	require.Equal(t, "second", topics[0].Name)
	require.Equal(t, "first", topics[1].Name)
}

func TestStatus_ReportsCountsAndTopTopics(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertMemory(ctx, service.NewID(), "one", "popular", nil)
	require.NoError(t, err)
	_, err = s.InsertMemory(ctx, service.NewID(), "two", "popular", nil)
	require.NoError(t, err)
	_, err = s.InsertMemory(ctx, service.NewID(), "three", "rare", nil)
	require.NoError(t, err)

	status, err := s.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, status.TotalMemories)
	require.Equal(t, 2, status.TotalTopics)
	require.Equal(t, "popular", status.TopTopics[0].Name)
	require.Equal(t, 2, status.TopTopics[0].ItemCount)
	require.NotNil(t, status.LatestItemAt)
}

func TestOpen_ResetWipesExistingData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.sqlite")

	s1, err := Open(path, false)
	require.NoError(t, err)
	_, err = s1.InsertMemory(ctx, service.NewID(), "content", "topic", nil)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, true)
	require.NoError(t, err)
	defer s2.Close()

	topics, err := s2.ListTopics(ctx)
	require.NoError(t, err)
	require.Empty(t, topics)
}
