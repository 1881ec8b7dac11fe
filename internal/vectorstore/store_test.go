package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestVectorStore(t *testing.T, dim int) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "vectors.sqlite"), dim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLocalEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := &LocalEmbedder{}
	ctx := context.Background()

	v1, err := e.EmbedTexts(ctx, []string{"the quick brown fox"})
	require.NoError(t, err)
	v2, err := e.EmbedTexts(ctx, []string{"the quick brown fox"})
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Len(t, v1[0], localDimension)

	var norm float32
	for _, f := range v1[0] {
		norm += f * f
	}
	require.InDelta(t, 1.0, norm, 1e-4)
}

func TestLocalEmbedder_DistinctTextsProduceDistinctVectors(t *testing.T) {
	e := &LocalEmbedder{}
	ctx := context.Background()

	out, err := e.EmbedTexts(ctx, []string{"apples and oranges", "quantum mechanics textbook"})
	require.NoError(t, err)
	require.NotEqual(t, out[0], out[1])
}

func TestUpsertAndSearch_FindsNearestNeighbor(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 4)

	require.NoError(t, s.Upsert(ctx, CollectionMemories, "mem-1", []float32{1, 0, 0, 0}, Metadata{TopicName: "topicA"}))
	require.NoError(t, s.Upsert(ctx, CollectionMemories, "mem-2", []float32{0, 1, 0, 0}, Metadata{TopicName: "topicB"}))

	hits, err := s.Search(ctx, CollectionMemories, []float32{0.9, 0.1, 0, 0}, 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "mem-1", hits[0].ID)
}

func TestSearch_FiltersByTopic(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 4)

	require.NoError(t, s.Upsert(ctx, CollectionMemories, "mem-1", []float32{1, 0, 0, 0}, Metadata{TopicName: "topicA"}))
	require.NoError(t, s.Upsert(ctx, CollectionMemories, "mem-2", []float32{0.95, 0.05, 0, 0}, Metadata{TopicName: "topicB"}))

	hits, err := s.Search(ctx, CollectionMemories, []float32{1, 0, 0, 0}, 5, "topicB")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "mem-2", hits[0].ID)
}

func TestUpsert_OverwritesPreviousEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 4)

	require.NoError(t, s.Upsert(ctx, CollectionMemories, "mem-1", []float32{1, 0, 0, 0}, Metadata{TopicName: "topicA"}))
	require.NoError(t, s.Upsert(ctx, CollectionMemories, "mem-1", []float32{0, 0, 0, 1}, Metadata{TopicName: "topicA"}))

	hits, err := s.Search(ctx, CollectionMemories, []float32{0, 0, 0, 1}, 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "mem-1", hits[0].ID)

	status, err := s.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, status.MemoryVectors)
}

func TestUpdateMetadata_ReplacesMetadataLeavesEmbeddingIntact(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 4)

	require.NoError(t, s.Upsert(ctx, CollectionMemories, "mem-1", []float32{1, 0, 0, 0}, Metadata{TopicName: "topicA", Tags: []string{"x"}}))
	require.NoError(t, s.UpdateMetadata(ctx, CollectionMemories, "mem-1", Metadata{TopicName: "topicB", Tags: []string{"y"}}))

	meta, err := s.Get(ctx, CollectionMemories, "mem-1")
	require.NoError(t, err)
	require.Equal(t, "topicB", meta.TopicName)
	require.Equal(t, []string{"y"}, meta.Tags)

	hits, err := s.Search(ctx, CollectionMemories, []float32{1, 0, 0, 0}, 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "mem-1", hits[0].ID)
}

func TestDelete_RemovesEmbeddingAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 4)

	require.NoError(t, s.Upsert(ctx, CollectionMemories, "mem-1", []float32{1, 0, 0, 0}, Metadata{TopicName: "topicA"}))
	require.NoError(t, s.Delete(ctx, CollectionMemories, "mem-1"))
	require.NoError(t, s.Delete(ctx, CollectionMemories, "mem-1"))

	status, err := s.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, status.MemoryVectors)
}

func TestUpsert_RejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 4)

	err := s.Upsert(ctx, CollectionMemories, "mem-1", []float32{1, 0}, Metadata{TopicName: "topicA"})
	require.Error(t, err)
}

func TestStatus_TracksAllThreeCollectionsIndependently(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 4)

	require.NoError(t, s.Upsert(ctx, CollectionMemories, "mem-1", []float32{1, 0, 0, 0}, Metadata{TopicName: "topicA"}))
	require.NoError(t, s.Upsert(ctx, CollectionSummaries, "sum-1", []float32{0, 1, 0, 0}, Metadata{RefID: "mem-1", Extra: "abstractive_medium"}))
	require.NoError(t, s.Upsert(ctx, CollectionTopics, "topicA", []float32{0, 0, 1, 0}, Metadata{}))

	status, err := s.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, status.MemoryVectors)
	require.Equal(t, 1, status.SummaryVectors)
	require.Equal(t, 1, status.TopicVectors)
}

func TestSearch_SummaryHitCarriesRefIDBackToMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestVectorStore(t, 4)

	require.NoError(t, s.Upsert(ctx, CollectionSummaries, "sum-1", []float32{1, 0, 0, 0}, Metadata{RefID: "mem-1", Extra: "abstractive_medium"}))

	hits, err := s.Search(ctx, CollectionSummaries, []float32{1, 0, 0, 0}, 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "sum-1", hits[0].ID)
	require.Equal(t, "mem-1", hits[0].RefID)
}
