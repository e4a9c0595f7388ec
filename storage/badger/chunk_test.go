package badger

import (
	"context"
	"testing"

	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunk(doc *core.Document, generation uint64, index int, vector []float32) *core.Chunk {
	return &core.Chunk{
		Id:          core.ChunkID(doc.Id, generation, index),
		DocumentId:  doc.Id,
		OwnerID:     doc.OwnerID,
		WorkspaceID: doc.WorkspaceID,
		Index:       index,
		Content:     "chunk",
		Vector:      vector,
		Dim:         len(vector),
		Model:       "test-model",
		Provider:    "mock",
		Generation:  generation,
	}
}

// indexDocument inserts chunks for generation 1 and makes it visible.
func indexDocument(t *testing.T, chunkRepo *ChunkRepository, doc *core.Document, vectors ...[]float32) {
	t.Helper()
	ctx := context.Background()
	chunks := make([]*core.Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = newChunk(doc, 1, i, v)
	}
	require.NoError(t, chunkRepo.InsertChunks(ctx, chunks...))
	_, err := chunkRepo.MarkIndexed(ctx, doc.Id, 1, len(chunks))
	require.NoError(t, err)
}

func TestChunkRepository_InsertAndGet(t *testing.T) {
	docRepo, chunkRepo := setupRepositories(t)
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice"})
	require.NoError(t, err)

	var chunks []*core.Chunk
	for i := 0; i < 300; i++ {
		chunks = append(chunks, newChunk(doc, 1, i, []float32{float32(i), 1}))
	}
	require.NoError(t, chunkRepo.InsertChunks(ctx, chunks...))

	got, err := chunkRepo.GetChunks(ctx, "alice", doc.Id, 1)
	require.NoError(t, err)
	require.Len(t, got, 300)
	for i, chunk := range got {
		assert.Equal(t, i, chunk.Index, "chunks must come back in index order")
		assert.False(t, chunk.CreatedAt.IsZero())
	}

	other, err := chunkRepo.GetChunks(ctx, "bob", doc.Id, 1)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestChunkRepository_InsertInvalid(t *testing.T) {
	_, chunkRepo := setupRepositories(t)

	err := chunkRepo.InsertChunks(context.Background(), &core.Chunk{
		OwnerID: "alice",
		Vector:  []float32{1, 2},
		Dim:     3,
	})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestChunkRepository_DeleteChunks(t *testing.T) {
	docRepo, chunkRepo := setupRepositories(t)
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice"})
	require.NoError(t, err)

	require.NoError(t, chunkRepo.InsertChunks(ctx,
		newChunk(doc, 1, 0, []float32{1}),
		newChunk(doc, 1, 1, []float32{1}),
		newChunk(doc, 2, 0, []float32{1}),
		newChunk(doc, 3, 0, []float32{1}),
	))

	removed, err := chunkRepo.DeleteChunks(ctx, "alice", doc.Id, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	kept, err := chunkRepo.GetChunks(ctx, "alice", doc.Id, 2)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	removed, err = chunkRepo.DeleteChunks(ctx, "alice", doc.Id, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestChunkRepository_DeleteGeneration(t *testing.T) {
	docRepo, chunkRepo := setupRepositories(t)
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice"})
	require.NoError(t, err)
	require.NoError(t, chunkRepo.InsertChunks(ctx,
		newChunk(doc, 1, 0, []float32{1}),
		newChunk(doc, 2, 0, []float32{1}),
		newChunk(doc, 2, 1, []float32{1}),
	))

	removed, err := chunkRepo.DeleteGeneration(ctx, "alice", doc.Id, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	gen1, err := chunkRepo.GetChunks(ctx, "alice", doc.Id, 1)
	require.NoError(t, err)
	assert.Len(t, gen1, 1)
}

func TestChunkRepository_MarkIndexed(t *testing.T) {
	docRepo, chunkRepo := setupRepositories(t)
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice"})
	require.NoError(t, err)

	marked, err := chunkRepo.MarkIndexed(ctx, doc.Id, 4, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), marked.Generation)
	assert.Equal(t, 7, marked.ChunkCount)
	assert.False(t, marked.UpdatedAt.Before(doc.UpdatedAt))

	got, err := docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, 7, got.ChunkCount)

	_, err = chunkRepo.MarkIndexed(ctx, core.ID(999), 1, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindSimilarChunks_Ordering(t *testing.T) {
	docRepo, chunkRepo := setupRepositories(t)
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice", Title: "Vectors"})
	require.NoError(t, err)
	indexDocument(t, chunkRepo, doc,
		[]float32{0, 0, 1},     // orthogonal
		[]float32{1, 0, 0},     // identical
		[]float32{0.9, 0.1, 0}, // close
	)

	matches, err := chunkRepo.FindSimilarChunks(ctx, storage.ChunkQuery{
		OwnerID: "alice",
		Vector:  []float32{1, 0, 0},
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, 1, matches[0].Chunk.Index)
	assert.Equal(t, 2, matches[1].Chunk.Index)
	assert.Equal(t, 0, matches[2].Chunk.Index)
	assert.InDelta(t, 0, matches[0].Distance, 1e-6)
	assert.Equal(t, "Vectors", matches[0].DocumentTitle)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
	}
}

func TestFindSimilarChunks_Filters(t *testing.T) {
	docRepo, chunkRepo := setupRepositories(t)
	ctx := context.Background()

	live, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice", WorkspaceID: "ws1"})
	require.NoError(t, err)
	indexDocument(t, chunkRepo, live, []float32{1, 0})

	otherWorkspace, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice", WorkspaceID: "ws2"})
	require.NoError(t, err)
	indexDocument(t, chunkRepo, otherWorkspace, []float32{1, 0})

	deleted, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice", WorkspaceID: "ws1"})
	require.NoError(t, err)
	indexDocument(t, chunkRepo, deleted, []float32{1, 0})
	require.NoError(t, docRepo.SoftDeleteDocument(ctx, deleted.Id))

	otherOwner, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "bob", WorkspaceID: "ws1"})
	require.NoError(t, err)
	indexDocument(t, chunkRepo, otherOwner, []float32{1, 0})

	otherDim, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice", WorkspaceID: "ws1"})
	require.NoError(t, err)
	indexDocument(t, chunkRepo, otherDim, []float32{1, 0, 0})

	t.Run("workspace scoped", func(t *testing.T) {
		matches, err := chunkRepo.FindSimilarChunks(ctx, storage.ChunkQuery{
			OwnerID: "alice", WorkspaceID: "ws1", Vector: []float32{1, 0}, Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, live.Id, matches[0].Chunk.DocumentId)
	})

	t.Run("all workspaces", func(t *testing.T) {
		matches, err := chunkRepo.FindSimilarChunks(ctx, storage.ChunkQuery{
			OwnerID: "alice", Vector: []float32{1, 0}, Limit: 10,
		})
		require.NoError(t, err)
		assert.Len(t, matches, 2)
	})

	t.Run("dimension must match", func(t *testing.T) {
		matches, err := chunkRepo.FindSimilarChunks(ctx, storage.ChunkQuery{
			OwnerID: "alice", Vector: []float32{1, 0, 0}, Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, otherDim.Id, matches[0].Chunk.DocumentId)
	})
}

func TestFindSimilarChunks_StaleGenerationHidden(t *testing.T) {
	docRepo, chunkRepo := setupRepositories(t)
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice"})
	require.NoError(t, err)
	indexDocument(t, chunkRepo, doc, []float32{1, 0}, []float32{0.5, 0.5})

	// A second generation is written but not yet made visible.
	require.NoError(t, chunkRepo.InsertChunks(ctx, newChunk(doc, 2, 0, []float32{1, 0})))

	query := storage.ChunkQuery{OwnerID: "alice", Vector: []float32{1, 0}, Limit: 10}
	matches, err := chunkRepo.FindSimilarChunks(ctx, query)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, uint64(1), m.Chunk.Generation)
	}

	_, err = chunkRepo.MarkIndexed(ctx, doc.Id, 2, 1)
	require.NoError(t, err)
	matches, err = chunkRepo.FindSimilarChunks(ctx, query)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint64(2), matches[0].Chunk.Generation)
}

func TestFindSimilarChunks_LimitAndCandidates(t *testing.T) {
	docRepo, chunkRepo := setupRepositories(t)
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice"})
	require.NoError(t, err)
	vectors := make([][]float32, 30)
	for i := range vectors {
		vectors[i] = []float32{1, float32(i) / 10}
	}
	indexDocument(t, chunkRepo, doc, vectors...)

	matches, err := chunkRepo.FindSimilarChunks(ctx, storage.ChunkQuery{
		OwnerID: "alice", Vector: []float32{1, 0}, Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 5)
	for i, m := range matches {
		assert.Equal(t, i, m.Chunk.Index)
	}

	// Candidates below the limit are raised to the limit.
	matches, err = chunkRepo.FindSimilarChunks(ctx, storage.ChunkQuery{
		OwnerID: "alice", Vector: []float32{1, 0}, Limit: 4, MaxCandidates: 2,
	})
	require.NoError(t, err)
	assert.Len(t, matches, 4)
}

func TestFindSimilarChunks_InvalidQuery(t *testing.T) {
	_, chunkRepo := setupRepositories(t)
	ctx := context.Background()

	_, err := chunkRepo.FindSimilarChunks(ctx, storage.ChunkQuery{Vector: []float32{1}, Limit: 1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = chunkRepo.FindSimilarChunks(ctx, storage.ChunkQuery{OwnerID: "alice", Limit: 1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = chunkRepo.FindSimilarChunks(ctx, storage.ChunkQuery{OwnerID: "alice", Vector: []float32{1}})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestFindSimilarChunks_NoChunks(t *testing.T) {
	_, chunkRepo := setupRepositories(t)

	matches, err := chunkRepo.FindSimilarChunks(context.Background(), storage.ChunkQuery{
		OwnerID: "alice", Vector: []float32{1, 0}, Limit: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindSimilarChunks_DeletedChunksTakeNoCandidateSlots(t *testing.T) {
	docRepo, chunkRepo := setupRepositories(t)
	ctx := context.Background()

	deleted, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice", Title: "old"})
	require.NoError(t, err)
	vectors := make([][]float32, DefaultMaxCandidates+50)
	for i := range vectors {
		vectors[i] = []float32{1, 0}
	}
	indexDocument(t, chunkRepo, deleted, vectors...)
	require.NoError(t, docRepo.SoftDeleteDocument(ctx, deleted.Id))

	live, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice", Title: "live"})
	require.NoError(t, err)
	indexDocument(t, chunkRepo, live, []float32{1, 1})

	matches, err := chunkRepo.FindSimilarChunks(ctx, storage.ChunkQuery{
		OwnerID: "alice", Vector: []float32{1, 0}, Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, live.Id, matches[0].Chunk.DocumentId)
	assert.Equal(t, "live", matches[0].DocumentTitle)
}

func TestFindSimilarChunks_StaleChunksTakeNoCandidateSlots(t *testing.T) {
	docRepo, chunkRepo := setupRepositories(t)
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{OwnerID: "alice"})
	require.NoError(t, err)
	indexDocument(t, chunkRepo, doc, []float32{0, 1})

	// An unpublished generation full of closer chunks.
	var pending []*core.Chunk
	for i := 0; i < 10; i++ {
		pending = append(pending, newChunk(doc, 2, i, []float32{1, 0}))
	}
	require.NoError(t, chunkRepo.InsertChunks(ctx, pending...))

	matches, err := chunkRepo.FindSimilarChunks(ctx, storage.ChunkQuery{
		OwnerID: "alice", Vector: []float32{1, 0}, Limit: 1, MaxCandidates: 5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint64(1), matches[0].Chunk.Generation)
}
