package reindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/ai/mock"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/ingestion"
	"github.com/poiesic/kbindex/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) (*badger.DocumentRepository, *badger.ChunkRepository) {
	t.Helper()
	docRepo, chunkRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunkRepo.Close()
		docRepo.Close()
		backend.Close()
	})
	return docRepo, chunkRepo
}

func addDocuments(t *testing.T, repo *badger.DocumentRepository, owner string, contents ...string) []*core.Document {
	t.Helper()
	docs := make([]*core.Document, 0, len(contents))
	for _, content := range contents {
		doc, err := repo.AddDocument(context.Background(), &core.Document{OwnerID: owner, Content: content})
		require.NoError(t, err)
		docs = append(docs, doc)
	}
	return docs
}

// fakeIngester records requests and fails for configured documents.
type fakeIngester struct {
	requests []ingestion.Request
	failures map[core.ID]error
}

func (f *fakeIngester) Ingest(ctx context.Context, req ingestion.Request) (*core.Document, error) {
	f.requests = append(f.requests, req)
	if err, ok := f.failures[req.DocumentID]; ok {
		return nil, err
	}
	return &core.Document{Id: req.DocumentID}, nil
}

func TestDocumentIterator_Batches(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	docs := addDocuments(t, repo, "alice", "a", "b", "c", "d", "e")
	addDocuments(t, repo, "bob", "x")
	require.NoError(t, repo.SoftDeleteDocument(ctx, docs[4].Id))

	var sizes []int
	var seen []core.ID
	err := NewDocumentIterator(repo, 2).ForEach(ctx, "alice", func(batch []*core.Document) error {
		sizes = append(sizes, len(batch))
		for _, doc := range batch {
			seen = append(seen, doc.Id)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, sizes)
	assert.Equal(t, []core.ID{docs[0].Id, docs[1].Id, docs[2].Id, docs[3].Id}, seen)
}

func TestDocumentIterator_ReadsEachBatchFromRepository(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	addDocuments(t, repo, "alice", "a", "b")

	var seen []string
	added := false
	err := NewDocumentIterator(repo, 2).ForEach(ctx, "alice", func(batch []*core.Document) error {
		for _, doc := range batch {
			seen = append(seen, doc.Content)
		}
		// Documents written after a batch was handed out show up in a later one.
		if !added {
			added = true
			addDocuments(t, repo, "alice", "c")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestDocumentIterator_StopsOnError(t *testing.T) {
	repo, _ := setupRepo(t)
	addDocuments(t, repo, "alice", "a", "b", "c")

	calls := 0
	boom := errors.New("boom")
	err := NewDocumentIterator(repo, 1).ForEach(context.Background(), "alice", func([]*core.Document) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDocumentIterator_CancelledContext(t *testing.T) {
	repo, _ := setupRepo(t)
	addDocuments(t, repo, "alice", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewDocumentIterator(repo, 0).ForEach(ctx, "alice", func([]*core.Document) error {
		t.Fatal("fn called after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReindexer_Run(t *testing.T) {
	repo, _ := setupRepo(t)
	docs := addDocuments(t, repo, "alice", "a", "b", "c")
	ingester := &fakeIngester{failures: map[core.ID]error{
		docs[1].Id: fmt.Errorf("%w: document %d", core.ErrEmptyContent, docs[1].Id),
		docs[2].Id: core.ErrEmbeddingFailed,
	}}

	var out bytes.Buffer
	r := NewReindexer(repo, ingester, &Config{BatchSize: 2, PreferredProvider: "ollama", PreferredModel: "nomic"}, &out)
	report, err := r.Run(context.Background(), "alice")
	require.ErrorIs(t, err, ErrIncomplete)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[docs[2].Id], core.ErrEmbeddingFailed)

	require.Len(t, ingester.requests, 3)
	for _, req := range ingester.requests {
		assert.True(t, req.Overwrite)
		assert.Equal(t, "alice", req.OwnerID)
		assert.Equal(t, "ollama", req.PreferredProvider)
		assert.Equal(t, "nomic", req.PreferredModel)
	}
	assert.Contains(t, out.String(), "Reindex complete")
}

func TestReindexer_NoDocuments(t *testing.T) {
	repo, _ := setupRepo(t)
	var out bytes.Buffer

	report, err := NewReindexer(repo, &fakeIngester{}, nil, &out).Run(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.True(t, strings.Contains(out.String(), "No documents"))
}

func TestReindexer_RequiresOwner(t *testing.T) {
	repo, _ := setupRepo(t)
	_, err := NewReindexer(repo, &fakeIngester{}, nil, nil).Run(context.Background(), "")
	assert.ErrorIs(t, err, ErrOwnerRequired)
}

func TestReindexer_SwitchesProvider(t *testing.T) {
	docRepo, chunkRepo := setupRepo(t)
	ctx := context.Background()

	primary := mock.NewMockProvider(ai.PrimaryProvider).WithDimension(8)
	local := mock.NewMockProvider(ai.LocalProvider).WithDimension(4)
	registry, err := ai.NewRegistry(primary, local)
	require.NoError(t, err)
	pipeline, err := ingestion.NewPipeline(docRepo, chunkRepo, registry)
	require.NoError(t, err)
	defer pipeline.Release()

	docs := addDocuments(t, docRepo, "alice", "First document.", "Second document.")
	for _, doc := range docs {
		_, err := pipeline.Ingest(ctx, ingestion.Request{DocumentID: doc.Id, OwnerID: "alice"})
		require.NoError(t, err)
	}

	report, err := NewReindexer(docRepo, pipeline, &Config{PreferredProvider: ai.LocalProvider}, nil).Run(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)

	for _, doc := range docs {
		stored, err := docRepo.GetDocument(ctx, doc.Id)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), stored.Generation)

		chunks, err := chunkRepo.GetChunks(ctx, "alice", doc.Id, stored.Generation)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, ai.LocalProvider, chunks[0].Provider)
		assert.Equal(t, 4, chunks[0].Dim)
	}
}
