package kbindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/ai/mock"
	"github.com/poiesic/kbindex/cache"
	"github.com/poiesic/kbindex/config"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/events"
	"github.com/poiesic/kbindex/ingestion"
	"github.com/poiesic/kbindex/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(tmpDir, WithProviders(mock.NewMockProvider(ai.PrimaryProvider)))
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		// Verify components are initialized
		assert.NotNil(t, db.DocumentRepository())
		assert.NotNil(t, db.ChunkRepository())
		assert.NotNil(t, db.Cache())
		assert.NotNil(t, db.Events())
		assert.Equal(t, []string{ai.PrimaryProvider}, db.Registry().Names())
	})

	t.Run("default provider", func(t *testing.T) {
		db, err := NewDatabase("", WithInMemory())
		require.NoError(t, err)
		defer db.Close()
		assert.Equal(t, []string{ai.PrimaryProvider}, db.Registry().Names())
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// Try to create a database at a file path instead of directory
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		err := os.WriteFile(tmpFile, []byte("test"), 0644)
		require.NoError(t, err)

		db, err := NewDatabase(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("error with unknown cache backend", func(t *testing.T) {
		db, err := NewDatabase("", WithInMemory(), WithCacheBackend("redis"))
		assert.ErrorIs(t, err, cache.ErrUnknownBackend)
		assert.Nil(t, db)
	})
}

func TestDatabase_Close(t *testing.T) {
	provider := mock.NewMockProvider(ai.PrimaryProvider)
	db, err := NewDatabase(t.TempDir(), WithProviders(provider))
	require.NoError(t, err)

	assert.NoError(t, db.Close())
	assert.True(t, provider.Closed())
}

func TestDatabase_IngestAndSearch(t *testing.T) {
	db, err := NewDatabase("", WithInMemory(), WithProviders(mock.NewMockProvider(ai.LocalProvider)))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	pipeline, err := db.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Release()
	searcher, err := db.NewSearcher()
	require.NoError(t, err)

	doc, err := db.DocumentRepository().AddDocument(ctx, &core.Document{
		OwnerID: "alice",
		Title:   "Release notes",
		Content: "Version two adds background ingestion.",
	})
	require.NoError(t, err)

	// Cached before ingestion; the pipeline must invalidate it.
	hits, err := searcher.Search(ctx, search.Query{Text: "background ingestion", OwnerID: "alice", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)

	updates, cancel := db.Events().Subscribe("", 16)
	defer cancel()
	taskID, err := pipeline.Submit(ingestion.Request{DocumentID: doc.Id, OwnerID: "alice"})
	require.NoError(t, err)
	pipeline.Wait()

	var final events.Event
	for !final.Ready {
		select {
		case final = <-updates:
		case <-time.After(time.Second):
			t.Fatal("no terminal event")
		}
	}
	assert.Equal(t, taskID, final.TaskID)
	assert.Equal(t, events.StateSuccess, final.State)

	hits, err = searcher.Search(ctx, search.Query{Text: "background ingestion", OwnerID: "alice", Limit: 5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, doc.Id, hits[0].DocumentId)
	assert.Equal(t, "Release notes", hits[0].DocumentTitle)
}

func TestNewDatabaseFromConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(`
cache:
  backend: badger
providers:
  - kind: ollama
`))
	require.NoError(t, err)
	cfg.DataDir = filepath.Join(t.TempDir(), "kb")

	db, err := NewDatabaseFromConfig(cfg)
	require.NoError(t, err)
	defer db.Close()

	assert.IsType(t, &cache.Badger{}, db.Cache())
	assert.Equal(t, []string{ai.LocalProvider}, db.Registry().Names())
}

func TestPipelineAndSearchOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Ingestion = config.IngestionConfig{Workers: 2, EmbedConcurrency: 3}
	cfg.Chunker = config.ChunkerConfig{MaxChars: 400}
	cfg.Search.MaxCandidates = 50

	assert.Len(t, PipelineOptions(cfg), 3)
	assert.Len(t, SearchOptions(cfg), 2)

	db, err := NewDatabase("", WithInMemory(), WithProviders(mock.NewMockProvider(ai.PrimaryProvider)))
	require.NoError(t, err)
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline(PipelineOptions(cfg)...)
	require.NoError(t, err)
	pipeline.Release()

	_, err = db.NewSearcher(SearchOptions(cfg)...)
	require.NoError(t, err)
}
