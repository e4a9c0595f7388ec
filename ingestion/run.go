package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/cache"
	"github.com/poiesic/kbindex/chunker"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/events"
	"github.com/poiesic/kbindex/storage"
	"golang.org/x/sync/errgroup"
)

// run drives one ingestion through its states and reports the outcome.
func (p *Pipeline) run(ctx context.Context, req Request, emit func(events.Event)) (*core.Document, error) {
	logger := p.logger.With("document", req.DocumentID, "owner", req.OwnerID)
	emit(events.Event{State: events.StateStarted})

	doc, summary, err := p.index(ctx, req, emit, logger)
	if err != nil {
		emit(events.Event{State: events.StateFailure, Error: err.Error()})
		return nil, err
	}

	emit(events.Event{
		State:           events.StateSuccess,
		ProcessedChunks: summary.ChunkCount,
		TotalChunks:     summary.ChunkCount,
		Result:          summary,
	})
	logger.Info("document indexed", "chunks", summary.ChunkCount, "provider", summary.Provider, "dim", summary.Dimension)
	return doc, nil
}

func (p *Pipeline) index(ctx context.Context, req Request, emit func(events.Event), logger *slog.Logger) (*core.Document, *events.Summary, error) {
	unlock := p.locks.lock(req.DocumentID)
	defer unlock()

	doc, err := p.loadDocument(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if doc.Generation > 0 && !req.Overwrite {
		logger.Debug("document already indexed, skipping")
		return doc, p.currentSummary(ctx, doc), nil
	}

	texts := p.split(doc.Content, req)
	if len(texts) == 0 {
		return nil, nil, fmt.Errorf("%w: document %d", core.ErrEmptyContent, doc.Id)
	}
	emit(events.Event{State: events.StateChunked, TotalChunks: len(texts)})

	provider, err := p.registry.Resolve(req.PreferredProvider)
	if err != nil {
		return nil, nil, err
	}
	model := ai.ModelName(provider, req.PreferredModel)

	vectors, err := p.embedAll(ctx, provider, req.PreferredModel, texts, emit)
	if err != nil {
		return nil, nil, err
	}

	generation := doc.Generation + 1
	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{
			Id:          core.ChunkID(doc.Id, generation, i),
			DocumentId:  doc.Id,
			OwnerID:     doc.OwnerID,
			WorkspaceID: doc.WorkspaceID,
			Index:       i,
			Content:     text,
			Vector:      vectors[i],
			Dim:         len(vectors[i]),
			Model:       model,
			Provider:    provider.Name(),
			TokenCount:  chunker.EstimateTokens(text),
			Generation:  generation,
		}
	}

	indexed, err := p.swapGeneration(ctx, doc, generation, chunks, logger)
	if err != nil {
		return nil, nil, err
	}
	p.invalidate(ctx, indexed, logger)

	return indexed, &events.Summary{
		DocumentID: indexed.Id,
		ChunkCount: len(chunks),
		Provider:   provider.Name(),
		Model:      model,
		Dimension:  len(vectors[0]),
	}, nil
}

func (p *Pipeline) loadDocument(ctx context.Context, req Request) (*core.Document, error) {
	doc, err := p.documents.GetDocument(ctx, req.DocumentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", core.ErrDocumentNotFound, req.DocumentID)
	}
	if err != nil {
		return nil, err
	}
	// Other owners' documents are reported as missing.
	if doc.OwnerID != req.OwnerID || doc.IsDeleted() {
		return nil, fmt.Errorf("%w: %d", core.ErrDocumentNotFound, req.DocumentID)
	}
	return doc, nil
}

func (p *Pipeline) split(content string, req Request) []string {
	if req.MaxChars <= 0 && req.Overlap == nil {
		return p.chunker.Split(content)
	}
	maxChars, overlap := p.chunker.MaxChars(), p.chunker.Overlap()
	if req.MaxChars > 0 {
		maxChars = req.MaxChars
	}
	if req.Overlap != nil {
		overlap = *req.Overlap
	}
	return chunker.Split(content, maxChars, overlap)
}

// embedAll embeds every text with bounded concurrency. Vectors keep the
// order of texts. The first failure cancels the remaining calls.
func (p *Pipeline) embedAll(ctx context.Context, provider ai.Provider, model string, texts []string, emit func(events.Event)) ([][]float32, error) {
	total := len(texts)
	vectors := make([][]float32, total)

	var mu sync.Mutex
	processed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.embedConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vector, err := provider.Embed(gctx, text, model)
			if err != nil {
				return fmt.Errorf("%w: chunk %d via %s: %w", core.ErrEmbeddingFailed, i, provider.Name(), err)
			}
			if len(vector) == 0 {
				return fmt.Errorf("%w: chunk %d via %s: empty vector", core.ErrEmbeddingFailed, i, provider.Name())
			}
			vectors[i] = vector

			mu.Lock()
			defer mu.Unlock()
			processed++
			if processed%progressInterval == 0 || processed == total {
				emit(events.Event{State: events.StateEmbedding, ProcessedChunks: processed, TotalChunks: total})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %d has dimension %d, expected %d", core.ErrEmbeddingFailed, i, len(v), dim)
		}
	}
	return vectors, nil
}

// swapGeneration stores chunks under a new generation, makes it visible and
// drops every other generation. Until MarkIndexed succeeds the previous
// chunk set stays visible.
func (p *Pipeline) swapGeneration(ctx context.Context, doc *core.Document, generation uint64, chunks []*core.Chunk, logger *slog.Logger) (*core.Document, error) {
	// Leftovers of an earlier failed run with the same generation.
	if _, err := p.chunks.DeleteGeneration(ctx, doc.OwnerID, doc.Id, generation); err != nil {
		return nil, fmt.Errorf("clearing generation %d: %w", generation, err)
	}

	if err := p.chunks.InsertChunks(ctx, chunks...); err != nil {
		p.discardGeneration(doc, generation, logger)
		return nil, fmt.Errorf("inserting chunks: %w", err)
	}

	indexed, err := p.chunks.MarkIndexed(ctx, doc.Id, generation, len(chunks))
	if err != nil {
		p.discardGeneration(doc, generation, logger)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", core.ErrDocumentNotFound, doc.Id)
		}
		return nil, fmt.Errorf("marking document indexed: %w", err)
	}

	// Stale generations are already invisible, so failures here only cost space.
	removed, err := p.chunks.DeleteChunks(ctx, doc.OwnerID, doc.Id, generation)
	if err != nil {
		logger.Warn("failed to delete stale chunks", "generation", generation, "err", err)
	} else if removed > 0 {
		logger.Debug("deleted stale chunks", "count", removed)
	}
	return indexed, nil
}

func (p *Pipeline) discardGeneration(doc *core.Document, generation uint64, logger *slog.Logger) {
	if _, err := p.chunks.DeleteGeneration(context.Background(), doc.OwnerID, doc.Id, generation); err != nil {
		logger.Warn("failed to discard partial generation", "generation", generation, "err", err)
	}
}

// invalidate drops cached searches the new chunk set may have changed.
func (p *Pipeline) invalidate(ctx context.Context, doc *core.Document, logger *slog.Logger) {
	for _, pattern := range cache.InvalidationPatterns(doc.OwnerID, doc.WorkspaceID) {
		n, err := p.cache.Invalidate(ctx, pattern)
		if err != nil {
			logger.Warn("failed to invalidate cached searches", "pattern", pattern, "err", err)
			continue
		}
		if n > 0 {
			logger.Debug("invalidated cached searches", "pattern", pattern, "count", n)
		}
	}
}

// currentSummary describes the visible chunk set of an indexed document.
func (p *Pipeline) currentSummary(ctx context.Context, doc *core.Document) *events.Summary {
	summary := &events.Summary{DocumentID: doc.Id, ChunkCount: doc.ChunkCount}
	chunks, err := p.chunks.GetChunks(ctx, doc.OwnerID, doc.Id, doc.Generation)
	if err != nil || len(chunks) == 0 {
		return summary
	}
	summary.Provider = chunks[0].Provider
	summary.Model = chunks[0].Model
	summary.Dimension = chunks[0].Dim
	return summary
}
