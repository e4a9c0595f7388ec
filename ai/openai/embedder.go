package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/kbindex/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// newEmbedder builds a langchaingo embedder bound to one model.
func newEmbedder(config *ai.Config, model string) (embeddings.Embedder, error) {
	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	token := config.APIKey
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, err
	}

	return embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
}

// embedText generates a single embedding and rejects empty results.
func embedText(ctx context.Context, logger *slog.Logger, embedder embeddings.Embedder, text string) ([]float32, error) {
	logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		logger.Error("failed to generate embedding", "err", err)
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		logger.Warn("embedder returned empty result")
		return nil, fmt.Errorf("embedder returned no vector")
	}

	return vectors[0], nil
}
