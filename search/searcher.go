package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/cache"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/storage"
)

const (
	// MaxLimit caps the number of hits a search returns.
	MaxLimit = 20

	// DefaultCacheTTL is how long search results stay cached.
	DefaultCacheTTL = 60 * time.Second

	// DefaultMaxCandidates bounds the nearest chunks considered per search.
	DefaultMaxCandidates = 200
)

// Query describes one search.
type Query struct {
	Text        string
	OwnerID     string
	WorkspaceID string // Empty searches every workspace of the owner
	Limit       int    // Clamped to [1, MaxLimit]

	// MaxCandidates overrides the searcher's candidate bound when positive.
	MaxCandidates int
}

// Searcher provides semantic search over indexed chunks.
type Searcher struct {
	chunks        storage.ChunkRepository
	registry      *ai.Registry
	cache         cache.Cache
	cacheTTL      time.Duration
	maxCandidates int
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCache sets the result cache.
// Default is a cache that stores nothing.
func WithCache(c cache.Cache) Option {
	return func(s *Searcher) error {
		if c == nil {
			c = cache.Nop{}
		}
		s.cache = c
		return nil
	}
}

// WithCacheTTL sets how long results stay cached. A non-positive ttl
// disables caching of new results.
// Default is DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Searcher) error {
		s.cacheTTL = ttl
		return nil
	}
}

// WithMaxCandidates sets how many nearest visible chunks the store keeps
// while scanning.
// Default is DefaultMaxCandidates.
func WithMaxCandidates(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return fmt.Errorf("max candidates must be positive, got %d", n)
		}
		s.maxCandidates = n
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	chunks storage.ChunkRepository,
	registry *ai.Registry,
	opts ...Option,
) (*Searcher, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	s := &Searcher{
		chunks:        chunks,
		registry:      registry,
		cache:         cache.Nop{},
		cacheTTL:      DefaultCacheTTL,
		maxCandidates: DefaultMaxCandidates,
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search returns the chunks most similar to the query, best first.
func (s *Searcher) Search(ctx context.Context, query Query) ([]core.SearchHit, error) {
	return s.SearchWithMonitor(ctx, query, nil)
}

// SearchWithMonitor searches like Search and reports each stage to monitor.
//
// Providers are tried in the registry's order. A provider that fails to
// embed the query is skipped; the first provider whose vector space yields
// hits answers the query. An empty hit list is a successful result and is
// cached like any other.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query Query, monitor SearchMonitor) ([]core.SearchHit, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, core.ErrEmptyQuery
	}
	monitor.Start(query)

	limit := min(max(query.Limit, 1), MaxLimit)
	key := cache.SearchKey(query.OwnerID, query.WorkspaceID, limit, text)
	if hits, ok := s.cached(ctx, key); ok {
		monitor.CacheHit(key, hits)
		monitor.Finish(hits)
		return hits, nil
	}

	candidates := s.registry.Candidates("")
	if len(candidates) == 0 {
		return nil, core.ErrNoEmbeddingProvider
	}

	maxCandidates := s.maxCandidates
	if query.MaxCandidates > 0 {
		maxCandidates = query.MaxCandidates
	}

	var (
		hits     []core.SearchHit
		embedded bool
		failures []error
	)
	for _, provider := range candidates {
		vector, err := provider.Embed(ctx, text, "")
		if err == nil && len(vector) == 0 {
			err = errors.New("empty vector")
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Warn("provider failed to embed query", "provider", provider.Name(), "err", err)
			monitor.ProviderFailed(provider.Name(), err)
			failures = append(failures, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		embedded = true

		matches, err := s.chunks.FindSimilarChunks(ctx, storage.ChunkQuery{
			OwnerID:       query.OwnerID,
			WorkspaceID:   query.WorkspaceID,
			Vector:        vector,
			Limit:         limit,
			MaxCandidates: maxCandidates,
		})
		if err != nil {
			s.logger.Error("error querying for similar chunks", "provider", provider.Name(), "err", err)
			return nil, err
		}
		monitor.AfterSimilaritySearch(provider.Name(), matches)

		if len(matches) > 0 {
			hits = toHits(matches)
			break
		}
	}

	if !embedded {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingFailed, errors.Join(failures...))
	}
	if hits == nil {
		hits = []core.SearchHit{}
	}

	s.store(ctx, key, hits)
	monitor.Finish(hits)
	return hits, nil
}

func (s *Searcher) cached(ctx context.Context, key string) ([]core.SearchHit, bool) {
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	hits, err := core.UnmarshalHits(payload)
	if err != nil {
		s.logger.Warn("discarding undecodable cache entry", "key", key, "err", err)
		return nil, false
	}
	return hits, true
}

func (s *Searcher) store(ctx context.Context, key string, hits []core.SearchHit) {
	if s.cacheTTL <= 0 {
		return
	}
	payload, err := core.MarshalHits(hits)
	if err != nil {
		s.logger.Warn("failed to encode search results", "err", err)
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
		s.logger.Warn("cache write failed", "key", key, "err", err)
	}
}

func toHits(matches []*core.ChunkMatch) []core.SearchHit {
	hits := make([]core.SearchHit, 0, len(matches))
	for _, match := range matches {
		hits = append(hits, core.SearchHit{
			ChunkId:       match.Chunk.Id,
			DocumentId:    match.Chunk.DocumentId,
			DocumentTitle: match.DocumentTitle,
			Score:         score(match.Distance),
			Content:       match.Chunk.Content,
		})
	}
	return hits
}

// score maps a cosine distance to a similarity in [0, 1].
func score(distance float32) float32 {
	return min(max(1-distance, 0), 1)
}
