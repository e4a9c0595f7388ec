// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package ingestion

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/cache"
	"github.com/poiesic/kbindex/chunker"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/events"
	"github.com/poiesic/kbindex/storage"
)

// DefaultEmbedConcurrency is the number of concurrent embedding calls per run.
const DefaultEmbedConcurrency = 4

// progressInterval is how many embedded chunks separate EMBEDDING events.
const progressInterval = 3

// Request identifies a document to index and how.
type Request struct {
	DocumentID        core.ID
	OwnerID           string
	PreferredProvider string // Empty applies the registry's default order
	PreferredModel    string // Empty uses the provider's default model
	Overwrite         bool   // Replace an existing chunk set

	// MaxChars overrides the pipeline's chunk size when positive.
	MaxChars int
	// Overlap overrides the pipeline's chunk overlap when set, including to 0.
	Overlap *int
}

// Pipeline orchestrates the ingestion of documents.
// It chunks, embeds and stores documents either inline or on a worker pool.
type Pipeline struct {
	documents        storage.DocumentRepository
	chunks           storage.ChunkRepository
	registry         *ai.Registry
	cache            cache.Cache
	publisher        events.Publisher
	chunker          *chunker.Chunker
	pool             *ants.Pool
	embedConcurrency int
	locks            *documentLocks
	inflight         sync.WaitGroup
	logger           *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for background runs.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithEmbedConcurrency bounds the concurrent embedding calls of one run.
// Default is DefaultEmbedConcurrency.
func WithEmbedConcurrency(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.embedConcurrency = n
		return nil
	}
}

// WithPublisher sets where background runs report progress.
// Default discards events.
func WithPublisher(publisher events.Publisher) Option {
	return func(p *Pipeline) error {
		if publisher == nil {
			publisher = events.Discard
		}
		p.publisher = publisher
		return nil
	}
}

// WithCache sets the search cache invalidated after successful runs.
// Default is a cache that stores nothing.
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) error {
		if c == nil {
			c = cache.Nop{}
		}
		p.cache = c
		return nil
	}
}

// WithChunker sets the default chunking parameters.
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		if c == nil {
			c = chunker.New()
		}
		p.chunker = c
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	registry *ai.Registry,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		documents:        documents,
		chunks:           chunks,
		registry:         registry,
		cache:            cache.Nop{},
		publisher:        events.Discard,
		chunker:          chunker.New(),
		pool:             pool,
		embedConcurrency: DefaultEmbedConcurrency,
		locks:            newDocumentLocks(),
		logger:           slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// Ingest runs an ingestion inline and returns the indexed document.
// No progress events are published.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*core.Document, error) {
	return p.run(ctx, req, func(events.Event) {})
}

// Submit queues an ingestion on the worker pool and returns its task id.
// The run uses its own background context and cannot be cancelled; its
// progress is published to the pipeline's publisher under the task id.
func (p *Pipeline) Submit(req Request) (string, error) {
	taskID := uuid.NewString()
	emit := func(e events.Event) {
		e.TaskID = taskID
		p.publisher.Publish(e)
	}

	p.inflight.Add(1)
	err := p.pool.Submit(func() {
		defer p.inflight.Done()
		if _, err := p.run(context.Background(), req, emit); err != nil {
			p.logger.Error("background ingestion failed", "task", taskID, "document", req.DocumentID, "err", err)
		}
	})
	if err != nil {
		p.inflight.Done()
		return "", err
	}
	return taskID, nil
}

// TaskStatus returns the latest event of a background task when the
// publisher remembers events (an *events.Broker does).
func (p *Pipeline) TaskStatus(taskID string) (events.Event, bool) {
	if recorder, ok := p.publisher.(interface {
		Last(taskID string) (events.Event, bool)
	}); ok {
		return recorder.Last(taskID)
	}
	return events.Event{}, false
}

// Wait blocks until every submitted run has finished.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
