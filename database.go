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

package kbindex

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/ai/openai"
	"github.com/poiesic/kbindex/cache"
	"github.com/poiesic/kbindex/chunker"
	"github.com/poiesic/kbindex/config"
	"github.com/poiesic/kbindex/events"
	"github.com/poiesic/kbindex/ingestion"
	"github.com/poiesic/kbindex/search"
	"github.com/poiesic/kbindex/storage"
	"github.com/poiesic/kbindex/storage/badger"
)

// Database wires the document store, the provider registry, the search
// cache and the progress broker together.
type Database struct {
	backend   *badger.Backend
	docRepo   storage.DocumentRepository
	chunkRepo storage.ChunkRepository
	registry  *ai.Registry
	cache     cache.Cache
	broker    *events.Broker
	logger    *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	inMemory     bool
	providers    []ai.Provider
	aiConfig     *ai.Config
	cacheBackend string
	logger       *slog.Logger
}

// WithInMemory keeps all data in memory. The path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithProviders registers embedding providers in the given order.
// The database closes them on Close.
func WithProviders(providers ...ai.Provider) DatabaseOption {
	return func(o *databaseOptions) {
		o.providers = append(o.providers, providers...)
	}
}

// WithAIConfig configures the OpenAI-compatible provider created when no
// providers are given.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithCacheBackend selects the search cache: cache.BackendMemory (default),
// cache.BackendBadger or cache.BackendNone.
func WithCacheBackend(name string) DatabaseOption {
	return func(o *databaseOptions) {
		o.cacheBackend = name
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens or creates a database at filePath.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig:     ai.DefaultConfig(), // Default if not provided
		cacheBackend: cache.BackendMemory,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// Open backend
	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	docRepo, err := badger.NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	chunkRepo, err := badger.NewChunkRepository(backend)
	if err != nil {
		docRepo.Close()
		backend.Close()
		return nil, err
	}

	searchCache, err := cache.New(options.cacheBackend, backend)
	if err != nil {
		chunkRepo.Close()
		docRepo.Close()
		backend.Close()
		return nil, err
	}

	providers := options.providers
	if len(providers) == 0 {
		provider, err := openai.NewProvider(options.aiConfig)
		if err != nil {
			searchCache.Close()
			chunkRepo.Close()
			docRepo.Close()
			backend.Close()
			return nil, err
		}
		providers = []ai.Provider{provider}
	}
	registry, err := ai.NewRegistry(providers...)
	if err != nil {
		searchCache.Close()
		chunkRepo.Close()
		docRepo.Close()
		backend.Close()
		return nil, err
	}

	return &Database{
		backend:   backend,
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		registry:  registry,
		cache:     searchCache,
		broker:    events.NewBroker(events.WithLogger(options.logger)),
		logger:    options.logger.With("component", "database"),
	}, nil
}

// NewDatabaseFromConfig opens the database described by cfg, building its
// providers and cache. Extra options are applied after the configured ones.
func NewDatabaseFromConfig(cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	providers, err := cfg.BuildProviders()
	if err != nil {
		return nil, err
	}
	base := []DatabaseOption{
		WithProviders(providers...),
		WithCacheBackend(cfg.Cache.Backend),
	}
	db, err := NewDatabase(cfg.DataDir, append(base, opts...)...)
	if err != nil {
		for _, p := range providers {
			p.Close()
		}
		return nil, fmt.Errorf("opening %s: %w", cfg.DataDir, err)
	}
	return db, nil
}

// Close releases the providers, the cache and the storage.
func (db *Database) Close() error {
	var errs []error

	// Close AI providers first
	if err := db.registry.Close(); err != nil {
		db.logger.Error("error closing providers", "err", err)
		errs = append(errs, err)
	}
	if err := db.cache.Close(); err != nil {
		db.logger.Error("error closing search cache", "err", err)
		errs = append(errs, err)
	}

	// Close repositories
	if err := db.chunkRepo.Close(); err != nil {
		db.logger.Error("error closing chunk repository", "err", err)
		errs = append(errs, err)
	}
	if err := db.docRepo.Close(); err != nil {
		db.logger.Error("error closing document repository", "err", err)
		errs = append(errs, err)
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.docRepo
}

func (db *Database) ChunkRepository() storage.ChunkRepository {
	return db.chunkRepo
}

func (db *Database) Registry() *ai.Registry {
	return db.registry
}

func (db *Database) Cache() cache.Cache {
	return db.cache
}

// Events returns the broker background ingestions publish progress to.
func (db *Database) Events() *events.Broker {
	return db.broker
}

// NewIngestionPipeline creates a pipeline that invalidates the database's
// search cache and publishes to its broker. opts may override both.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	base := []ingestion.Option{
		ingestion.WithCache(db.cache),
		ingestion.WithPublisher(db.broker),
		ingestion.WithLogger(db.logger),
	}
	return ingestion.NewPipeline(db.docRepo, db.chunkRepo, db.registry, append(base, opts...)...)
}

// NewSearcher creates a searcher reading through the database's cache.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{
		search.WithCache(db.cache),
		search.WithLogger(db.logger),
	}
	return search.NewSearcher(db.chunkRepo, db.registry, append(base, opts...)...)
}

// PipelineOptions translates the tuning section of cfg into pipeline options.
func PipelineOptions(cfg *config.Config) []ingestion.Option {
	var opts []ingestion.Option
	if cfg.Ingestion.Workers > 0 {
		opts = append(opts, ingestion.WithPoolSize(cfg.Ingestion.Workers))
	}
	if cfg.Ingestion.EmbedConcurrency > 0 {
		opts = append(opts, ingestion.WithEmbedConcurrency(cfg.Ingestion.EmbedConcurrency))
	}
	if cfg.Chunker.MaxChars > 0 || cfg.Chunker.Overlap != nil {
		var chunkOpts []chunker.Option
		if cfg.Chunker.MaxChars > 0 {
			chunkOpts = append(chunkOpts, chunker.WithMaxChars(cfg.Chunker.MaxChars))
		}
		if cfg.Chunker.Overlap != nil {
			chunkOpts = append(chunkOpts, chunker.WithOverlap(*cfg.Chunker.Overlap))
		}
		opts = append(opts, ingestion.WithChunker(chunker.New(chunkOpts...)))
	}
	return opts
}

// SearchOptions translates the tuning section of cfg into searcher options.
func SearchOptions(cfg *config.Config) []search.Option {
	opts := []search.Option{search.WithCacheTTL(cfg.Cache.TTL)}
	if cfg.Search.MaxCandidates > 0 {
		opts = append(opts, search.WithMaxCandidates(cfg.Search.MaxCandidates))
	}
	return opts
}
