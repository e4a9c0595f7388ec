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

package reindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/ingestion"
	"github.com/poiesic/kbindex/storage"
)

// Config holds configuration for a reindex run.
type Config struct {
	// BatchSize is the number of documents handled per batch
	BatchSize int

	// PreferredProvider and PreferredModel select the new embedding space.
	// Empty values apply the registry defaults.
	PreferredProvider string
	PreferredModel    string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize: DefaultBatchSize,
	}
}

// Ingester runs one ingestion inline. *ingestion.Pipeline implements it.
type Ingester interface {
	Ingest(ctx context.Context, req ingestion.Request) (*core.Document, error)
}

// Report summarizes a reindex run.
type Report struct {
	Total   int
	Indexed int
	Skipped int // documents without content
	Failed  map[core.ID]error
	Elapsed time.Duration
}

// Reindexer re-ingests the documents of an owner.
type Reindexer struct {
	ingester Ingester
	iterator *DocumentIterator
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(docs storage.DocumentRepository, ingester Ingester, config *Config, progress io.Writer) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		ingester: ingester,
		iterator: NewDocumentIterator(docs, config.BatchSize),
		config:   config,
		progress: progress,
		logger:   slog.Default().With("component", "reindexer"),
	}
}

// Run reindexes every live document of ownerID. The returned report is
// complete even when the error is ErrIncomplete.
func (r *Reindexer) Run(ctx context.Context, ownerID string) (*Report, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}

	start := time.Now()
	report := &Report{Failed: make(map[core.ID]error)}

	err := r.iterator.ForEach(ctx, ownerID, func(docs []*core.Document) error {
		for _, doc := range docs {
			report.Total++
			_, err := r.ingester.Ingest(ctx, ingestion.Request{
				DocumentID:        doc.Id,
				OwnerID:           ownerID,
				PreferredProvider: r.config.PreferredProvider,
				PreferredModel:    r.config.PreferredModel,
				Overwrite:         true,
			})
			switch {
			case err == nil:
				report.Indexed++
			case errors.Is(err, core.ErrEmptyContent):
				report.Skipped++
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				r.logger.Warn("failed to reindex document", "document", doc.Id, "err", err)
				report.Failed[doc.Id] = err
			}
		}

		fmt.Fprintf(r.progress, "Reindexed %d documents (%d skipped, %d failed)\n",
			report.Indexed, report.Skipped, len(report.Failed))
		return nil
	})
	report.Elapsed = time.Since(start)
	if err != nil {
		return report, err
	}

	if report.Total == 0 {
		fmt.Fprintf(r.progress, "No documents found for %s\n", ownerID)
		return report, nil
	}

	fmt.Fprintf(r.progress, "Reindex complete. Processed %d documents in %v\n",
		report.Total, report.Elapsed.Round(time.Millisecond))
	if len(report.Failed) > 0 {
		return report, fmt.Errorf("%w: %d of %d documents failed", ErrIncomplete, len(report.Failed), report.Total)
	}
	return report, nil
}
