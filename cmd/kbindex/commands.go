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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/poiesic/kbindex"
	"github.com/poiesic/kbindex/cache"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/events"
	"github.com/poiesic/kbindex/ingestion"
	"github.com/poiesic/kbindex/reindex"
	"github.com/poiesic/kbindex/search"
	"github.com/poiesic/kbindex/storage"
	"github.com/urfave/cli/v2"
)

func addCommand(c *cli.Context, s *session) error {
	content, fileTitle, err := readContent(c)
	if err != nil {
		return err
	}
	title := c.String("title")
	if title == "" {
		title = fileTitle
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("document content is required: pass text or --file")
	}

	doc, err := s.db.DocumentRepository().AddDocument(c.Context, &core.Document{
		OwnerID:     c.String("owner"),
		WorkspaceID: c.String("workspace"),
		Title:       title,
		Content:     content,
	})
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Added document %d\n", doc.Id)

	if !c.Bool("ingest") {
		return nil
	}
	pipeline, err := s.db.NewIngestionPipeline(kbindex.PipelineOptions(s.cfg)...)
	if err != nil {
		return err
	}
	defer pipeline.Release()
	return ingestInline(c, pipeline, ingestion.Request{DocumentID: doc.Id, OwnerID: doc.OwnerID})
}

// readContent returns the document text given as arguments or through
// --file, and the file's base name as a fallback title.
func readContent(c *cli.Context) (content, fileTitle string, err error) {
	content = strings.Join(c.Args().Slice(), " ")
	if path := c.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return string(data), filepath.Base(path), nil
	}
	return content, "", nil
}

func updateCommand(c *cli.Context, s *session) error {
	ctx := c.Context
	id := core.ID(c.Uint64("id"))
	docs := s.db.DocumentRepository()

	current, err := docs.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && (current.OwnerID != c.String("owner") || current.IsDeleted())) {
		return fmt.Errorf("%w: %d", core.ErrDocumentNotFound, id)
	}
	if err != nil {
		return err
	}
	previous := *current

	content, fileTitle, err := readContent(c)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) != "" {
		current.Content = content
		if fileTitle != "" {
			current.Title = fileTitle
		}
	}
	if c.IsSet("title") {
		current.Title = c.String("title")
	}
	if c.IsSet("workspace") {
		current.WorkspaceID = c.String("workspace")
	}

	updated, err := docs.UpdateDocument(ctx, current)
	if err != nil {
		return fmt.Errorf("failed to update document %d: %w", id, err)
	}
	fmt.Fprintf(c.App.Writer, "Updated document %d\n", updated.Id)
	if previous.WorkspaceID != updated.WorkspaceID {
		invalidateSearches(ctx, s.db.Cache(), &previous)
	}

	// The stored chunks describe the old content, so the new content is
	// always indexed as a fresh generation.
	pipeline, err := s.db.NewIngestionPipeline(kbindex.PipelineOptions(s.cfg)...)
	if err != nil {
		return err
	}
	defer pipeline.Release()
	return ingestInline(c, pipeline, ingestion.Request{
		DocumentID:        updated.Id,
		OwnerID:           updated.OwnerID,
		PreferredProvider: c.String("provider"),
		PreferredModel:    c.String("model"),
		Overwrite:         true,
	})
}

func ingestCommand(c *cli.Context, s *session) error {
	req := ingestion.Request{
		DocumentID:        core.ID(c.Uint64("id")),
		OwnerID:           c.String("owner"),
		PreferredProvider: c.String("provider"),
		PreferredModel:    c.String("model"),
		Overwrite:         c.Bool("overwrite"),
		MaxChars:          c.Int("max-chars"),
	}
	if c.IsSet("overlap") {
		overlap := c.Int("overlap")
		if overlap < 0 {
			return fmt.Errorf("overlap cannot be negative")
		}
		req.Overlap = &overlap
	}

	pipeline, err := s.db.NewIngestionPipeline(kbindex.PipelineOptions(s.cfg)...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	if !c.Bool("background") {
		return ingestInline(c, pipeline, req)
	}
	return ingestBackground(c, s, pipeline, req)
}

func ingestInline(c *cli.Context, pipeline *ingestion.Pipeline, req ingestion.Request) error {
	doc, err := pipeline.Ingest(c.Context, req)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Indexed document %d: %d chunks (generation %d)\n", doc.Id, doc.ChunkCount, doc.Generation)
	return nil
}

func ingestBackground(c *cli.Context, s *session, pipeline *ingestion.Pipeline, req ingestion.Request) error {
	// Subscribe before submitting so no event of the task is missed.
	updates, cancel := s.db.Events().Subscribe("", 0)
	defer cancel()

	taskID, err := pipeline.Submit(req)
	if err != nil {
		return fmt.Errorf("failed to submit ingestion: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Task %s submitted\n", taskID)

	done := make(chan struct{})
	go func() {
		pipeline.Wait()
		close(done)
	}()

	tracker := events.NewProgressTracker(c.App.ErrWriter)
	final := awaitTask(taskID, updates, done, tracker, pipeline)
	s.db.Events().Forget(taskID)
	if final.State == events.StateFailure {
		return fmt.Errorf("ingestion failed: %s", final.Error)
	}
	if final.Result != nil {
		fmt.Fprintf(c.App.Writer, "Indexed document %d: %d chunks with %s/%s in %v\n",
			final.Result.DocumentID, final.Result.ChunkCount, final.Result.Provider, final.Result.Model,
			tracker.Elapsed().Round(time.Millisecond))
	}
	return nil
}

// awaitTask follows the events of taskID until its terminal event. Events
// are best-effort, so once the pool is idle the task's last recorded event
// stands in for a dropped terminal one.
func awaitTask(taskID string, updates <-chan events.Event, done <-chan struct{}, tracker *events.ProgressTracker, pipeline *ingestion.Pipeline) events.Event {
	observe := func(e events.Event) bool {
		if e.TaskID != taskID {
			return false
		}
		tracker.Observe(e)
		return e.Ready
	}

	for {
		select {
		case e := <-updates:
			if observe(e) {
				return e
			}
		case <-done:
			return settleTask(taskID, updates, observe, tracker, pipeline)
		}
	}
}

// settleTask drains buffered events once the pool is idle.
func settleTask(taskID string, updates <-chan events.Event, observe func(events.Event) bool, tracker *events.ProgressTracker, pipeline *ingestion.Pipeline) events.Event {
	for {
		select {
		case e := <-updates:
			if observe(e) {
				return e
			}
		default:
			if e, ok := pipeline.TaskStatus(taskID); ok && e.Ready {
				tracker.Observe(e)
				return e
			}
			return events.Event{TaskID: taskID, State: events.StateFailure, Ready: true, Error: "task ended without a result"}
		}
	}
}

func searchCommand(c *cli.Context, s *session) error {
	text := strings.Join(c.Args().Slice(), " ")

	searcher, err := s.db.NewSearcher(kbindex.SearchOptions(s.cfg)...)
	if err != nil {
		return err
	}
	hits, err := searcher.Search(c.Context, search.Query{
		Text:        text,
		OwnerID:     c.String("owner"),
		WorkspaceID: c.String("workspace"),
		Limit:       c.Int("limit"),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(hits))
	for i, hit := range hits {
		fmt.Fprintf(c.App.Writer, "%d: '%s' (%d/%d)[%0.3f] %s\n", i, hit.DocumentTitle, hit.DocumentId, hit.ChunkId, hit.Score, hit.Content)
	}
	return nil
}

func listCommand(c *cli.Context, s *session) error {
	docs, err := s.db.DocumentRepository().ListDocuments(c.Context, c.String("owner"), c.Bool("deleted"))
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tWORKSPACE\tCHUNKS\tGENERATION\tSTATUS")
	for _, doc := range docs {
		status := "live"
		if doc.IsDeleted() {
			status = "deleted"
		} else if doc.Generation == 0 {
			status = "pending"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n", doc.Id, doc.Title, doc.WorkspaceID, doc.ChunkCount, doc.Generation, status)
	}
	return w.Flush()
}

func deleteCommand(c *cli.Context, s *session) error {
	ctx := c.Context
	id := core.ID(c.Uint64("id"))
	docs := s.db.DocumentRepository()

	doc, err := docs.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && doc.OwnerID != c.String("owner")) {
		return fmt.Errorf("%w: %d", core.ErrDocumentNotFound, id)
	}
	if err != nil {
		return err
	}

	if c.Bool("soft") {
		err = docs.SoftDeleteDocument(ctx, id)
	} else {
		err = docs.DeleteDocument(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	invalidateSearches(ctx, s.db.Cache(), doc)

	fmt.Fprintf(c.App.Writer, "Deleted document %d\n", id)
	return nil
}

// invalidateSearches drops cached results that may still list doc.
func invalidateSearches(ctx context.Context, c cache.Cache, doc *core.Document) {
	for _, pattern := range cache.InvalidationPatterns(doc.OwnerID, doc.WorkspaceID) {
		if _, err := c.Invalidate(ctx, pattern); err != nil {
			slog.Warn("failed to invalidate cached searches", "pattern", pattern, "err", err)
		}
	}
}

func reindexCommand(c *cli.Context, s *session) error {
	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	pipeline, err := s.db.NewIngestionPipeline(kbindex.PipelineOptions(s.cfg)...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	reindexer := reindex.NewReindexer(s.db.DocumentRepository(), pipeline, &reindex.Config{
		BatchSize:         batchSize,
		PreferredProvider: c.String("provider"),
		PreferredModel:    c.String("model"),
	}, c.App.ErrWriter)

	report, err := reindexer.Run(c.Context, c.String("owner"))
	if report != nil {
		fmt.Fprintf(c.App.Writer, "Indexed %d, skipped %d, failed %d of %d documents\n",
			report.Indexed, report.Skipped, len(report.Failed), report.Total)
	}
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}
