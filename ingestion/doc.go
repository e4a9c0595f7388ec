// Package ingestion turns stored documents into searchable chunk sets.
//
// A run loads the document, splits it with the chunker, embeds every chunk
// through a provider picked by the ai.Registry and stores the chunks as a
// new generation, which becomes visible in one step once every embedding
// succeeded. Runs against the same document serialize; different documents
// are processed concurrently.
//
// Ingest runs inline and returns the indexed document. Submit queues the run
// on a worker pool and reports its progress as events.Event values.
package ingestion
