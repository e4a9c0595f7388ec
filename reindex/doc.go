// Package reindex re-ingests every document of an owner, typically after
// switching embedding provider or model.
//
// Documents are processed in batches with overwrite semantics, so each one
// keeps its previous chunk set visible until the new one is complete.
// Documents without content are skipped; other failures are counted and
// reported without stopping the run.
package reindex
