package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/kbindex"
	"github.com/poiesic/kbindex/ai"
	"github.com/poiesic/kbindex/ai/mock"
	"github.com/poiesic/kbindex/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	dataDir string
	cfgPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{
		dataDir: filepath.Join(dir, "data"),
		cfgPath: filepath.Join(dir, "kbindex.yaml"),
	}
}

// run executes one CLI invocation against a mock provider and returns stdout.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	open := func(cfg *config.Config) (*kbindex.Database, error) {
		return kbindex.NewDatabase(cfg.DataDir,
			kbindex.WithProviders(mock.NewMockProvider(ai.PrimaryProvider)),
			kbindex.WithCacheBackend(cfg.Cache.Backend))
	}
	app := newApp(open)
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard

	full := append([]string{"kbindex", "--config", h.cfgPath, "--env-file", filepath.Join(h.dataDir, "none.env"), "--data-dir", h.dataDir}, args...)
	err := app.Run(full)
	return out.String(), err
}

func (h *harness) add(t *testing.T, args ...string) uint64 {
	t.Helper()
	out, err := h.run(t, append([]string{"add"}, args...)...)
	require.NoError(t, err)
	var id uint64
	_, err = fmt.Sscanf(out, "Added document %d", &id)
	require.NoError(t, err)
	return id
}

func TestAddAndList(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, "--owner", "alice", "--title", "Runbook", "Restart the service with systemctl.")

	out, err := h.run(t, "list", "--owner", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Runbook")
	assert.Contains(t, out, fmt.Sprint(id))
	assert.Contains(t, out, "pending")

	out, err = h.run(t, "list", "--owner", "bob")
	require.NoError(t, err)
	assert.NotContains(t, out, "Runbook")
}

func TestAddFromFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("Notes from a file."), 0o644))

	h.add(t, "--owner", "alice", "--file", path)

	out, err := h.run(t, "list", "--owner", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "notes.md")
}

func TestAddRequiresContent(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "add", "--owner", "alice")
	assert.Error(t, err)
}

func TestIngestAndSearch(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, "--owner", "alice", "--title", "Runbook", "Restart the service with systemctl.")

	out, err := h.run(t, "ingest", "--owner", "alice", "--id", fmt.Sprint(id))
	require.NoError(t, err)
	assert.Contains(t, out, "1 chunks (generation 1)")

	out, err = h.run(t, "search", "--owner", "alice", "Restart the service with systemctl.")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 hits")
	assert.Contains(t, out, "'Runbook'")

	out, err = h.run(t, "search", "--owner", "bob", "Restart the service with systemctl.")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 0 hits")
}

func TestIngestBackground(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, "--owner", "alice", strings.Repeat("Background ingestion reports progress. ", 30))

	out, err := h.run(t, "ingest", "--owner", "alice", "--id", fmt.Sprint(id), "--background", "--max-chars", "200")
	require.NoError(t, err)
	assert.Contains(t, out, "submitted")
	assert.Contains(t, out, "Indexed document")
	assert.Contains(t, out, ai.PrimaryProvider)
}

func TestUpdateReindexesContent(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, "--owner", "alice", "--title", "Runbook", "--ingest", "Restart the service with systemctl.")

	out, err := h.run(t, "update", "--owner", "alice", "--id", fmt.Sprint(id), "--title", "Runbook v2", "Reload the service with a signal.")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated document")
	assert.Contains(t, out, "1 chunks (generation 2)")

	out, err = h.run(t, "search", "--owner", "alice", "Reload the service with a signal.")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 hits")
	assert.Contains(t, out, "'Runbook v2'")
	assert.Contains(t, out, "Reload the service with a signal.")
	assert.NotContains(t, out, "systemctl")
}

func TestUpdateRejectsOtherOwner(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, "--owner", "alice", "Private runbook.")

	_, err := h.run(t, "update", "--owner", "bob", "--id", fmt.Sprint(id), "Stolen.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document not found")

	out, err := h.run(t, "list", "--owner", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
}

func TestIngestOverlapZero(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, "--owner", "alice", strings.Repeat("x", 400))

	out, err := h.run(t, "ingest", "--owner", "alice", "--id", fmt.Sprint(id), "--max-chars", "200")
	require.NoError(t, err)
	assert.Contains(t, out, "4 chunks (generation 1)")

	out, err = h.run(t, "ingest", "--owner", "alice", "--id", fmt.Sprint(id), "--max-chars", "200", "--overlap", "0", "--overwrite")
	require.NoError(t, err)
	assert.Contains(t, out, "2 chunks (generation 2)")

	_, err = h.run(t, "ingest", "--owner", "alice", "--id", fmt.Sprint(id), "--overlap", "-1", "--overwrite")
	assert.Error(t, err)
}

func TestIngestMissingDocument(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "ingest", "--owner", "alice", "--id", "999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document not found")

	_, err = h.run(t, "ingest", "--owner", "alice", "--id", "999", "--background")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingestion failed")
}

func TestAddWithIngestThenSoftDelete(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, "--owner", "alice", "--ingest", "Soon hidden from search.")

	out, err := h.run(t, "search", "--owner", "alice", "Soon hidden from search.")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 hits")

	_, err = h.run(t, "delete", "--owner", "mallory", "--id", fmt.Sprint(id), "--soft")
	assert.Error(t, err)

	out, err = h.run(t, "delete", "--owner", "alice", "--id", fmt.Sprint(id), "--soft")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted document")

	out, err = h.run(t, "search", "--owner", "alice", "Soon hidden from search.")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 0 hits")

	out, err = h.run(t, "list", "--owner", "alice", "--deleted")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")
}

func TestHardDelete(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, "--owner", "alice", "--ingest", "Gone for good.")

	_, err := h.run(t, "delete", "--owner", "alice", "--id", fmt.Sprint(id))
	require.NoError(t, err)

	out, err := h.run(t, "list", "--owner", "alice", "--deleted")
	require.NoError(t, err)
	assert.NotContains(t, out, fmt.Sprint(id)+" ")
}

func TestReindex(t *testing.T) {
	h := newHarness(t)
	h.add(t, "--owner", "alice", "--ingest", "First document.")
	h.add(t, "--owner", "alice", "Second document.")

	out, err := h.run(t, "reindex", "--owner", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2, skipped 0, failed 0 of 2 documents")

	_, err = h.run(t, "reindex", "--owner", "alice", "--batch-size", "0")
	assert.Error(t, err)
}

func TestRequiredOwner(t *testing.T) {
	h := newHarness(t)
	t.Setenv("KBINDEX_OWNER", "unused")
	os.Unsetenv("KBINDEX_OWNER")
	_, err := h.run(t, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")
}

func TestInvalidLogLevel(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "--log-level", "loud", "list", "--owner", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestConfigFileIsRead(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.cfgPath, []byte("cache:\n  backend: nope\n"), 0o644))

	_, err := h.run(t, "list", "--owner", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
