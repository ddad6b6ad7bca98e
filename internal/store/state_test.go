package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbingest/internal/domain"
)

func statePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state.json")
}

func TestLoadStateAbsentFile(t *testing.T) {
	t.Parallel()

	s, err := LoadState(statePath(t))
	require.NoError(t, err)
	assert.Empty(t, s.Sources())
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()

	path := statePath(t)
	s, err := LoadState(path)
	require.NoError(t, err)

	s.UpdateAfterFetch("aws-blog", `"v1"`, "Mon, 04 Aug 2025 10:00:00 GMT", 5, nil)
	s.MarkSeen("aws-blog", "hash-1")
	require.NoError(t, s.Save())

	reloaded, err := LoadState(path)
	require.NoError(t, err)

	mark := reloaded.Watermark("aws-blog")
	assert.Equal(t, `"v1"`, mark.ETag)
	assert.Equal(t, "Mon, 04 Aug 2025 10:00:00 GMT", mark.LastModified)
	assert.True(t, reloaded.IsSeen("aws-blog", "hash-1"))
	assert.False(t, reloaded.IsSeen("aws-blog", "hash-2"))
	assert.False(t, reloaded.IsSeen("other", "hash-1"))
}

func TestLoadStateCorrupt(t *testing.T) {
	t.Parallel()

	path := statePath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadState(path)
	assert.ErrorIs(t, err, domain.ErrStateCorrupt)
}

func TestLoadStateMissingSources(t *testing.T) {
	t.Parallel()

	path := statePath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "1.0.0"}`), 0o644))

	_, err := LoadState(path)
	assert.ErrorIs(t, err, domain.ErrStateCorrupt)
}

func TestUpdateAfterFetchCounters(t *testing.T) {
	t.Parallel()

	s, err := LoadState(statePath(t))
	require.NoError(t, err)

	s.UpdateAfterFetch("src", "", "", 0, fmt.Errorf("boom"))
	s.UpdateAfterFetch("src", "", "", 0, fmt.Errorf("boom"))
	assert.Equal(t, 2, s.Source("src").ConsecutiveErrors)

	s.UpdateAfterFetch("src", "", "", 0, nil)
	assert.Equal(t, 0, s.Source("src").ConsecutiveErrors)
	assert.Equal(t, 1, s.Source("src").ConsecutiveEmpty)

	s.UpdateAfterFetch("src", "", "", 3, nil)
	assert.Equal(t, 0, s.Source("src").ConsecutiveEmpty)
	assert.NotEmpty(t, s.Source("src").LastFetchedAt)
}

func TestMarkSeenPrunesOldest(t *testing.T) {
	t.Parallel()

	s, err := LoadState(statePath(t))
	require.NoError(t, err)

	// Backdate existing hashes so the fresh one is never the prune victim.
	hashes := s.Source("src").ContentHashes
	for i := 0; i < maxHashesPerSource; i++ {
		hashes[fmt.Sprintf("old-%05d", i)] = fmt.Sprintf("2025-01-01T00:00:%02dZ", i%60)
	}

	s.MarkSeen("src", "fresh")
	assert.Len(t, hashes, maxHashesPerSource)
	assert.True(t, s.IsSeen("src", "fresh"))
}
