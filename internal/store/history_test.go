package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbingest/internal/domain"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func sampleRun(id string, started time.Time) domain.RunRecord {
	return domain.RunRecord{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Mode:       "full",
		Sources: []domain.SourceOutcome{
			{SourceID: "aws-blog", Fetched: 10, Novel: 3, Staged: 2},
		},
	}
}

func TestHistoryRecordAndList(t *testing.T) {
	t.Parallel()

	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, h.RecordRun(ctx, sampleRun("run-1", base)))
	require.NoError(t, h.RecordRun(ctx, sampleRun("run-2", base.Add(time.Hour))))
	require.NoError(t, h.RecordRun(ctx, sampleRun("run-3", base.Add(2*time.Hour))))

	runs, err := h.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)
	assert.Equal(t, 10, runs[0].Sources[0].Fetched)
}

func TestHistoryLastRun(t *testing.T) {
	t.Parallel()

	h := openTestHistory(t)
	ctx := context.Background()

	last, err := h.LastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, h.RecordRun(ctx, sampleRun("run-1", time.Now().UTC())))
	last, err = h.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-1", last.ID)
}

func TestHistoryRejectionAudit(t *testing.T) {
	t.Parallel()

	h := openTestHistory(t)
	ctx := context.Background()

	candidate := domain.Candidate{
		SourceID: "aws-blog",
		Recommendation: map[string]any{
			"id":           "cand-1",
			"service_name": "s3",
		},
	}
	require.NoError(t, h.RecordRejection(ctx, candidate, "low quality"))

	rejected, err := h.WasRejected(ctx, "cand-1")
	require.NoError(t, err)
	assert.True(t, rejected)

	rejected, err = h.WasRejected(ctx, "other")
	require.NoError(t, err)
	assert.False(t, rejected)
}

func TestHistoryDuplicateRunIDFails(t *testing.T) {
	t.Parallel()

	h := openTestHistory(t)
	ctx := context.Background()
	run := sampleRun("run-1", time.Now().UTC())

	require.NoError(t, h.RecordRun(ctx, run))
	assert.Error(t, h.RecordRun(ctx, run))
}
