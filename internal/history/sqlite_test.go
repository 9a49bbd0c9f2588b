package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(started time.Time) Run {
	return Run{
		ID:             uuid.NewString(),
		StartedAt:      started,
		FinishedAt:     started.Add(90 * time.Second),
		Outcome:        "success",
		SourceHead:     "abc123",
		SiteHead:       "def456",
		ArtifactDigest: "d1g3st",
		ArtifactSize:   4096,
		DeploymentID:   "dep-1",
		DeploymentURL:  "https://docs.example.com",
	}
}

func TestRecordAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun(time.Now().UTC().Truncate(time.Second))
	require.NoError(t, s.Record(ctx, run))

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Outcome, got.Outcome)
	assert.Equal(t, run.SourceHead, got.SourceHead)
	assert.Equal(t, run.ArtifactSize, got.ArtifactSize)
	assert.True(t, run.StartedAt.Equal(got.StartedAt), "started %v got %v", run.StartedAt, got.StartedAt)
}

func TestGetMissingRun(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestLatestOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	var ids []string
	for i := 0; i < 5; i++ {
		r := sampleRun(base.Add(time.Duration(i) * time.Minute))
		ids = append(ids, r.ID)
		require.NoError(t, s.Record(ctx, r))
	}

	latest, err := s.Latest(ctx, 3)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, ids[4], latest[0].ID)
	assert.Equal(t, ids[3], latest[1].ID)
	assert.Equal(t, ids[2], latest[2].ID)
}

func TestLatestDefaultLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 12; i++ {
		require.NoError(t, s.Record(ctx, sampleRun(base.Add(time.Duration(i)*time.Second))))
	}
	latest, err := s.Latest(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, latest, 10)
}

func TestRangeFiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	early := sampleRun(base)
	mid := sampleRun(base.Add(time.Hour))
	late := sampleRun(base.Add(48 * time.Hour))
	for _, r := range []Run{late, early, mid} {
		require.NoError(t, s.Record(ctx, r))
	}

	got, err := s.Range(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, mid.ID, got[1].ID)
}

func TestPersistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	run := sampleRun(time.Now().UTC())
	require.NoError(t, s.Record(context.Background(), run))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()
	got, err := s2.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}
