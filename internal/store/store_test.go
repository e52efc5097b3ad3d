package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.Equal(t, "", s.Path())
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestRecordAndListRuns(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := s.RecordRun(ctx, Run{
		Sample:           "lm5515",
		Build:            "GRCh38",
		VariantFile:      "/data/lm5515.vcf",
		Status:           StatusSuccess,
		Score:            sql.NullFloat64{Float64: 0.1234, Valid: true},
		NumberOfSNPs:     16,
		NumberOfSNPsUsed: 8,
		StartedAt:        base,
		Duration:         1500 * time.Millisecond,
		Panel:            FileFingerprint{Path: "/ref/panel.txt", Size: 42, ModTime: base.Add(-time.Hour)},
	})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "generated run ID is a UUID")

	_, err = s.RecordRun(ctx, Run{
		ID:          "fixed-id",
		Sample:      "lm5515",
		Build:       "GRCh38",
		Status:      StatusError,
		Stage:       "filter",
		Error:       "filter stage failed: exit status 255",
		StartedAt:   base.Add(time.Minute),
		VariantFile: "/data/lm5515.vcf",
	})
	require.NoError(t, err)

	_, err = s.RecordRun(ctx, Run{Sample: "other", Status: StatusSuccess, StartedAt: base})
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, "lm5515", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "fixed-id", runs[0].ID, "newest first")
	assert.Equal(t, StatusError, runs[0].Status)
	assert.Equal(t, "filter", runs[0].Stage)
	assert.False(t, runs[0].Score.Valid)

	ok := runs[1]
	assert.Equal(t, id, ok.ID)
	assert.True(t, ok.Score.Valid)
	assert.InDelta(t, 0.1234, ok.Score.Float64, 1e-12)
	assert.Equal(t, 8, ok.NumberOfSNPsUsed)
	assert.Equal(t, 1500*time.Millisecond, ok.Duration)
	assert.Equal(t, int64(42), ok.Panel.Size)
	assert.True(t, ok.Panel.ModTime.Equal(base.Add(-time.Hour)))

	all, err := s.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGetRun(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	id, err := s.RecordRun(ctx, Run{Sample: "s1", Status: StatusSuccess, StartedAt: time.Now()})
	require.NoError(t, err)

	r, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "s1", r.Sample)

	missing, err := s.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordRun_DuplicateID(t *testing.T) {
	s := openInMemory(t)
	ctx := context.Background()

	_, err := s.RecordRun(ctx, Run{ID: "dup", Sample: "s1", StartedAt: time.Now()})
	require.NoError(t, err)
	_, err = s.RecordRun(ctx, Run{ID: "dup", Sample: "s1", StartedAt: time.Now()})
	assert.Error(t, err)
}

func TestStatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.txt")
	require.NoError(t, os.WriteFile(path, []byte("rsID\n"), 0644))

	fp, err := StatFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), fp.Size)
	assert.True(t, fp.Matches(fp))
	assert.Contains(t, fp.String(), "5 bytes")

	_, err = StatFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
