package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRepo(t *testing.T) *ReportRepository {
	t.Helper()

	repo, err := NewReportRepository(filepath.Join(t.TempDir(), "data", "reports.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.EnsureSchema())
	return repo
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	repo := newTestRepo(t)

	assert.NoError(t, repo.EnsureSchema())
	assert.NoError(t, repo.EnsureSchema())

	count, err := repo.CountReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestEnsureSchema_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.db")

	first, err := NewReportRepository(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.EnsureSchema())
	_, err = first.InsertReport(context.Background(), "kept", "flag")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewReportRepository(path, zap.NewNop())
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.EnsureSchema())

	count, err := second.CountReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestInsertReport(t *testing.T) {
	ctx := context.Background()

	t.Run("increments count by one and stores text verbatim", func(t *testing.T) {
		repo := newTestRepo(t)
		text := "  ünïcode ✓ with 'quotes' and \"double\"; DROP TABLE reports; --  "

		before, err := repo.CountReports(ctx)
		require.NoError(t, err)

		start := time.Now().UTC().Add(-time.Second)
		report, err := repo.InsertReport(ctx, text, "not_hate")
		require.NoError(t, err)

		after, err := repo.CountReports(ctx)
		require.NoError(t, err)
		assert.Equal(t, before+1, after)

		stored, err := repo.GetReport(ctx, report.ID)
		require.NoError(t, err)
		assert.Equal(t, text, stored.Text)
		assert.Equal(t, "not_hate", stored.ReportType)
		assert.WithinDuration(t, report.CreatedAt, stored.CreatedAt, time.Second)
		assert.False(t, stored.CreatedAt.Before(start.Truncate(time.Second)))
	})

	t.Run("ids increase monotonically", func(t *testing.T) {
		repo := newTestRepo(t)

		first, err := repo.InsertReport(ctx, "a", "flag")
		require.NoError(t, err)
		second, err := repo.InsertReport(ctx, "b", "flag")
		require.NoError(t, err)

		assert.Greater(t, second.ID, first.ID)
	})

	t.Run("empty strings are stored", func(t *testing.T) {
		repo := newTestRepo(t)

		report, err := repo.InsertReport(ctx, "", "")
		require.NoError(t, err)

		stored, err := repo.GetReport(ctx, report.ID)
		require.NoError(t, err)
		assert.Equal(t, "", stored.Text)
	})

	t.Run("concurrent writers are serialized", func(t *testing.T) {
		repo := newTestRepo(t)
		const writers = 25

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.InsertReport(ctx, fmt.Sprintf("text-%d", i), "flag")
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}

		count, err := repo.CountReports(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(writers), count)
	})

	t.Run("closed store reports ErrStore", func(t *testing.T) {
		repo := newTestRepo(t)
		require.NoError(t, repo.Close())

		_, err := repo.InsertReport(ctx, "x", "flag")
		assert.ErrorIs(t, err, ErrStore)
	})

	t.Run("cancelled context reports ErrStore", func(t *testing.T) {
		repo := newTestRepo(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := repo.InsertReport(cancelled, "x", "flag")
		assert.ErrorIs(t, err, ErrStore)

		count, err := repo.CountReports(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}

func TestGetReport_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetReport(context.Background(), 42)
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestSQLiteTime_Scan(t *testing.T) {
	var ts sqliteTime

	require.NoError(t, ts.Scan("2024-05-01 12:30:00"))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), ts.Time)

	require.NoError(t, ts.Scan([]byte("2024-05-01T12:30:00Z")))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), ts.Time)

	assert.Error(t, ts.Scan("yesterday"))
	assert.Error(t, ts.Scan(3.14))
}
