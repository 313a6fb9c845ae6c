package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/bobby-s-dev/weather-dashboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "history.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_RecordAndList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	ready := models.FetchRecord{
		ID:          "f1",
		Location:    "San Francisco",
		Outcome:     models.OutcomeReady,
		Temperature: "68",
		StartedAt:   started,
		CompletedAt: started.Add(250 * time.Millisecond),
		Duration:    250 * time.Millisecond,
	}
	failed := models.FetchRecord{
		ID:          "f2",
		Location:    "Atlantis",
		Outcome:     models.OutcomeErrored,
		ErrorKind:   "status",
		Message:     "City not found",
		StartedAt:   started.Add(time.Minute),
		CompletedAt: started.Add(time.Minute + 100*time.Millisecond),
		Duration:    100 * time.Millisecond,
	}
	require.NoError(t, s.RecordFetch(ctx, ready))
	require.NoError(t, s.RecordFetch(ctx, failed))

	list, err := s.ListFetches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, failed, list[0], "newest first")
	assert.Equal(t, ready, list[1])
}

func TestSQLiteStore_DuplicateID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	record := models.FetchRecord{ID: "dup", Location: "San Francisco", Outcome: models.OutcomeReady}

	require.NoError(t, s.RecordFetch(ctx, record))
	assert.Error(t, s.RecordFetch(ctx, record))
}

func TestSQLiteStore_ListLimit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordFetch(ctx, models.FetchRecord{
			ID:          fmt.Sprintf("f%d", i),
			Location:    "San Francisco",
			Outcome:     models.OutcomeReady,
			StartedAt:   base.Add(time.Duration(i) * time.Second),
			CompletedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	tests := []struct {
		limit int
		want  int
		first string
	}{
		{limit: 2, want: 2, first: "f4"},
		{limit: 0, want: 5, first: "f4"},
		{limit: -1, want: 5, first: "f4"},
		{limit: MaxListLimit + 1, want: 5, first: "f4"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("limit=%d", tt.limit), func(t *testing.T) {
			list, err := s.ListFetches(ctx, tt.limit)
			require.NoError(t, err)
			require.Len(t, list, tt.want)
			assert.Equal(t, tt.first, list[0].ID)
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := NewSQLite(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.RecordFetch(ctx, models.FetchRecord{ID: "kept", Location: "Oakland", Outcome: models.OutcomeDiscarded}))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	list, err := s.ListFetches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "kept", list[0].ID)
	assert.Equal(t, models.OutcomeDiscarded, list[0].Outcome)
}
