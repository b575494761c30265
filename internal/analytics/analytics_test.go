package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/cuongbtq/colorize-be/internal/durable"
	"github.com/cuongbtq/colorize-be/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	events     []domain.ColorizeEvent
	totals     Totals
	totalsErr  error
	totalCalls int
}

func (s *fakeStore) InsertEvent(_ context.Context, ev domain.ColorizeEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) Totals(context.Context) (Totals, error) {
	s.totalCalls++
	return s.totals, s.totalsErr
}

type fakeCache struct {
	data   map[string]string
	ttl    time.Duration
	setErr error
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.data[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.data[key] = value
	c.ttl = ttl
	return nil
}

func testExecutor() *durable.Executor {
	return durable.NewExecutor(durable.Options{BackoffBase: time.Millisecond}, logger.Discard(), nil)
}

func TestRecorder_Defaults(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, testExecutor())
	fixed := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	require.NoError(t, r.Record(context.Background(), domain.ColorizeEvent{Source: domain.SourceEphemeral}))

	require.Len(t, store.events, 1)
	assert.Equal(t, domain.PlatformUnknown, store.events[0].Platform)
	assert.Equal(t, fixed, store.events[0].CreatedAt)
}

func TestStatsService_WithoutCache(t *testing.T) {
	store := &fakeStore{totals: Totals{TotalUniqueUsers: 3, TotalMemories: 10}}
	s := NewStatsService(store, testExecutor(), nil, "k", time.Minute, logger.Discard())

	stats, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalUsers)
	assert.Equal(t, int64(10), stats.TotalMemories)
	assert.False(t, stats.LastUpdated.IsZero())
}

func TestStatsService_EmptyTotals(t *testing.T) {
	s := NewStatsService(&fakeStore{}, testExecutor(), nil, "k", 0, logger.Discard())

	stats, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalUsers)
	assert.Zero(t, stats.TotalMemories)
}

func TestStatsService_UsesCache(t *testing.T) {
	store := &fakeStore{totals: Totals{TotalUniqueUsers: 1, TotalMemories: 2}}
	cache := &fakeCache{data: map[string]string{}}
	s := NewStatsService(store, testExecutor(), cache, "colorize:stats", time.Minute, logger.Discard())
	ctx := context.Background()

	first, err := s.Snapshot(ctx)
	require.NoError(t, err)
	store.totals = Totals{TotalUniqueUsers: 99, TotalMemories: 99}
	second, err := s.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, store.totalCalls)
	assert.Equal(t, time.Minute, cache.ttl)
	assert.Equal(t, first.TotalMemories, second.TotalMemories)
}

func TestStatsService_CacheFailuresAreIgnored(t *testing.T) {
	store := &fakeStore{totals: Totals{TotalUniqueUsers: 1, TotalMemories: 2}}
	cache := &fakeCache{data: map[string]string{"k": "{not json"}, setErr: errors.New("READONLY")}
	s := NewStatsService(store, testExecutor(), cache, "k", time.Minute, logger.Discard())

	stats, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalMemories)
}

func TestStatsService_StoreError(t *testing.T) {
	store := &fakeStore{totalsErr: errors.New("pq: relation does not exist")}
	s := NewStatsService(store, testExecutor(), nil, "k", 0, logger.Discard())

	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, durable.ErrStorageOperationFailed)
}
