package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/cuongbtq/colorize-be/internal/durable"
)

// Cache is a string key/value cache with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// StatsService serves aggregate totals, optionally through a cache.
type StatsService struct {
	store    Store
	exec     *durable.Executor
	cache    Cache
	cacheKey string
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewStatsService creates a StatsService. A nil cache or zero ttl disables caching.
func NewStatsService(store Store, exec *durable.Executor, cache Cache, cacheKey string, ttl time.Duration, logger *slog.Logger) *StatsService {
	return &StatsService{
		store:    store,
		exec:     exec,
		cache:    cache,
		cacheKey: cacheKey,
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Snapshot returns the totals stamped with the current time.
func (s *StatsService) Snapshot(ctx context.Context) (*domain.Stats, error) {
	totals, ok := s.cached(ctx)
	if !ok {
		var err error
		totals, err = durable.Query(ctx, s.exec, "fetch_stats", s.store.Totals)
		if err != nil {
			return nil, err
		}
		s.fill(ctx, totals)
	}

	return &domain.Stats{
		TotalUsers:    totals.TotalUniqueUsers,
		TotalMemories: totals.TotalMemories,
		LastUpdated:   s.now(),
	}, nil
}

func (s *StatsService) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *StatsService) cached(ctx context.Context) (Totals, bool) {
	if !s.cacheEnabled() {
		return Totals{}, false
	}

	raw, err := s.cache.Get(ctx, s.cacheKey)
	if err != nil {
		return Totals{}, false
	}

	var totals Totals
	if err := json.Unmarshal([]byte(raw), &totals); err != nil {
		s.logger.Warn("Discarding malformed cached stats", slog.String("error", err.Error()))
		return Totals{}, false
	}
	return totals, true
}

func (s *StatsService) fill(ctx context.Context, totals Totals) {
	if !s.cacheEnabled() {
		return
	}

	raw, err := json.Marshal(totals)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey, string(raw), s.ttl); err != nil {
		s.logger.Warn("Failed to cache stats", slog.String("error", err.Error()))
	}
}
