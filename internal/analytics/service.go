package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nulzo/modelmart/internal/price"
	"github.com/nulzo/modelmart/internal/store"
	"github.com/nulzo/modelmart/internal/store/cache"
	"github.com/nulzo/modelmart/pkg/api"
	"go.uber.org/zap"
)

// Service produces the marketplace stats feed.
type Service interface {
	Overview(ctx context.Context) (*api.StatsOverview, error)
	Daily(ctx context.Context, days int) ([]api.DailyStats, error)
}

// ModelCounter is satisfied by *catalog.Catalog.
type ModelCounter interface {
	Len() int
}

type service struct {
	logger *zap.Logger
	repo   store.Repository
	models ModelCounter
	cache  cache.CacheService
	ttl    time.Duration
	now    func() time.Time
}

func NewService(logger *zap.Logger, repo store.Repository, models ModelCounter, c cache.CacheService, ttl time.Duration) Service {
	return &service{
		logger: logger,
		repo:   repo,
		models: models,
		cache:  c,
		ttl:    ttl,
		now:    time.Now,
	}
}

const overviewKey = "stats:overview"

func (s *service) Overview(ctx context.Context) (*api.StatsOverview, error) {
	var cached api.StatsOverview
	if s.lookup(ctx, overviewKey, &cached) {
		return &cached, nil
	}

	deployments := s.repo.Deployments()

	total, err := deployments.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count deployments: %w", err)
	}

	byChain, err := deployments.CountByChain(ctx)
	if err != nil {
		return nil, fmt.Errorf("count deployments by chain: %w", err)
	}

	now := s.now()
	volume, err := deployments.VolumeSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("sum 24h volume: %w", err)
	}

	overview := &api.StatsOverview{
		TotalModels:      s.models.Len(),
		TotalDeployments: total,
		Volume24h:        price.FormatMicros(volume),
		ByChain:          make(map[string]int, len(byChain)),
		GeneratedAt:      now.UTC(),
	}
	for _, c := range byChain {
		overview.ByChain[c.Chain] = c.Deployments
	}

	s.store(ctx, overviewKey, overview)
	return overview, nil
}

func (s *service) Daily(ctx context.Context, days int) ([]api.DailyStats, error) {
	if days <= 0 {
		days = 7 // default to last week
	}

	key := fmt.Sprintf("stats:daily:%d", days)
	var cached []api.DailyStats
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := s.repo.Deployments().GetDailyStats(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("daily stats: %w", err)
	}

	out := make([]api.DailyStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, api.DailyStats{
			Date:        r.Date,
			Deployments: r.Deployments,
			Volume:      price.FormatMicros(r.VolumeMicros),
		})
	}

	s.store(ctx, key, out)
	return out, nil
}

// lookup treats cache failures as misses; stats can always be recomputed.
func (s *service) lookup(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil || s.ttl <= 0 {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("Stats cache read failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

func (s *service) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("Stats cache write failed", zap.String("key", key), zap.Error(err))
	}
}
