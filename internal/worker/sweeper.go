package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"starfarm-bot/internal/economy"
	"starfarm-bot/internal/models"
)

// notifyWindow bounds how far back ended auctions are considered for
// winner notifications; the dedupe keys outlive it.
const (
	notifyWindow = 24 * time.Hour
	notifyTTL    = 48 * time.Hour
)

type AuctionSource interface {
	SweepExpiredAuctions(ctx context.Context) ([]economy.AuctionOutcome, error)
	EndedAuctionsSince(ctx context.Context, since time.Time) ([]economy.AuctionOutcome, error)
}

type Notifier interface {
	NotifyAuctionResult(ctx context.Context, o economy.AuctionOutcome) error
}

// KeyStore is the subset of the redis client used for notification dedupe.
type KeyStore interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Sweeper ends expired auctions nobody is looking at and tells the last
// leader how their auction went.
type Sweeper struct {
	Auctions AuctionSource
	Redis    KeyStore
	Notifier Notifier
	Interval time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

func NewSweeper(auctions AuctionSource, rdb KeyStore, notifier Notifier, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		Auctions: auctions,
		Redis:    rdb,
		Notifier: notifier,
		Interval: interval,
		Logger:   logger.Named("sweeper"),
		Now:      time.Now,
	}
}

// Start runs sweep cycles until ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	s.Logger.Info("Background auction sweeper started", zap.Duration("interval", s.Interval))

	// Run once at start
	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("Background auction sweeper stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

func (s *Sweeper) RunCycle(ctx context.Context) {
	resolved, err := s.Auctions.SweepExpiredAuctions(ctx)
	if err != nil {
		s.Logger.Error("Error sweeping expired auctions", zap.Error(err))
	}
	if len(resolved) > 0 {
		s.Logger.Info("Resolved expired auctions", zap.Int("count", len(resolved)))
	}

	ended, err := s.Auctions.EndedAuctionsSince(ctx, s.Now().Add(-notifyWindow))
	if err != nil {
		s.Logger.Error("Error querying ended auctions", zap.Error(err))
		return
	}

	for _, o := range ended {
		if o.BidderID == nil || o.Result == models.AuctionResultNoBids {
			continue
		}
		key := fmt.Sprintf("auction_notified_%d", o.AuctionID)
		exists, err := s.Redis.Exists(ctx, key).Result()
		if err != nil {
			s.Logger.Warn("Redis unavailable, skipping notifications", zap.Error(err))
			return
		}
		if exists > 0 {
			continue
		}

		if err := s.Notifier.NotifyAuctionResult(ctx, o); err != nil {
			s.Logger.Warn("Failed to notify auction bidder",
				zap.Int64("auction", o.AuctionID),
				zap.Int64("user", *o.BidderID),
				zap.Error(err))
			continue
		}
		if err := s.Redis.Set(ctx, key, "true", notifyTTL).Err(); err != nil {
			s.Logger.Warn("Failed to store notification marker", zap.String("key", key), zap.Error(err))
		}
	}
}
