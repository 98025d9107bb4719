package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kursadbilgin/notifier/internal/observability"
	"github.com/kursadbilgin/notifier/internal/queue"
	"github.com/kursadbilgin/notifier/internal/repository"
)

const (
	defaultReapInterval = 30 * time.Second
	defaultReapLimit    = 100
)

// Reaper republishes notifications whose unit of work was lost: expired
// processing leases of crashed workers and pending records that were never
// picked up.
type Reaper struct {
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	logger        *zap.Logger
	metrics       *observability.Metrics
	interval      time.Duration
	limit         int
	leaseDuration time.Duration
	now           func() time.Time
}

func NewReaper(
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	interval time.Duration,
	leaseDuration time.Duration,
	limit int,
	logger *zap.Logger,
) (*Reaper, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultReapInterval
	}
	if leaseDuration <= 0 {
		leaseDuration = defaultLeaseDuration
	}
	if limit <= 0 {
		limit = defaultReapLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reaper{
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
		interval:      interval,
		limit:         limit,
		leaseDuration: leaseDuration,
		now:           time.Now,
	}, nil
}

func (s *Reaper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *Reaper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.reap(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("reaper initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.reap(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("reaper scan failed", zap.Error(err))
			}
		}
	}
}

// reap republishes one batch of stale notifications and returns how many
// units of work it published.
func (s *Reaper) reap(ctx context.Context) (int, error) {
	now := s.now().UTC()
	stale, err := s.notifications.GetStale(ctx, repository.StaleParams{
		Now:           now,
		PendingBefore: now.Add(-s.leaseDuration),
		Limit:         s.limit,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch stale notifications: %w", err)
	}

	published := 0
	for i := range stale {
		n := stale[i]
		logger := s.logger.With(
			zap.String("notificationId", n.ID),
			zap.String("tenantId", n.TenantID),
		)

		// Moving the lease first keeps concurrent reapers from publishing
		// the same record twice.
		won, err := s.notifications.ExtendLease(ctx, n.ID, n.Status, n.AttemptCount, now, now.Add(s.leaseDuration))
		if err != nil {
			logger.Error("failed to extend lease", zap.Error(err))
			continue
		}
		if !won {
			continue
		}

		item := queue.WorkItem{
			NotificationID: n.ID,
			Attempt:        n.AttemptCount,
			Channel:        n.Channel,
		}
		if err := s.publisher.Publish(ctx, item, 0); err != nil {
			logger.Error("failed to republish stale notification",
				zap.String("queue", queue.QueueName(n.Channel)),
				zap.Error(err),
			)
			continue
		}

		logger.Info("stale notification republished",
			zap.String("status", n.Status.String()),
			zap.Int("attempt", item.Attempt),
		)
		s.metrics.IncLeaseRequeued(n.Channel.String())
		published++
	}

	return published, nil
}
