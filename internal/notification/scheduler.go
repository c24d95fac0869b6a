package notification

import (
	"context"
	"os"
	"strconv"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const dueBatchSize = 50

// NotificationScheduler polls for due scheduled notifications and hands each
// to the delivery engine once per due cycle.
type NotificationScheduler struct {
	store    Store
	engine   *Engine
	logger   *zap.Logger
	interval time.Duration
}

func NewNotificationScheduler(store Store, engine *Engine, logger *zap.Logger) *NotificationScheduler {
	interval := 30 * time.Second
	if v := os.Getenv("SCHEDULER_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			interval = time.Duration(secs) * time.Second
		}
	}
	return &NotificationScheduler{store: store, engine: engine, logger: logger, interval: interval}
}

// StartScheduler runs the background polling loop for the process lifetime.
func (s *NotificationScheduler) StartScheduler(lc fx.Lifecycle) {
	ticker := time.NewTicker(s.interval)
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.logger.Info("starting notification scheduler", zap.Duration("interval", s.interval))
			go func() {
				for {
					select {
					case <-ticker.C:
						s.Tick(context.Background())
					case <-done:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.logger.Info("stopping notification scheduler")
			ticker.Stop()
			close(done)
			return nil
		},
	})
}

// Tick processes one batch of due notifications. The whole tick carries a soft
// deadline so a pathological batch cannot starve the next one indefinitely.
func (s *NotificationScheduler) Tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	due, err := s.store.FindDueScheduled(ctx, dueBatchSize, time.Now())
	if err != nil {
		s.logger.Error("due notification query failed", zap.Error(err))
		return
	}
	for _, n := range due {
		s.processDue(ctx, n)
	}
}

// processDue claims and delivers one item. Every failure is contained here so
// one bad notification never blocks the rest of the batch.
func (s *NotificationScheduler) processDue(ctx context.Context, n *Notification) {
	claimed, err := s.store.TransitionStatus(ctx, n.ID, StatusScheduled, StatusSending)
	if err != nil {
		s.logger.Error("claim failed", zap.String("notification", n.ID.Hex()), zap.Error(err))
		return
	}
	if !claimed {
		// Another tick got there first; the conditional update makes double
		// delivery impossible.
		return
	}

	// Re-load after the claim; the batch snapshot may be stale.
	fresh, err := s.store.FindNotificationByID(ctx, n.ID)
	if err != nil {
		s.logger.Error("reload failed", zap.String("notification", n.ID.Hex()), zap.Error(err))
		if _, terr := s.store.TransitionStatus(ctx, n.ID, StatusSending, StatusFailed); terr != nil {
			s.logger.Error("failed-status transition failed",
				zap.String("notification", n.ID.Hex()), zap.Error(terr))
		}
		return
	}
	fresh.Status = StatusSending

	stats := s.engine.Deliver(ctx, fresh)
	s.logger.Info("scheduled notification delivered",
		zap.String("notification", n.ID.Hex()),
		zap.Int("recipients", stats.Recipients),
		zap.Int("connections", stats.DeliveredConnections))
}
