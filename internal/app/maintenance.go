package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bissquit/tourdesk/internal/notifications"
	"github.com/bissquit/tourdesk/internal/pkg/metrics"
)

const (
	jobCleanup = "notification_cleanup"
	jobStats   = "pool_stats"

	cleanupTimeout = 5 * time.Minute
)

type maintenanceConfig struct {
	CleanupInterval time.Duration
	StatsInterval   time.Duration
}

// cleaner purges expired notification state.
type cleaner interface {
	Cleanup(ctx context.Context) (int, error)
	GetQueueStats() notifications.QueueStats
}

// maintenance runs periodic retention cleanup and gauge refreshes.
type maintenance struct {
	cron       gocron.Scheduler
	dispatcher cleaner
	db         *pgxpool.Pool
	redis      *redis.Client
}

func newMaintenance(cfg maintenanceConfig, dispatcher cleaner, db *pgxpool.Pool, rdb *redis.Client) (*maintenance, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}

	m := &maintenance{
		cron:       cron,
		dispatcher: dispatcher,
		db:         db,
		redis:      rdb,
	}

	if _, err := cron.NewJob(
		gocron.DurationJob(cfg.CleanupInterval),
		gocron.NewTask(m.runCleanup),
		gocron.WithName(jobCleanup),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("scheduling %s: %w", jobCleanup, err)
	}

	if _, err := cron.NewJob(
		gocron.DurationJob(cfg.StatsInterval),
		gocron.NewTask(m.recordStats),
		gocron.WithName(jobStats),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		return nil, fmt.Errorf("scheduling %s: %w", jobStats, err)
	}

	return m, nil
}

func (m *maintenance) Start() {
	m.cron.Start()
}

func (m *maintenance) Stop() error {
	return m.cron.Shutdown()
}

func (m *maintenance) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	purged, err := m.dispatcher.Cleanup(ctx)
	if err != nil {
		metrics.ScheduledJobRuns.WithLabelValues(jobCleanup, "error").Inc()
		slog.Error("scheduled cleanup failed", "purged_messages", purged, "error", err)
		return
	}
	metrics.ScheduledJobRuns.WithLabelValues(jobCleanup, "success").Inc()
}

func (m *maintenance) recordStats() {
	notifications.RecordQueueStats(m.dispatcher.GetQueueStats())
	if m.db != nil {
		metrics.RecordDBPoolMetrics(m.db)
	}
	if m.redis != nil {
		metrics.RecordRedisPoolMetrics(m.redis)
	}
	metrics.ScheduledJobRuns.WithLabelValues(jobStats, "success").Inc()
}
