package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gestionrh/gestionrh-console/internal/jobs"
)

// SessionPruner deletes expired session records.
type SessionPruner interface {
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// KeyCleaner deletes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// SessionsPruneJob keeps the session registry and idempotency table small.
type SessionsPruneJob struct {
	Sessions     SessionPruner
	Keys         KeyCleaner
	KeyRetention time.Duration
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	clock        func() time.Time
}

// NewSessionsPruneJob wires the prune handler.
func NewSessionsPruneJob(sessions SessionPruner, keys KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionsPruneJob {
	return &SessionsPruneJob{
		Sessions:     sessions,
		Keys:         keys,
		KeyRetention: 7 * 24 * time.Hour,
		Logger:       logger,
		Metrics:      metrics,
		clock:        func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes prune tasks.
func (j *SessionsPruneJob) Handle(ctx context.Context, _ *asynq.Task) error {
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskSessionsPrune)
	logger := slog.Default()
	if j.Logger != nil {
		logger = j.Logger
	}
	logger = logger.With(slog.String("job", TaskSessionsPrune))

	var pruned int64
	if j.Sessions != nil {
		n, err := j.Sessions.PruneExpired(ctx, j.clock())
		if err != nil {
			logger.Error("prune sessions", slog.Any("error", err))
			return tracker.End(err)
		}
		pruned = n
	}
	if j.Keys != nil {
		if err := j.Keys.Cleanup(ctx, j.KeyRetention); err != nil {
			logger.Error("cleanup idempotency keys", slog.Any("error", err))
			return tracker.End(err)
		}
	}
	logger.Info("sessions pruned", slog.Int64("sessions", pruned))
	return tracker.End(nil)
}
