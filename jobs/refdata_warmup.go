package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gestionrh/gestionrh-console/internal/console"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	jobmetrics "github.com/gestionrh/gestionrh-console/internal/jobs"
	"github.com/gestionrh/gestionrh-console/internal/querycache"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ErrNoServiceToken is returned when the warmup runs without API credentials.
var ErrNoServiceToken = errors.New("refdata warmup: service token not configured")

// RefdataWarmupJob bumps the query cache version and reloads the reference
// data every page shares: departments, leave types and positions.
type RefdataWarmupJob struct {
	API     *hrapi.Caller
	Cache   *querycache.Cache
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRefdataWarmupJob wires the warmup handler. A nil api disables it.
func NewRefdataWarmupJob(api *hrapi.Caller, cache *querycache.Cache, logger *slog.Logger, metrics *jobmetrics.Metrics) *RefdataWarmupJob {
	return &RefdataWarmupJob{
		API:     api,
		Cache:   cache,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes warmup tasks.
func (j *RefdataWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("refdata warmup: handler not configured")
	}
	var payload WarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Reason == "" {
		payload.Reason = "schedule"
	}

	tracker := j.metrics().Track(TaskRefdataWarmup)
	err := j.Warm(ctx, payload.Reason)
	if errors.Is(err, ErrNoServiceToken) {
		j.logger().Warn("refdata warmup skipped", slog.Any("error", err))
		return tracker.End(nil)
	}
	return tracker.End(err)
}

// Warm runs one warmup pass.
func (j *RefdataWarmupJob) Warm(ctx context.Context, reason string) error {
	if j.API == nil {
		return ErrNoServiceToken
	}
	logger := j.logger().With(slog.String("reason", reason))
	start := j.now()
	if err := j.Cache.Bump(ctx); err != nil {
		logger.Error("bump query cache", slog.Any("error", err))
		return err
	}

	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	departments, err := querycache.Get(warmCtx, j.Cache, console.KeyDepartments, j.API.Departments)
	if err != nil {
		return err
	}
	types, err := querycache.Get(warmCtx, j.Cache, console.KeyLeaveTypes, j.API.LeaveTypes)
	if err != nil {
		return err
	}
	positions, err := querycache.Get(warmCtx, j.Cache, console.KeyJobs, j.API.Jobs)
	if err != nil {
		return err
	}

	logger.Info("refdata warmed",
		slog.Int("departments", len(departments)),
		slog.Int("leave_types", len(types)),
		slog.Int("positions", len(positions)),
		slog.Duration("duration", j.now().Sub(start)))
	return nil
}

func (j *RefdataWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRefdataWarmup))
	}
	return slog.Default().With(slog.String("job", TaskRefdataWarmup))
}

func (j *RefdataWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RefdataWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
