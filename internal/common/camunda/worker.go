// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"certification-workers/internal/common/config"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/metrics"
	"certification-workers/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

// Job outcomes as observed from the command a handler issued.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeThrown    = "error_thrown"
	OutcomeNone      = "no_response"
)

// StartWorker opens a job worker for taskType. Returns nil if the worker is
// disabled in config.
func StartWorker(
	client zbc.Client,
	taskType string,
	wcfg config.WorkerConfig,
	handler worker.JobHandler,
	obs *observability.Observability,
	log *zap.Logger,
) worker.JobWorker {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return nil
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(Instrument(taskType, handler, obs, logger.NewZapAdapter(log))).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
	return jobWorker
}

// Instrument wraps handler with the job gauge, duration histogram, an OTel
// span and the processed counter labelled by outcome. Each job ends with a
// debug entry carrying the trace and span IDs.
func Instrument(taskType string, handler worker.JobHandler, obs *observability.Observability, log logger.Logger) worker.JobHandler {
	if obs == nil {
		obs = &observability.Observability{}
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		active := metrics.WorkerJobsActive.WithLabelValues(taskType)
		active.Inc()
		defer active.Dec()

		ctx, span := obs.StartSpan(context.Background(), taskType, job.Key)
		defer span.End()

		recorder := &outcomeRecorder{JobClient: client, outcome: OutcomeNone}
		handler(recorder, job)

		elapsed := time.Since(start)
		metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
		if recorder.outcome == OutcomeCompleted {
			metrics.WorkerJobsCompleted.WithLabelValues(taskType).Inc()
		}
		obs.RecordJobProcessed(ctx, taskType, recorder.outcome)
		obs.RecordJobDuration(ctx, taskType, elapsed, recorder.outcome)

		logger.WithTrace(ctx, log).Debug("job handled", map[string]interface{}{
			"taskType":   taskType,
			"jobKey":     job.Key,
			"outcome":    recorder.outcome,
			"durationMs": elapsed.Milliseconds(),
		})
	}
}

// outcomeRecorder notes which response command the handler created.
type outcomeRecorder struct {
	worker.JobClient
	outcome string
}

func (r *outcomeRecorder) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	r.outcome = OutcomeCompleted
	return r.JobClient.NewCompleteJobCommand()
}

func (r *outcomeRecorder) NewFailJobCommand() commands.FailJobCommandStep1 {
	r.outcome = OutcomeFailed
	return r.JobClient.NewFailJobCommand()
}

func (r *outcomeRecorder) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	r.outcome = OutcomeThrown
	return r.JobClient.NewThrowErrorCommand()
}
