// internal/workers/lifecycle/run-expiry-sweep/handler.go
package runexpirysweep

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/validation"
	"certification-workers/internal/expiry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "run-expiry-sweep"
)

type Handler struct {
	config       *Config
	sweeper      *expiry.Sweeper
	validator    *validation.Validator
	errorHandler *errors.ErrorHandler
	now          func() time.Time
	logger       logger.Logger
}

func NewHandler(config *Config, sweeper *expiry.Sweeper, validator *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		sweeper:      sweeper,
		validator:    validator,
		errorHandler: errors.NewErrorHandler(log),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	vars, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("parse variables: %v", err))
	}
	if err := h.validator.ValidateInput(TaskType, vars); err != nil {
		return nil, err
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	asOf := h.now()
	if input.AsOf != "" {
		parsed, err := time.Parse(time.RFC3339, input.AsOf)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("asOf must be RFC 3339: %v", err))
		}
		asOf = parsed
	}

	report, err := h.sweeper.Run(ctx, asOf)
	if err != nil {
		return nil, err
	}

	return &Output{
		ExpiredCertificates:  report.ExpiredCertificates,
		ExpiringCertificates: report.ExpiringCertificates,
		ExpiredDocuments:     report.ExpiredDocuments,
		ExpiringDocuments:    report.ExpiringDocuments,
		NotificationsSent:    report.NotificationsSent,
		DuplicatesSkipped:    report.DuplicatesSkipped,
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
