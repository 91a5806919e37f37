// internal/workers/lifecycle/evaluate-sla-breach/handler.go
package evaluateslabreach

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/validation"
	"certification-workers/internal/sla"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "evaluate-sla-breach"
)

type Handler struct {
	config       *Config
	evaluator    *sla.Evaluator
	validator    *validation.Validator
	errorHandler *errors.ErrorHandler
	now          func() time.Time
	logger       logger.Logger
}

func NewHandler(config *Config, evaluator *sla.Evaluator, validator *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		evaluator:    evaluator,
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

	vars, err := job.GetVariablesAsMap()
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, errors.NewValidationError(fmt.Sprintf("parse variables: %v", err)))
		return
	}
	if err := h.validator.ValidateInput(TaskType, vars); err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, errors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
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

	report, err := h.evaluator.Evaluate(ctx, asOf)
	if err != nil {
		return nil, err
	}

	breached := report.Breached
	if breached == nil {
		breached = []string{}
	}
	return &Output{Evaluated: report.Evaluated, BreachedApplicationIDs: breached}, nil
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
		"jobKey":    job.Key,
		"evaluated": output.Evaluated,
		"breached":  len(output.BreachedApplicationIDs),
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
