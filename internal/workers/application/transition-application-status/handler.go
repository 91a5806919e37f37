// internal/workers/application/transition-application-status/handler.go
package transitionapplicationstatus

import (
	"context"
	"encoding/json"
	"fmt"

	"certification-workers/internal/application"
	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/validation"
	"certification-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "transition-application-status"
)

type Handler struct {
	config       *Config
	machine      *application.StateMachine
	validator    *validation.Validator
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, machine *application.StateMachine, validator *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		machine:      machine,
		validator:    validator,
		errorHandler: errors.NewErrorHandler(log),
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
	if input.ApplicationID == "" || input.NewStatus == "" {
		return nil, errors.NewValidationError("applicationId and newStatus are required")
	}

	actor := models.SystemActor
	if input.Actor != nil && (input.Actor.ID != "" || input.Actor.Name != "") {
		actor = models.Actor{ID: input.Actor.ID, Name: input.Actor.Name, Role: input.Actor.Role}
	}

	result, err := h.machine.Transition(ctx, application.TransitionRequest{
		ApplicationID: input.ApplicationID,
		NewStatus:     models.ApplicationStatus(input.NewStatus),
		Notes:         input.Notes,
		Actor:         actor,
	})
	if err != nil {
		return nil, err
	}

	output := &Output{
		ApplicationID:     result.Application.ID,
		ApplicationNumber: result.Application.Number,
		PreviousStatus:    string(result.PreviousStatus),
		CurrentStatus:     string(result.Application.CurrentStatus),
		Changed:           result.Changed,
	}
	if result.Certificate != nil {
		output.CertificateID = result.Certificate.Number
	}
	return output, nil
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
		"jobKey":        job.Key,
		"applicationId": output.ApplicationID,
		"status":        output.CurrentStatus,
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
