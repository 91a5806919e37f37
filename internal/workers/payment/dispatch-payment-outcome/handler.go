// internal/workers/payment/dispatch-payment-outcome/handler.go
package dispatchpaymentoutcome

import (
	"context"
	"encoding/json"
	"fmt"

	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/validation"
	"certification-workers/internal/payment"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "dispatch-payment-outcome"
)

type Handler struct {
	config       *Config
	dispatcher   *payment.Dispatcher
	validator    *validation.Validator
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, dispatcher *payment.Dispatcher, validator *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		dispatcher:   dispatcher,
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

	vars, err := job.GetVariablesAsMap()
	if err == nil {
		err = h.validator.ValidateInput(TaskType, vars)
	}
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, asValidation(err))
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

func asValidation(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewValidationError(fmt.Sprintf("parse variables: %v", err))
}

// Redelivered jobs for an already dispatched payment complete with the
// recorded outcome and AlreadyProcessed set.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.PaymentID == "" {
		return nil, errors.NewValidationError("paymentId is required")
	}

	outcome, err := h.dispatcher.Dispatch(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}

	return &Output{
		PaymentID:        outcome.PaymentID,
		Purpose:          outcome.Purpose,
		ApplicationID:    outcome.ApplicationID,
		CertificateID:    outcome.CertificateID,
		AlreadyProcessed: outcome.AlreadyProcessed,
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
		"jobKey":           job.Key,
		"paymentId":        output.PaymentID,
		"alreadyProcessed": output.AlreadyProcessed,
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
