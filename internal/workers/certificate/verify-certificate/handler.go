// internal/workers/certificate/verify-certificate/handler.go
package verifycertificate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"certification-workers/internal/certificate"
	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "verify-certificate"
)

type Handler struct {
	config       *Config
	issuer       *certificate.Issuer
	validator    *validation.Validator
	errorHandler *errors.ErrorHandler
	now          func() time.Time
	logger       logger.Logger
}

func NewHandler(config *Config, issuer *certificate.Issuer, validator *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		issuer:       issuer,
		validator:    validator,
		errorHandler: errors.NewErrorHandler(log),
		now:          time.Now,
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

// A known but expired or revoked certificate completes with Valid false.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.CertificateID == "" {
		return nil, errors.NewValidationError("certificateId is required")
	}

	cert, err := h.issuer.Verify(ctx, input.CertificateID)
	if err != nil {
		return nil, err
	}

	return &Output{
		Valid:           cert.ActiveAt(h.now()),
		CertificateID:   cert.Number,
		Status:          string(cert.Status),
		CompanyName:     cert.Snapshot.CompanyName,
		Grade:           cert.Snapshot.Grade,
		ApprovedSectors: cert.Snapshot.ApprovedSectors,
		IssuedAt:        cert.IssuedAt.UTC().Format(time.RFC3339),
		ValidUntil:      cert.ValidUntil.UTC().Format(time.RFC3339),
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
		"jobKey":        job.Key,
		"certificateId": output.CertificateID,
		"valid":         output.Valid,
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
