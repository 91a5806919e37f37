// Package application owns the application status lifecycle. Every status
// change appends to the timeline, and entering approved issues a
// certificate in the same transaction.
package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"certification-workers/internal/audit"
	"certification-workers/internal/certificate"
	"certification-workers/internal/common/config"
	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/idgen"
	"certification-workers/internal/common/lock"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/metrics"
	"certification-workers/internal/models"
	"certification-workers/internal/notification"
	"certification-workers/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("certification-workers/application")

type Config struct {
	NumberPrefix  string
	MaxIDAttempts int
}

func ConfigFrom(cfg config.LifecycleConfig) Config {
	return Config{NumberPrefix: cfg.ApplicationPrefix, MaxIDAttempts: cfg.MaxIDAttempts}
}

type TransitionRequest struct {
	ApplicationID string
	NewStatus     models.ApplicationStatus
	Notes         string
	Actor         models.Actor
}

type TransitionResult struct {
	Application    *models.Application
	PreviousStatus models.ApplicationStatus
	// Changed is false when the application already held NewStatus.
	Changed     bool
	Certificate *models.Certificate
	// CertificateReused is set when approval kept a certificate already
	// issued for the application by its certificate fee.
	CertificateReused bool
}

type NewApplication struct {
	CompanyID     string
	Type          models.ApplicationType
	Grade         string
	PaymentID     string
	PaymentStatus string
	Notes         string
	Actor         models.Actor
}

type StateMachine struct {
	repo     store.Repository
	locker   lock.Locker
	issuer   *certificate.Issuer
	notifier *notification.Service
	recorder *audit.Recorder
	ids      idgen.Generator
	config   Config
	now      func() time.Time
	logger   logger.Logger
}

type Option func(*StateMachine)

func WithClock(now func() time.Time) Option {
	return func(m *StateMachine) { m.now = now }
}

func WithGenerator(g idgen.Generator) Option {
	return func(m *StateMachine) { m.ids = g }
}

// NewStateMachine wires the state machine. notifier and recorder may be nil.
func NewStateMachine(
	repo store.Repository,
	locker lock.Locker,
	issuer *certificate.Issuer,
	notifier *notification.Service,
	recorder *audit.Recorder,
	cfg Config,
	log logger.Logger,
	opts ...Option,
) *StateMachine {
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = "APP"
	}
	if cfg.MaxIDAttempts <= 0 {
		cfg.MaxIDAttempts = 10
	}
	m := &StateMachine{
		repo:     repo,
		locker:   locker,
		issuer:   issuer,
		notifier: notifier,
		recorder: recorder,
		ids:      idgen.NewBase36(),
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.WithFields(map[string]interface{}{"component": "application-state-machine"}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transition moves an application to req.NewStatus. Moving to the current
// status is a no-op. Writers of one application are serialized through the
// locker and the version-checked update.
func (m *StateMachine) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	ctx, span := tracer.Start(ctx, "application.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("application.id", req.ApplicationID),
		attribute.String("application.status.to", string(req.NewStatus)),
	)

	result, vendor, err := m.transition(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if result.Changed {
		m.afterTransition(ctx, req, result, vendor)
	}
	return result, nil
}

func (m *StateMachine) transition(ctx context.Context, req TransitionRequest) (*TransitionResult, *models.Vendor, error) {
	key := lock.ApplicationKey(req.ApplicationID)
	release, err := m.locker.Lock(ctx, key)
	if err != nil {
		return nil, nil, errors.NewLockTimeoutError(key, err)
	}
	defer release()

	var (
		result *TransitionResult
		vendor *models.Vendor
	)
	err = m.repo.RunInTx(ctx, func(tx store.Store) error {
		app, err := tx.GetApplicationForUpdate(ctx, req.ApplicationID)
		if err != nil {
			if stderrors.Is(err, store.ErrNotFound) {
				return errors.NewNotFoundError("application", req.ApplicationID)
			}
			return errors.NewQueryExecutionFailedError("get application", err)
		}

		from := app.CurrentStatus
		result = &TransitionResult{Application: app, PreviousStatus: from}
		if req.NewStatus == from {
			return nil
		}
		if !req.NewStatus.Valid() || !CanTransition(from, req.NewStatus) {
			metrics.LifecycleTransitionsRejected.WithLabelValues(string(from), string(req.NewStatus)).Inc()
			return errors.NewInvalidTransitionError(app.ID, string(from), string(req.NewStatus))
		}

		now := m.now()
		expected := app.Version
		app.Append(models.TimelineEntry{
			Status:    req.NewStatus,
			Timestamp: now,
			Notes:     req.Notes,
			Actor:     req.Actor.Label(),
		})
		app.UpdatedAt = now

		if req.NewStatus == models.StatusApproved {
			cert, reused, err := m.approvalCertificate(ctx, tx, app)
			if err != nil {
				return err
			}
			app.CertificateID = cert.ID
			result.Certificate = cert
			result.CertificateReused = reused

			vendor, err = attachCertificate(ctx, tx, app.CompanyID, cert.ID)
			if err != nil {
				return err
			}
		}

		if err := tx.UpdateApplication(ctx, app, expected); err != nil {
			switch {
			case stderrors.Is(err, store.ErrConflict):
				return errors.NewConcurrentModificationError("application", app.ID)
			case stderrors.Is(err, store.ErrNotFound):
				return errors.NewNotFoundError("application", app.ID)
			default:
				return errors.NewQueryExecutionFailedError("update application", err)
			}
		}
		result.Changed = true
		return nil
	})
	if err != nil {
		return nil, nil, errors.FromTransaction(err)
	}
	return result, vendor, nil
}

// approvalCertificate returns the certificate an approval hands out. An
// application whose certificate fee already produced one keeps it; issuing a
// second would leave two live certificates for one application.
func (m *StateMachine) approvalCertificate(ctx context.Context, tx store.Store, app *models.Application) (*models.Certificate, bool, error) {
	if app.CertificateID != "" {
		cert, err := tx.GetCertificate(ctx, app.CertificateID)
		switch {
		case err == nil:
			return cert, true, nil
		case !stderrors.Is(err, store.ErrNotFound):
			return nil, false, errors.NewQueryExecutionFailedError("get certificate", err)
		}
		m.logger.Warn("application points at a missing certificate, issuing a new one", map[string]interface{}{
			"applicationId": app.ID,
			"certificateId": app.CertificateID,
		})
	}

	cert, err := m.issuer.IssueWithin(ctx, tx, certificate.IssueRequest{
		CompanyID:     app.CompanyID,
		ApplicationID: app.ID,
	})
	if err != nil {
		return nil, false, err
	}
	return cert, false, nil
}

// attachCertificate points the company's vendor at certID. A company without
// a vendor record is left as is.
func attachCertificate(ctx context.Context, tx store.Store, companyID, certID string) (*models.Vendor, error) {
	vendor, err := tx.GetVendorByCompany(ctx, companyID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.NewQueryExecutionFailedError("get vendor", err)
	}
	if err := tx.SetVendorCertificate(ctx, vendor.ID, certID); err != nil {
		return nil, errors.NewQueryExecutionFailedError("set vendor certificate", err)
	}
	vendor.CertificateID = certID
	return vendor, nil
}

func (m *StateMachine) afterTransition(ctx context.Context, req TransitionRequest, result *TransitionResult, vendor *models.Vendor) {
	app := result.Application
	metrics.LifecycleTransitions.WithLabelValues(string(result.PreviousStatus), string(app.CurrentStatus)).Inc()
	m.logger.Info("application status changed", map[string]interface{}{
		"applicationId": app.Number,
		"from":          result.PreviousStatus,
		"to":            app.CurrentStatus,
		"actor":         req.Actor.Label(),
	})

	action := "application.status_changed"
	metadata := map[string]interface{}{
		"from": string(result.PreviousStatus),
		"to":   string(app.CurrentStatus),
	}
	if result.Certificate != nil {
		action = "application.approved"
		metadata["certificateId"] = result.Certificate.Number
		if result.CertificateReused {
			metadata["certificateReused"] = true
		}
	}
	m.recorder.Audit(ctx, models.AuditEntry{
		Actor:      req.Actor.Label(),
		ActorID:    req.Actor.ID,
		Role:       req.Actor.Role,
		Action:     action,
		EntityType: "application",
		EntityID:   app.ID,
		Details:    req.Notes,
		Severity:   models.SeverityInfo,
		Metadata:   metadata,
	})

	if result.Certificate == nil {
		return
	}
	cert := result.Certificate
	if !result.CertificateReused {
		m.issuer.Publish(ctx, cert)
	}

	if vendor == nil {
		return
	}
	if !result.CertificateReused {
		m.recorder.Activity(ctx, models.VendorActivity{
			VendorID:     vendor.ID,
			ActivityType: "certificate_issued",
			Description:  fmt.Sprintf("Certificate %s issued for application %s", cert.Number, app.Number),
			Metadata: map[string]interface{}{
				"applicationId": app.Number,
				"certificateId": cert.Number,
			},
		})
	}
	m.fanOut(ctx, notification.Event{
		Type:           notification.TypeApplicationApproved,
		Title:          "Application approved",
		Message:        fmt.Sprintf("Application %s was approved. Certificate %s is valid until %s.", app.Number, cert.Number, cert.ValidUntil.Format("2006-01-02")),
		ApplicationID:  app.ID,
		Reference:      cert.ID,
		Vendor:         notification.Recipient{ID: vendor.ID, Email: vendor.Email, Phone: vendor.Phone},
		VendorPriority: models.PriorityHigh,
	})
}

func (m *StateMachine) fanOut(ctx context.Context, ev notification.Event) {
	if m.notifier == nil {
		return
	}
	if _, err := m.notifier.FanOut(ctx, ev); err != nil {
		metrics.SecondaryFailures.WithLabelValues("notification").Inc()
		m.logger.Warn("notification fan-out incomplete", map[string]interface{}{
			"type":          ev.Type,
			"applicationId": ev.ApplicationID,
			"error":         err,
		})
	}
}

// Create stores a new application in its own transaction.
func (m *StateMachine) Create(ctx context.Context, in NewApplication) (*models.Application, error) {
	var app *models.Application
	err := m.repo.RunInTx(ctx, func(tx store.Store) error {
		var err error
		app, err = m.CreateWithin(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, errors.FromTransaction(err)
	}
	return app, nil
}

// CreateWithin stores a new application using tx. The timeline starts with
// a single pending_desk_review entry.
func (m *StateMachine) CreateWithin(ctx context.Context, tx store.Store, in NewApplication) (*models.Application, error) {
	ctx, span := tracer.Start(ctx, "application.Create")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", in.CompanyID))

	now := m.now()
	actor := in.Actor
	if actor.ID == "" && actor.Name == "" {
		actor = models.SystemActor
	}

	for attempt := 1; attempt <= m.config.MaxIDAttempts; attempt++ {
		suffix, err := m.ids.Generate(idgen.SuffixLength)
		if err != nil {
			return nil, fmt.Errorf("generate application number: %w", err)
		}

		app := &models.Application{
			ID:            uuid.New().String(),
			Number:        idgen.Number(m.config.NumberPrefix, now, suffix),
			CompanyID:     in.CompanyID,
			Type:          in.Type,
			Grade:         in.Grade,
			SubmittedAt:   now,
			PaymentID:     in.PaymentID,
			PaymentStatus: in.PaymentStatus,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		app.Append(models.TimelineEntry{
			Status:    models.StatusPendingDeskReview,
			Timestamp: now,
			Notes:     in.Notes,
			Actor:     actor.Label(),
		})

		if err := tx.CreateApplication(ctx, app); err != nil {
			if stderrors.Is(err, store.ErrDuplicate) {
				continue
			}
			return nil, errors.NewDatabaseInsertFailedError("application", err)
		}
		return app, nil
	}

	return nil, errors.NewConflictError("application", in.CompanyID,
		fmt.Sprintf("no unique application id after %d attempts", m.config.MaxIDAttempts))
}
