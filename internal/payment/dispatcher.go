// Package payment turns a verified payment into the business action its
// purpose calls for. The action and the payment's completion commit
// together; notifications, audit and indexing follow on a best-effort
// basis.
package payment

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"certification-workers/internal/application"
	"certification-workers/internal/audit"
	"certification-workers/internal/certificate"
	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/lock"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/metrics"
	"certification-workers/internal/models"
	"certification-workers/internal/notification"
	"certification-workers/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("certification-workers/payment")

const (
	resultProcessed = "processed"
	resultReplayed  = "replayed"
	resultFailed    = "failed"
)

// Outcome is what a dispatch produced. A replayed dispatch returns the
// outcome recorded the first time with AlreadyProcessed set.
type Outcome struct {
	PaymentID        string
	Purpose          string
	ApplicationID    string
	CertificateID    string
	AlreadyProcessed bool
}

type Dispatcher struct {
	repo     store.Repository
	locker   lock.Locker
	machine  *application.StateMachine
	issuer   *certificate.Issuer
	notifier *notification.Service
	recorder *audit.Recorder
	now      func() time.Time
	logger   logger.Logger
}

// NewDispatcher wires the dispatcher. notifier and recorder may be nil.
func NewDispatcher(
	repo store.Repository,
	locker lock.Locker,
	machine *application.StateMachine,
	issuer *certificate.Issuer,
	notifier *notification.Service,
	recorder *audit.Recorder,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		locker:   locker,
		machine:  machine,
		issuer:   issuer,
		notifier: notifier,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.WithFields(map[string]interface{}{"component": "payment-dispatcher"}),
	}
}

// Dispatch processes a verified payment exactly once. Completed payments
// replay their recorded outcome; pending and failed payments are rejected.
func (d *Dispatcher) Dispatch(ctx context.Context, paymentID string) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "payment.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	run, err := d.dispatch(ctx, paymentID)
	if err != nil {
		purpose := "unknown"
		if run != nil {
			purpose = run.payment.Purpose
		}
		metrics.PaymentDispatches.WithLabelValues(purpose, resultFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if run.outcome.AlreadyProcessed {
		metrics.PaymentDispatches.WithLabelValues(run.outcome.Purpose, resultReplayed).Inc()
		d.logger.Info("payment already processed", map[string]interface{}{
			"paymentId": run.payment.Number,
		})
		return run.outcome, nil
	}

	metrics.PaymentDispatches.WithLabelValues(run.outcome.Purpose, resultProcessed).Inc()
	d.logger.Info("payment dispatched", map[string]interface{}{
		"paymentId":     run.payment.Number,
		"purpose":       run.outcome.Purpose,
		"applicationId": run.outcome.ApplicationID,
		"certificateId": run.outcome.CertificateID,
	})
	d.recorder.Audit(ctx, models.AuditEntry{
		Actor:      models.SystemActor.Label(),
		ActorID:    models.SystemActor.ID,
		Role:       models.SystemActor.Role,
		Action:     "payment.dispatched",
		EntityType: "payment",
		EntityID:   run.payment.ID,
		Severity:   models.SeverityInfo,
		Metadata: map[string]interface{}{
			"purpose":        run.outcome.Purpose,
			"applicationId":  run.outcome.ApplicationID,
			"certificateId":  run.outcome.CertificateID,
			"transactionRef": run.payment.TransactionRef,
		},
	})
	for _, followUp := range run.followUps {
		followUp(ctx)
	}
	return run.outcome, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, paymentID string) (*dispatchRun, error) {
	key := lock.PaymentKey(paymentID)
	release, err := d.locker.Lock(ctx, key)
	if err != nil {
		return nil, errors.NewLockTimeoutError(key, err)
	}
	defer release()

	var run *dispatchRun
	err = d.repo.RunInTx(ctx, func(tx store.Store) error {
		p, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			if stderrors.Is(err, store.ErrNotFound) {
				return errors.NewNotFoundError("payment", paymentID)
			}
			return errors.NewQueryExecutionFailedError("get payment", err)
		}
		run = &dispatchRun{d: d, tx: tx, payment: p, outcome: &Outcome{PaymentID: p.ID, Purpose: p.Purpose}}

		switch p.Status {
		case models.PaymentCompleted:
			run.outcome.ApplicationID = p.OutcomeApplicationID
			run.outcome.CertificateID = p.OutcomeCertificateID
			run.outcome.AlreadyProcessed = true
			return nil
		case models.PaymentVerified:
		default:
			return errors.NewConflictError("payment", p.ID,
				fmt.Sprintf("payment is %s, not in a success state", p.Status))
		}

		purpose, err := ParsePurpose(p.Purpose)
		if err != nil {
			return errors.NewValidationError(err.Error())
		}
		if err := run.load(ctx); err != nil {
			return err
		}
		if err := purpose.Accept(ctx, run); err != nil {
			return err
		}

		now := d.now()
		p.ProcessedAt = &now
		p.OutcomeApplicationID = run.outcome.ApplicationID
		p.OutcomeCertificateID = run.outcome.CertificateID
		if err := tx.CompletePayment(ctx, p); err != nil {
			if stderrors.Is(err, store.ErrConflict) {
				return errors.NewConcurrentModificationError("payment", p.ID)
			}
			return errors.NewQueryExecutionFailedError("complete payment", err)
		}
		return nil
	})
	if err != nil {
		return run, errors.FromTransaction(err)
	}
	return run, nil
}

// dispatchRun carries one dispatch through the purpose visitor. Its
// methods run inside the transaction; followUps run after commit.
type dispatchRun struct {
	d         *Dispatcher
	tx        store.Store
	payment   *models.Payment
	company   *models.Company
	vendor    *models.Vendor
	outcome   *Outcome
	followUps []func(ctx context.Context)
}

var _ PurposeVisitor = (*dispatchRun)(nil)

func (r *dispatchRun) load(ctx context.Context) error {
	company, err := r.tx.GetCompany(ctx, r.payment.CompanyID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return errors.NewNotFoundError("company", r.payment.CompanyID)
		}
		return errors.NewQueryExecutionFailedError("get company", err)
	}
	r.company = company

	vendor, err := r.tx.GetVendorByCompany(ctx, company.ID)
	switch {
	case err == nil:
		r.vendor = vendor
	case !stderrors.Is(err, store.ErrNotFound):
		return errors.NewQueryExecutionFailedError("get vendor", err)
	}
	return nil
}

func (r *dispatchRun) ProcessingFee(ctx context.Context) error {
	return r.openApplication(ctx, models.ApplicationTypeNew, models.StepRegistrationPayment)
}

func (r *dispatchRun) Renewal(ctx context.Context) error {
	return r.openApplication(ctx, models.ApplicationTypeRenewal, models.StepRenewalPayment)
}

func (r *dispatchRun) openApplication(ctx context.Context, appType models.ApplicationType, step string) error {
	if err := r.markStep(ctx, step); err != nil {
		return err
	}

	app, err := r.d.machine.CreateWithin(ctx, r.tx, application.NewApplication{
		CompanyID:     r.company.ID,
		Type:          appType,
		Grade:         r.company.Grade,
		PaymentID:     r.payment.ID,
		PaymentStatus: models.PaymentStatusVerified,
		Notes:         fmt.Sprintf("Opened by payment %s", r.payment.Number),
		Actor:         models.SystemActor,
	})
	if err != nil {
		return err
	}
	r.outcome.ApplicationID = app.ID

	title := "Application submitted"
	if appType == models.ApplicationTypeRenewal {
		title = "Renewal application submitted"
	}
	r.after(func(ctx context.Context) {
		r.activity(ctx, "payment_processed",
			fmt.Sprintf("Payment %s received, application %s opened", r.payment.Number, app.Number))
		r.fanOut(ctx, notification.Event{
			Type:           notification.TypeApplicationCreated,
			Title:          title,
			Message:        fmt.Sprintf("%s: application %s is awaiting desk review.", r.company.Name, app.Number),
			ApplicationID:  app.ID,
			Reference:      app.ID,
			VendorPriority: models.PriorityLow,
			AdminPriority:  models.PriorityHigh,
		})
	})
	return nil
}

func (r *dispatchRun) CertificateFee(ctx context.Context) error {
	app, err := r.feeApplication(ctx)
	if err != nil {
		return err
	}
	if app.CertificateID != "" {
		return errors.NewConflictError("application", app.ID, "certificate already issued")
	}

	cert, err := r.d.issuer.IssueWithin(ctx, r.tx, certificate.IssueRequest{
		CompanyID:     r.company.ID,
		ApplicationID: app.ID,
	})
	if err != nil {
		return err
	}

	if r.vendor != nil {
		if err := r.tx.SetVendorCertificate(ctx, r.vendor.ID, cert.ID); err != nil {
			return errors.NewQueryExecutionFailedError("set vendor certificate", err)
		}
	}

	expected := app.Version
	app.PaymentStatus = models.PaymentStatusVerified
	app.CertificateID = cert.ID
	app.UpdatedAt = r.d.now()
	if err := r.tx.UpdateApplication(ctx, app, expected); err != nil {
		if stderrors.Is(err, store.ErrConflict) {
			return errors.NewConcurrentModificationError("application", app.ID)
		}
		return errors.NewQueryExecutionFailedError("update application", err)
	}

	r.outcome.ApplicationID = app.ID
	r.outcome.CertificateID = cert.ID
	r.after(func(ctx context.Context) {
		r.d.issuer.Publish(ctx, cert)
		r.activity(ctx, "certificate_issued",
			fmt.Sprintf("Certificate %s issued after payment %s", cert.Number, r.payment.Number))
		r.fanOut(ctx, notification.Event{
			Type:           notification.TypeCertificateIssued,
			Title:          "Certificate issued",
			Message:        fmt.Sprintf("Certificate %s for %s is valid until %s.", cert.Number, r.company.Name, cert.ValidUntil.Format("2006-01-02")),
			ApplicationID:  app.ID,
			Reference:      cert.ID,
			VendorPriority: models.PriorityHigh,
			AdminPriority:  models.PriorityMedium,
		})
	})
	return nil
}

// feeApplication resolves the "new" application a certificate fee pays for:
// the one the payment names, else the company's latest. The row stays locked
// until the dispatch transaction ends.
func (r *dispatchRun) feeApplication(ctx context.Context) (*models.Application, error) {
	id := r.payment.ApplicationID
	if id == "" {
		latest, err := r.tx.FindLatestApplication(ctx, r.company.ID, models.ApplicationTypeNew)
		if err != nil {
			if stderrors.Is(err, store.ErrNotFound) {
				return nil, errors.NewNotFoundError("application", r.company.ID)
			}
			return nil, errors.NewQueryExecutionFailedError("find application", err)
		}
		id = latest.ID
	}

	app, err := r.tx.GetApplicationForUpdate(ctx, id)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NewNotFoundError("application", id)
		}
		return nil, errors.NewQueryExecutionFailedError("get application", err)
	}
	if app.CompanyID != r.company.ID {
		return nil, errors.NewConflictError("application", app.ID, "application belongs to another company")
	}
	if app.Type != models.ApplicationTypeNew {
		return nil, errors.NewConflictError("application", app.ID, "certificate fee requires a new application")
	}
	return app, nil
}

func (r *dispatchRun) Other(context.Context) error {
	return nil
}

func (r *dispatchRun) markStep(ctx context.Context, step string) error {
	if r.vendor == nil {
		return nil
	}
	if err := r.tx.MarkVendorStep(ctx, r.vendor.ID, step); err != nil {
		return errors.NewQueryExecutionFailedError("mark vendor step", err)
	}
	return nil
}

func (r *dispatchRun) after(fn func(ctx context.Context)) {
	r.followUps = append(r.followUps, fn)
}

func (r *dispatchRun) activity(ctx context.Context, activityType, description string) {
	if r.vendor == nil {
		return
	}
	r.d.recorder.Activity(ctx, models.VendorActivity{
		VendorID:     r.vendor.ID,
		ActivityType: activityType,
		Description:  description,
		Metadata: map[string]interface{}{
			"paymentId": r.payment.Number,
			"amount":    r.payment.Amount,
			"currency":  r.payment.Currency,
		},
	})
}

func (r *dispatchRun) fanOut(ctx context.Context, ev notification.Event) {
	if r.d.notifier == nil {
		return
	}
	if r.vendor != nil {
		ev.Vendor = notification.Recipient{ID: r.vendor.ID, Email: r.vendor.Email, Phone: r.vendor.Phone}
	}
	if _, err := r.d.notifier.FanOut(ctx, ev); err != nil {
		metrics.SecondaryFailures.WithLabelValues("notification").Inc()
		r.d.logger.Warn("notification fan-out incomplete", map[string]interface{}{
			"paymentId": r.payment.Number,
			"type":      ev.Type,
			"error":     err,
		})
	}
}
