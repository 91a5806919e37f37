// Package expiry runs the daily sweep over certificates and company
// documents that are about to expire or already have.
package expiry

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"certification-workers/internal/certificate"
	"certification-workers/internal/common/config"
	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/metrics"
	"certification-workers/internal/models"
	"certification-workers/internal/notification"
	"certification-workers/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("certification-workers/expiry")

const (
	kindCertificate = "certificate"
	kindDocument    = "document"
	stateExpiring   = "expiring"
	stateExpired    = "expired"
)

type Config struct {
	WarningDays int
	DedupWindow time.Duration
}

func ConfigFrom(cfg config.ExpiryConfig) Config {
	return Config{
		WarningDays: cfg.WarningDays,
		DedupWindow: time.Duration(cfg.DedupWindowHours) * time.Hour,
	}
}

type Report struct {
	ExpiredCertificates  int
	ExpiringCertificates int
	ExpiredDocuments     int
	ExpiringDocuments    int
	NotificationsSent    int
	DuplicatesSkipped    int
}

type Sweeper struct {
	store    store.Store
	notifier *notification.Service
	issuer   *certificate.Issuer
	config   Config
	logger   logger.Logger
}

// NewSweeper builds a Sweeper. issuer may be nil, in which case expired
// certificates are not re-indexed.
func NewSweeper(st store.Store, notifier *notification.Service, issuer *certificate.Issuer, cfg Config, log logger.Logger) *Sweeper {
	if cfg.WarningDays <= 0 {
		cfg.WarningDays = 30
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 24 * time.Hour
	}
	return &Sweeper{
		store:    st,
		notifier: notifier,
		issuer:   issuer,
		config:   cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "expiry-sweep"}),
	}
}

// Run flags everything that expires within the warning window of now.
// Approved certificates already past ValidUntil are marked expired. Each
// vendor hears about a given item at most once per dedup window.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (*Report, error) {
	ctx, span := tracer.Start(ctx, "expiry.Run")
	defer span.End()

	horizon := now.AddDate(0, 0, s.config.WarningDays)
	report := &Report{}

	certs, err := s.store.ListExpiringCertificates(ctx, horizon)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list expiring certificates", err)
	}
	for _, cert := range certs {
		if err := s.sweepCertificate(ctx, now, cert, report); err != nil {
			return report, err
		}
	}

	docs, err := s.store.ListExpiringDocuments(ctx, horizon)
	if err != nil {
		return report, errors.NewQueryExecutionFailedError("list expiring documents", err)
	}
	for _, doc := range docs {
		s.sweepDocument(ctx, now, doc, report)
	}

	span.SetAttributes(
		attribute.Int("expiry.certificates.expired", report.ExpiredCertificates),
		attribute.Int("expiry.notifications", report.NotificationsSent),
	)
	s.logger.Info("expiry sweep finished", map[string]interface{}{
		"expiredCertificates":  report.ExpiredCertificates,
		"expiringCertificates": report.ExpiringCertificates,
		"expiredDocuments":     report.ExpiredDocuments,
		"expiringDocuments":    report.ExpiringDocuments,
		"notificationsSent":    report.NotificationsSent,
		"duplicatesSkipped":    report.DuplicatesSkipped,
	})
	return report, nil
}

func (s *Sweeper) sweepCertificate(ctx context.Context, now time.Time, cert *models.Certificate, report *Report) error {
	in := notification.NewNotification{Reference: cert.ID, ApplicationID: cert.ApplicationID}

	if !cert.ValidUntil.After(now) {
		if err := s.store.MarkCertificateExpired(ctx, cert.ID); err != nil {
			return errors.NewQueryExecutionFailedError("expire certificate", err)
		}
		cert.Status = models.CertificateExpired
		report.ExpiredCertificates++
		metrics.ExpirySweepFlagged.WithLabelValues(kindCertificate, stateExpired).Inc()
		if s.issuer != nil {
			s.issuer.Publish(ctx, cert)
		}

		in.Type = notification.TypeCertificateExpired
		in.Priority = models.PriorityCritical
		in.Title = "Certificate expired"
		in.Message = fmt.Sprintf("Certificate %s for %s expired on %s.",
			cert.Number, cert.Snapshot.CompanyName, cert.ValidUntil.Format("2006-01-02"))
	} else {
		report.ExpiringCertificates++
		metrics.ExpirySweepFlagged.WithLabelValues(kindCertificate, stateExpiring).Inc()

		in.Type = notification.TypeCertificateExpiring
		in.Priority = models.PriorityHigh
		in.Title = "Certificate expiring soon"
		in.Message = fmt.Sprintf("Certificate %s for %s expires on %s. Submit a renewal to stay certified.",
			cert.Number, cert.Snapshot.CompanyName, cert.ValidUntil.Format("2006-01-02"))
	}

	s.notifyVendor(ctx, cert.CompanyID, in, report)
	return nil
}

func (s *Sweeper) sweepDocument(ctx context.Context, now time.Time, doc models.CompanyDocument, report *Report) {
	in := notification.NewNotification{Reference: doc.ID}

	if !doc.ExpiresAt.After(now) {
		report.ExpiredDocuments++
		metrics.ExpirySweepFlagged.WithLabelValues(kindDocument, stateExpired).Inc()
		in.Type = notification.TypeDocumentExpired
		in.Priority = models.PriorityCritical
		in.Title = "Company document expired"
		in.Message = fmt.Sprintf("Your %s expired on %s. Upload a current copy.", doc.DocumentType, doc.ExpiresAt.Format("2006-01-02"))
	} else {
		report.ExpiringDocuments++
		metrics.ExpirySweepFlagged.WithLabelValues(kindDocument, stateExpiring).Inc()
		in.Type = notification.TypeDocumentExpiring
		in.Priority = models.PriorityHigh
		in.Title = "Company document expiring soon"
		in.Message = fmt.Sprintf("Your %s expires on %s.", doc.DocumentType, doc.ExpiresAt.Format("2006-01-02"))
	}

	s.notifyVendor(ctx, doc.CompanyID, in, report)
}

// notifyVendor sends in to the company's vendor unless the same notice went
// out within the dedup window. The window ends at the notifier's clock, which
// also stamps the stored notifications, not at the sweep's as-of instant.
// Failures are logged and counted.
func (s *Sweeper) notifyVendor(ctx context.Context, companyID string, in notification.NewNotification, report *Report) {
	vendor, err := s.store.GetVendorByCompany(ctx, companyID)
	if err != nil {
		if !stderrors.Is(err, store.ErrNotFound) {
			s.secondaryFailure(in, err)
		}
		return
	}

	scope := models.NotificationScope{Audience: models.AudienceVendor, RecipientID: vendor.ID}
	since := s.notifier.Now().Add(-s.config.DedupWindow)
	seen, err := s.store.NotificationExistsSince(ctx, scope, in.Type, in.Reference, since)
	if err != nil {
		s.secondaryFailure(in, err)
		return
	}
	if seen {
		report.DuplicatesSkipped++
		return
	}

	in.Audience = models.AudienceVendor
	in.RecipientID = vendor.ID
	if _, err := s.notifier.Notify(ctx, in, notification.Recipient{ID: vendor.ID, Email: vendor.Email, Phone: vendor.Phone}); err != nil {
		s.secondaryFailure(in, err)
		return
	}
	report.NotificationsSent++
}

func (s *Sweeper) secondaryFailure(in notification.NewNotification, err error) {
	metrics.SecondaryFailures.WithLabelValues("notification").Inc()
	s.logger.Warn("expiry notification not sent", map[string]interface{}{
		"type":      in.Type,
		"reference": in.Reference,
		"error":     err,
	})
}
