// Package certificate issues contractor certificates with collision-free
// numbers and keeps the verification index in step.
package certificate

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"certification-workers/internal/common/config"
	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/idgen"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/metrics"
	"certification-workers/internal/models"
	"certification-workers/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("certification-workers/certificate")

type Config struct {
	Prefix       string
	MaxAttempts  int
	ValidityDays int
}

func ConfigFrom(cfg config.LifecycleConfig) Config {
	return Config{
		Prefix:       cfg.CertificatePrefix,
		MaxAttempts:  cfg.MaxIDAttempts,
		ValidityDays: cfg.CertificateValidity,
	}
}

func DefaultConfig() Config {
	return Config{Prefix: "CERT", MaxAttempts: 10, ValidityDays: 365}
}

type IssueRequest struct {
	CompanyID     string
	ApplicationID string
}

type Issuer struct {
	repo   store.Repository
	ids    idgen.Generator
	index  Index
	config Config
	now    func() time.Time
	logger logger.Logger
}

type Option func(*Issuer)

func WithGenerator(g idgen.Generator) Option {
	return func(i *Issuer) { i.ids = g }
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithIndex enables search indexing and index-first verification.
func WithIndex(index Index) Option {
	return func(i *Issuer) { i.index = index }
}

func NewIssuer(repo store.Repository, cfg Config, log logger.Logger, opts ...Option) *Issuer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.ValidityDays <= 0 {
		cfg.ValidityDays = DefaultConfig().ValidityDays
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultConfig().Prefix
	}
	i := &Issuer{
		repo:   repo,
		ids:    idgen.NewBase36(),
		config: cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.WithFields(map[string]interface{}{"component": "certificate-issuer"}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue creates a certificate in its own transaction and indexes it once
// committed.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*models.Certificate, error) {
	var cert *models.Certificate
	err := i.repo.RunInTx(ctx, func(tx store.Store) error {
		var err error
		cert, err = i.IssueWithin(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, errors.FromTransaction(err)
	}
	i.Publish(ctx, cert)
	return cert, nil
}

// IssueWithin creates a certificate using tx. Nothing is indexed; callers
// call Publish after their transaction commits.
func (i *Issuer) IssueWithin(ctx context.Context, tx store.Store, req IssueRequest) (*models.Certificate, error) {
	ctx, span := tracer.Start(ctx, "certificate.Issue")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", req.CompanyID))

	cert, err := i.issue(ctx, tx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("certificate.number", cert.Number))
	return cert, nil
}

func (i *Issuer) issue(ctx context.Context, tx store.Store, req IssueRequest) (*models.Certificate, error) {
	company, err := tx.GetCompany(ctx, req.CompanyID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NewNotFoundError("company", req.CompanyID)
		}
		return nil, errors.NewQueryExecutionFailedError("get company", err)
	}

	var contractorID string
	vendor, err := tx.GetVendorByCompany(ctx, company.ID)
	switch {
	case err == nil:
		contractorID = vendor.ID
	case !stderrors.Is(err, store.ErrNotFound):
		return nil, errors.NewQueryExecutionFailedError("get vendor", err)
	}

	issuedAt := i.now()
	for attempt := 1; attempt <= i.config.MaxAttempts; attempt++ {
		suffix, err := i.ids.Generate(idgen.SuffixLength)
		if err != nil {
			return nil, fmt.Errorf("generate certificate number: %w", err)
		}
		number := idgen.Number(i.config.Prefix, issuedAt, suffix)

		taken, err := tx.CertificateNumberExists(ctx, number)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("check certificate number", err)
		}
		if taken {
			i.collision(number, attempt)
			continue
		}

		cert := &models.Certificate{
			ID:            uuid.New().String(),
			Number:        number,
			CompanyID:     company.ID,
			ContractorID:  contractorID,
			ApplicationID: req.ApplicationID,
			Snapshot: models.CertificateSnapshot{
				CompanyName:        company.Name,
				RegistrationNumber: company.RegistrationNumber,
				TaxID:              company.TaxID,
				Address:            company.Address,
				ApprovedSectors:    append([]string(nil), company.Sectors...),
				Grade:              company.Grade,
			},
			Status:     models.CertificateApproved,
			IssuedAt:   issuedAt,
			ValidUntil: issuedAt.AddDate(0, 0, i.config.ValidityDays),
		}
		if err := tx.CreateCertificate(ctx, cert); err != nil {
			if stderrors.Is(err, store.ErrDuplicate) {
				i.collision(number, attempt)
				continue
			}
			return nil, errors.NewDatabaseInsertFailedError("certificate", err)
		}

		metrics.CertificatesIssued.Inc()
		i.logger.Info("certificate issued", map[string]interface{}{
			"certificateId": cert.Number,
			"companyId":     company.ID,
			"applicationId": req.ApplicationID,
			"attempts":      attempt,
		})
		return cert, nil
	}

	return nil, errors.NewConflictError("certificate", req.CompanyID,
		fmt.Sprintf("no unique certificate id after %d attempts", i.config.MaxAttempts))
}

func (i *Issuer) collision(number string, attempt int) {
	metrics.CertificateIDCollisions.Inc()
	i.logger.Warn("certificate id collision", map[string]interface{}{
		"certificateId": number,
		"attempt":       attempt,
	})
}

// Publish writes cert to the verification index. Failures are logged and
// counted only.
func (i *Issuer) Publish(ctx context.Context, cert *models.Certificate) {
	if i.index == nil || cert == nil {
		return
	}
	if err := i.index.Put(ctx, cert); err != nil {
		metrics.SecondaryFailures.WithLabelValues("index").Inc()
		i.logger.Warn("certificate not indexed", map[string]interface{}{
			"certificateId": cert.Number,
			"error":         err,
		})
	}
}

// Verify looks a certificate up by number, index first, then the store.
func (i *Issuer) Verify(ctx context.Context, number string) (*models.Certificate, error) {
	ctx, span := tracer.Start(ctx, "certificate.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("certificate.number", number))

	if i.index != nil {
		cert, err := i.index.Get(ctx, number)
		if err == nil {
			return cert, nil
		}
		if !stderrors.Is(err, ErrNotIndexed) {
			i.logger.Warn("certificate index lookup failed", map[string]interface{}{
				"certificateId": number,
				"error":         err,
			})
		}
	}

	cert, err := i.repo.GetCertificateByNumber(ctx, number)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NewNotFoundError("certificate", number)
		}
		return nil, errors.NewQueryExecutionFailedError("get certificate", err)
	}
	return cert, nil
}
