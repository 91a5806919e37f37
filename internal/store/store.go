// Package store persists lifecycle entities. Services depend on Repository;
// Postgres is used in production and Memory in tests and local runs.
package store

import (
	"context"
	"errors"
	"time"

	"certification-workers/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by conditional updates whose precondition no
	// longer holds (stale version, payment no longer verified).
	ErrConflict = errors.New("conflict")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate")
)

type ApplicationStore interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	// GetApplicationForUpdate reads the row and locks it until the
	// surrounding transaction ends.
	GetApplicationForUpdate(ctx context.Context, id string) (*models.Application, error)
	CreateApplication(ctx context.Context, app *models.Application) error
	// UpdateApplication writes app if the stored version equals
	// expectedVersion, and bumps app.Version.
	UpdateApplication(ctx context.Context, app *models.Application, expectedVersion int) error
	FindLatestApplication(ctx context.Context, companyID string, appType models.ApplicationType) (*models.Application, error)
	ListOpenApplications(ctx context.Context) ([]*models.Application, error)
}

type PaymentStore interface {
	GetPaymentForUpdate(ctx context.Context, id string) (*models.Payment, error)
	// CompletePayment moves a verified payment to completed and records the
	// outcome. Returns ErrConflict if the payment is no longer verified.
	CompletePayment(ctx context.Context, p *models.Payment) error
}

type CertificateStore interface {
	CertificateNumberExists(ctx context.Context, number string) (bool, error)
	CreateCertificate(ctx context.Context, cert *models.Certificate) error
	GetCertificate(ctx context.Context, id string) (*models.Certificate, error)
	GetCertificateByNumber(ctx context.Context, number string) (*models.Certificate, error)
	CountCertificates(ctx context.Context, companyID string) (int, error)
	// ListExpiringCertificates returns approved certificates whose
	// ValidUntil is before the given instant.
	ListExpiringCertificates(ctx context.Context, before time.Time) ([]*models.Certificate, error)
	MarkCertificateExpired(ctx context.Context, id string) error
}

type CompanyStore interface {
	GetCompany(ctx context.Context, id string) (*models.Company, error)
	ListExpiringDocuments(ctx context.Context, before time.Time) ([]models.CompanyDocument, error)
}

type VendorStore interface {
	GetVendorByCompany(ctx context.Context, companyID string) (*models.Vendor, error)
	SetVendorCertificate(ctx context.Context, vendorID, certificateID string) error
	MarkVendorStep(ctx context.Context, vendorID, step string) error
}

type UserStore interface {
	ListUsersByRole(ctx context.Context, role string) ([]models.User, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, scope models.NotificationScope, filter models.NotificationFilter) ([]*models.Notification, error)
	CountNotifications(ctx context.Context, scope models.NotificationScope) (models.NotificationCounts, error)
	MarkAllRead(ctx context.Context, scope models.NotificationScope) (int64, error)
	DeleteNotifications(ctx context.Context, scope models.NotificationScope, ids []string) (int64, error)
	DeleteAllNotifications(ctx context.Context, scope models.NotificationScope) (int64, error)
	// NotificationExistsSince reports whether the scope already received a
	// notification of this type about reference at or after since.
	NotificationExistsSince(ctx context.Context, scope models.NotificationScope, notificationType, reference string, since time.Time) (bool, error)
}

// Store is the full set of entity operations, bound either to a connection
// or to a transaction.
type Store interface {
	ApplicationStore
	PaymentStore
	CertificateStore
	CompanyStore
	VendorStore
	UserStore
	NotificationStore
}

// Repository is a Store that can also run a function inside a transaction.
// Every write made through the Store passed to fn commits or rolls back
// together.
type Repository interface {
	Store
	RunInTx(ctx context.Context, fn func(tx Store) error) error
}

var (
	_ Repository = (*Postgres)(nil)
	_ Repository = (*Memory)(nil)
	_ Store      = (*pgStore)(nil)
	_ Store      = (*memState)(nil)
)
