// Package notification creates, lists and clears per-audience notification
// records and fans lifecycle events out to vendors and admins.
package notification

import (
	"context"
	"fmt"
	"time"

	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/metrics"
	"certification-workers/internal/models"
	"certification-workers/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("certification-workers/notification")

// Directory resolves the admin recipients of fan-out notifications.
type Directory interface {
	Admins(ctx context.Context) ([]models.User, error)
}

// StoreDirectory reads admins from the user store.
type StoreDirectory struct {
	Users store.UserStore
}

func (d StoreDirectory) Admins(ctx context.Context) ([]models.User, error) {
	return d.Users.ListUsersByRole(ctx, models.RoleAdmin)
}

type Service struct {
	store     store.NotificationStore
	directory Directory
	delivery  *Deliverer
	pageSize  int
	now       func() time.Time
	logger    logger.Logger
}

type Option func(*Service)

// WithClock sets the source of CreatedAt timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service. delivery may be nil, in which case
// notifications are only stored.
func NewService(st store.NotificationStore, dir Directory, delivery *Deliverer, pageSize int, log logger.Logger, opts ...Option) *Service {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = 20
	}
	s := &Service{
		store:     st,
		directory: dir,
		delivery:  delivery,
		pageSize:  pageSize,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    log.WithFields(map[string]interface{}{"component": "notification"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the clock that stamps CreatedAt. Callers that look back over
// recent notifications anchor their window to it.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) Create(ctx context.Context, in NewNotification) (*models.Notification, error) {
	if err := validateScope(models.NotificationScope{Audience: in.Audience, RecipientID: in.RecipientID}); err != nil {
		return nil, err
	}
	if in.Priority.Rank() == 0 {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown priority %q", in.Priority))
	}
	if in.Type == "" || in.Title == "" {
		return nil, errors.NewValidationError("notification type and title are required")
	}

	n := &models.Notification{
		ID:            uuid.New().String(),
		Type:          in.Type,
		Title:         in.Title,
		Message:       in.Message,
		Audience:      in.Audience,
		RecipientID:   in.RecipientID,
		Priority:      in.Priority,
		ApplicationID: in.ApplicationID,
		Reference:     in.Reference,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, errors.NewDatabaseInsertFailedError("notification", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Audience), string(n.Priority)).Inc()
	return n, nil
}

// Notify creates a notification and attempts outbound delivery to to.
// Delivery failures are logged and never returned.
func (s *Service) Notify(ctx context.Context, in NewNotification, to Recipient) (*models.Notification, error) {
	n, err := s.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, n, to)
	return n, nil
}

// FanOut creates one vendor notification and one per admin. It keeps going
// after a failed recipient and returns the number created together with
// the first error.
func (s *Service) FanOut(ctx context.Context, ev Event) (int, error) {
	ctx, span := tracer.Start(ctx, "notification.FanOut")
	defer span.End()
	span.SetAttributes(attribute.String("notification.type", ev.Type))

	var (
		created  int
		firstErr error
	)
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if ev.VendorPriority != "" && ev.Vendor.ID != "" {
		_, err := s.Notify(ctx, NewNotification{
			Audience:      models.AudienceVendor,
			RecipientID:   ev.Vendor.ID,
			Type:          ev.Type,
			Title:         ev.Title,
			Message:       ev.Message,
			Priority:      ev.VendorPriority,
			ApplicationID: ev.ApplicationID,
			Reference:     ev.Reference,
		}, ev.Vendor)
		if err == nil {
			created++
		}
		keep(err)
	}

	if ev.AdminPriority == "" {
		return created, firstErr
	}
	admins, err := s.directory.Admins(ctx)
	if err != nil {
		keep(errors.NewQueryExecutionFailedError("list admins", err))
		return created, firstErr
	}
	for _, admin := range admins {
		_, err := s.Notify(ctx, NewNotification{
			Audience:      models.AudienceAdmin,
			RecipientID:   admin.ID,
			Type:          ev.Type,
			Title:         ev.Title,
			Message:       ev.Message,
			Priority:      ev.AdminPriority,
			ApplicationID: ev.ApplicationID,
			Reference:     ev.Reference,
		}, Recipient{ID: admin.ID, Email: admin.Email, Phone: admin.Phone})
		if err == nil {
			created++
		}
		keep(err)
	}
	return created, firstErr
}

// List returns one page of the scope's notifications. The counts cover the
// whole scope and ignore filter.IsRead.
func (s *Service) List(ctx context.Context, scope models.NotificationScope, filter models.NotificationFilter) (*Page, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if filter.Offset < 0 {
		return nil, errors.NewValidationError("offset must not be negative")
	}
	if filter.Limit <= 0 {
		filter.Limit = s.pageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}

	items, err := s.store.ListNotifications(ctx, scope, filter)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list notifications", err)
	}
	counts, err := s.store.CountNotifications(ctx, scope)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("count notifications", err)
	}
	if items == nil {
		items = []*models.Notification{}
	}
	return &Page{Items: items, NotificationCounts: counts}, nil
}

func (s *Service) MarkAllRead(ctx context.Context, scope models.NotificationScope) (int64, error) {
	if err := validateScope(scope); err != nil {
		return 0, err
	}
	n, err := s.store.MarkAllRead(ctx, scope)
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("mark notifications read", err)
	}
	return n, nil
}

// Delete removes the selected notifications of scope. Ids owned by another
// scope are ignored.
func (s *Service) Delete(ctx context.Context, scope models.NotificationScope, sel Selector) (int64, error) {
	if err := validateScope(scope); err != nil {
		return 0, err
	}

	var (
		n   int64
		err error
	)
	switch {
	case sel.All:
		n, err = s.store.DeleteAllNotifications(ctx, scope)
	case len(sel.IDs) > 0:
		n, err = s.store.DeleteNotifications(ctx, scope, sel.IDs)
	default:
		return 0, errors.NewValidationError("either notification ids or all must be given")
	}
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("delete notifications", err)
	}
	return n, nil
}

func (s *Service) deliver(ctx context.Context, n *models.Notification, to Recipient) {
	if s.delivery == nil {
		return
	}
	if err := s.delivery.Deliver(ctx, n, to); err != nil {
		metrics.SecondaryFailures.WithLabelValues("delivery").Inc()
		s.logger.Warn("notification delivery failed", map[string]interface{}{
			"notificationId": n.ID,
			"recipientId":    to.ID,
			"error":          err,
		})
	}
}

func validateScope(scope models.NotificationScope) error {
	switch scope.Audience {
	case models.AudienceVendor, models.AudienceAdmin, models.AudienceRegistrar, models.AudienceDeskOfficer:
		return nil
	default:
		return errors.NewValidationError(fmt.Sprintf("unknown audience %q", scope.Audience))
	}
}
