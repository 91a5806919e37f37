package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"certification-workers/internal/models"

	"github.com/lib/pq"
)

const notificationColumns = `id, type, title, message, audience, recipient_id, priority, is_read,
	application_id, reference, created_at`

func (s *pgStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.Type, n.Title, n.Message, n.Audience, n.RecipientID, n.Priority, n.IsRead,
		n.ApplicationID, n.Reference, n.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *pgStore) ListNotifications(ctx context.Context, scope models.NotificationScope, filter models.NotificationFilter) ([]*models.Notification, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE audience = $1 AND recipient_id = $2`)
	args := []interface{}{scope.Audience, scope.RecipientID}

	if filter.IsRead != nil {
		args = append(args, *filter.IsRead)
		fmt.Fprintf(&b, ` AND is_read = $%d`, len(args))
	}
	b.WriteString(` ORDER BY created_at DESC, id`)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&b, ` OFFSET $%d`, len(args))
	}

	rows, err := s.q.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []*models.Notification{}
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.Audience, &n.RecipientID, &n.Priority, &n.IsRead,
			&n.ApplicationID, &n.Reference, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *pgStore) CountNotifications(ctx context.Context, scope models.NotificationScope) (models.NotificationCounts, error) {
	var c models.NotificationCounts
	err := s.q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT is_read),
			COUNT(*) FILTER (WHERE priority = $3),
			COUNT(*) FILTER (WHERE priority = $4)
		FROM notifications
		WHERE audience = $1 AND recipient_id = $2`,
		scope.Audience, scope.RecipientID, models.PriorityCritical, models.PriorityHigh,
	).Scan(&c.Total, &c.Unread, &c.Critical, &c.High)
	if err != nil {
		return c, fmt.Errorf("count notifications: %w", err)
	}
	return c, nil
}

func (s *pgStore) MarkAllRead(ctx context.Context, scope models.NotificationScope) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE audience = $1 AND recipient_id = $2 AND NOT is_read`,
		scope.Audience, scope.RecipientID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (s *pgStore) DeleteNotifications(ctx context.Context, scope models.NotificationScope, ids []string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE audience = $1 AND recipient_id = $2 AND id = ANY($3)`,
		scope.Audience, scope.RecipientID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return res.RowsAffected()
}

func (s *pgStore) DeleteAllNotifications(ctx context.Context, scope models.NotificationScope) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM notifications WHERE audience = $1 AND recipient_id = $2`,
		scope.Audience, scope.RecipientID)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return res.RowsAffected()
}

func (s *pgStore) NotificationExistsSince(ctx context.Context, scope models.NotificationScope, notificationType, reference string, since time.Time) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notifications
			WHERE audience = $1 AND recipient_id = $2 AND type = $3 AND reference = $4 AND created_at >= $5
		)`, scope.Audience, scope.RecipientID, notificationType, reference, since,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent notification: %w", err)
	}
	return exists, nil
}
