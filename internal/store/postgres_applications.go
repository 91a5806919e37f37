package store

import (
	"context"
	"encoding/json"
	"fmt"

	"certification-workers/internal/models"
)

const applicationColumns = `id, application_number, company_id, type, current_status, timeline,
	assignee_id, assignee_name, grade, submitted_at, payment_id, payment_status,
	certificate_id, version, created_at, updated_at`

func scanApplication(row scanner) (*models.Application, error) {
	var (
		app      models.Application
		timeline []byte
	)
	err := row.Scan(
		&app.ID, &app.Number, &app.CompanyID, &app.Type, &app.CurrentStatus, &timeline,
		&app.AssigneeID, &app.AssigneeName, &app.Grade, &app.SubmittedAt, &app.PaymentID, &app.PaymentStatus,
		&app.CertificateID, &app.Version, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(timeline, &app.Timeline); err != nil {
		return nil, fmt.Errorf("decode timeline of %s: %w", app.ID, err)
	}
	return &app, nil
}

func (s *pgStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if err != nil {
		return nil, notFoundOr(err, "get application")
	}
	return app, nil
}

func (s *pgStore) GetApplicationForUpdate(ctx context.Context, id string) (*models.Application, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, id)
	app, err := scanApplication(row)
	if err != nil {
		return nil, notFoundOr(err, "get application for update")
	}
	return app, nil
}

func (s *pgStore) CreateApplication(ctx context.Context, app *models.Application) error {
	timeline, err := json.Marshal(app.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	if app.Version == 0 {
		app.Version = 1
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (application_number) DO NOTHING`,
		app.ID, app.Number, app.CompanyID, app.Type, app.CurrentStatus, timeline,
		app.AssigneeID, app.AssigneeName, app.Grade, app.SubmittedAt, app.PaymentID, app.PaymentStatus,
		app.CertificateID, app.Version, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *pgStore) UpdateApplication(ctx context.Context, app *models.Application, expectedVersion int) error {
	timeline, err := json.Marshal(app.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE applications SET
			current_status = $3,
			timeline = $4,
			assignee_id = $5,
			assignee_name = $6,
			grade = $7,
			payment_id = $8,
			payment_status = $9,
			certificate_id = $10,
			updated_at = $11,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		app.ID, expectedVersion,
		app.CurrentStatus, timeline, app.AssigneeID, app.AssigneeName, app.Grade,
		app.PaymentID, app.PaymentStatus, app.CertificateID, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM applications WHERE id = $1)`, app.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update application: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	app.Version = expectedVersion + 1
	return nil
}

func (s *pgStore) FindLatestApplication(ctx context.Context, companyID string, appType models.ApplicationType) (*models.Application, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE company_id = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1`, companyID, appType)
	app, err := scanApplication(row)
	if err != nil {
		return nil, notFoundOr(err, "find latest application")
	}
	return app, nil
}

func (s *pgStore) ListOpenApplications(ctx context.Context) ([]*models.Application, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE current_status NOT IN ($1, $2)
		ORDER BY created_at`, models.StatusApproved, models.StatusRejected)
	if err != nil {
		return nil, fmt.Errorf("list open applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	return out, rows.Err()
}
