package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"certification-workers/internal/models"
)

const paymentColumns = `id, payment_number, company_id, application_id, amount, currency, status, purpose,
	transaction_ref, payment_date, processed_at, outcome_application_id, outcome_certificate_id`

func (s *pgStore) GetPaymentForUpdate(ctx context.Context, id string) (*models.Payment, error) {
	var (
		p           models.Payment
		processedAt sql.NullTime
	)
	err := s.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id).Scan(
		&p.ID, &p.Number, &p.CompanyID, &p.ApplicationID, &p.Amount, &p.Currency, &p.Status, &p.Purpose,
		&p.TransactionRef, &p.PaymentDate, &processedAt, &p.OutcomeApplicationID, &p.OutcomeCertificateID,
	)
	if err != nil {
		return nil, notFoundOr(err, "get payment")
	}
	if processedAt.Valid {
		t := processedAt.Time
		p.ProcessedAt = &t
	}
	return &p, nil
}

func (s *pgStore) CompletePayment(ctx context.Context, p *models.Payment) error {
	processedAt := time.Now().UTC()
	if p.ProcessedAt != nil {
		processedAt = *p.ProcessedAt
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE payments SET
			status = $2,
			processed_at = $3,
			outcome_application_id = $4,
			outcome_certificate_id = $5
		WHERE id = $1 AND status = $6`,
		p.ID, models.PaymentCompleted, processedAt, p.OutcomeApplicationID, p.OutcomeCertificateID, models.PaymentVerified,
	)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}

	p.Status = models.PaymentCompleted
	p.ProcessedAt = &processedAt
	return nil
}
