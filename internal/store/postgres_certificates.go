package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"certification-workers/internal/models"
)

const certificateColumns = `id, certificate_number, company_id, contractor_id, application_id, snapshot,
	status, issued_at, valid_until`

func scanCertificate(row scanner) (*models.Certificate, error) {
	var (
		cert     models.Certificate
		snapshot []byte
	)
	err := row.Scan(
		&cert.ID, &cert.Number, &cert.CompanyID, &cert.ContractorID, &cert.ApplicationID, &snapshot,
		&cert.Status, &cert.IssuedAt, &cert.ValidUntil,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &cert.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot of %s: %w", cert.ID, err)
	}
	return &cert, nil
}

func (s *pgStore) CertificateNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM certificates WHERE certificate_number = $1)`, number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check certificate number: %w", err)
	}
	return exists, nil
}

func (s *pgStore) CreateCertificate(ctx context.Context, cert *models.Certificate) error {
	snapshot, err := json.Marshal(cert.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	// A taken number reports ErrDuplicate without aborting the transaction.
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO certificates (`+certificateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (certificate_number) DO NOTHING`,
		cert.ID, cert.Number, cert.CompanyID, cert.ContractorID, cert.ApplicationID, snapshot,
		cert.Status, cert.IssuedAt, cert.ValidUntil,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *pgStore) GetCertificate(ctx context.Context, id string) (*models.Certificate, error) {
	cert, err := scanCertificate(s.q.QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "get certificate")
	}
	return cert, nil
}

func (s *pgStore) GetCertificateByNumber(ctx context.Context, number string) (*models.Certificate, error) {
	cert, err := scanCertificate(s.q.QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE certificate_number = $1`, number))
	if err != nil {
		return nil, notFoundOr(err, "get certificate by number")
	}
	return cert, nil
}

func (s *pgStore) CountCertificates(ctx context.Context, companyID string) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates WHERE company_id = $1`, companyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return n, nil
}

func (s *pgStore) ListExpiringCertificates(ctx context.Context, before time.Time) ([]*models.Certificate, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+certificateColumns+` FROM certificates
		WHERE status = $1 AND valid_until < $2
		ORDER BY valid_until`, models.CertificateApproved, before)
	if err != nil {
		return nil, fmt.Errorf("list expiring certificates: %w", err)
	}
	defer rows.Close()

	var out []*models.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, cert)
	}
	return out, rows.Err()
}

func (s *pgStore) MarkCertificateExpired(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE certificates SET status = $2 WHERE id = $1`, id, models.CertificateExpired)
	if err != nil {
		return fmt.Errorf("expire certificate: %w", err)
	}
	return requireAffected(res, "expire certificate")
}
