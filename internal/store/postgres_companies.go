package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"certification-workers/internal/models"

	"github.com/lib/pq"
)

func (s *pgStore) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	var c models.Company
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, registration_number, tax_id, address, sectors, grade, vendor_id
		FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.RegistrationNumber, &c.TaxID, &c.Address, pq.Array(&c.Sectors), &c.Grade, &c.VendorID)
	if err != nil {
		return nil, notFoundOr(err, "get company")
	}
	return &c, nil
}

func (s *pgStore) ListExpiringDocuments(ctx context.Context, before time.Time) ([]models.CompanyDocument, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, company_id, document_type, expires_at
		FROM company_documents
		WHERE expires_at < $1
		ORDER BY expires_at`, before)
	if err != nil {
		return nil, fmt.Errorf("list expiring documents: %w", err)
	}
	defer rows.Close()

	var out []models.CompanyDocument
	for rows.Next() {
		var d models.CompanyDocument
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.DocumentType, &d.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *pgStore) GetVendorByCompany(ctx context.Context, companyID string) (*models.Vendor, error) {
	var (
		v        models.Vendor
		progress []byte
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, company_id, email, phone, certificate_id, progress
		FROM vendors WHERE company_id = $1`, companyID,
	).Scan(&v.ID, &v.CompanyID, &v.Email, &v.Phone, &v.CertificateID, &progress)
	if err != nil {
		return nil, notFoundOr(err, "get vendor")
	}
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &v.Progress); err != nil {
			return nil, fmt.Errorf("decode vendor progress: %w", err)
		}
	}
	return &v, nil
}

func (s *pgStore) SetVendorCertificate(ctx context.Context, vendorID, certificateID string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE vendors SET certificate_id = $2 WHERE id = $1`, vendorID, certificateID)
	if err != nil {
		return fmt.Errorf("set vendor certificate: %w", err)
	}
	return requireAffected(res, "set vendor certificate")
}

func (s *pgStore) MarkVendorStep(ctx context.Context, vendorID, step string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE vendors
		SET progress = progress || jsonb_build_object($2::text, $3::text)
		WHERE id = $1`, vendorID, step, models.StepComplete)
	if err != nil {
		return fmt.Errorf("mark vendor step: %w", err)
	}
	return requireAffected(res, "mark vendor step")
}

func (s *pgStore) ListUsersByRole(ctx context.Context, role string) ([]models.User, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, role, email, phone
		FROM users WHERE role = $1
		ORDER BY name`, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.Email, &u.Phone); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
