package models

import "time"

type CertificateStatus string

const (
	CertificateApproved CertificateStatus = "approved"
	CertificateExpired  CertificateStatus = "expired"
	CertificateRevoked  CertificateStatus = "revoked"
)

// CertificateSnapshot holds company data copied at issuance. Later edits to
// the company do not change an issued certificate.
type CertificateSnapshot struct {
	CompanyName        string   `json:"companyName"`
	RegistrationNumber string   `json:"registrationNumber"`
	TaxID              string   `json:"taxId"`
	Address            string   `json:"address"`
	ApprovedSectors    []string `json:"approvedSectors"`
	Grade              string   `json:"grade"`
}

type Certificate struct {
	ID            string              `json:"id"`
	Number        string              `json:"certificateId"`
	CompanyID     string              `json:"companyId"`
	ContractorID  string              `json:"contractorId,omitempty"`
	ApplicationID string              `json:"applicationId,omitempty"`
	Snapshot      CertificateSnapshot `json:"snapshot"`
	Status        CertificateStatus   `json:"status"`
	IssuedAt      time.Time           `json:"issuedAt"`
	ValidUntil    time.Time           `json:"validUntil"`
}

func (c *Certificate) Clone() *Certificate {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Snapshot.ApprovedSectors = append([]string(nil), c.Snapshot.ApprovedSectors...)
	return &cp
}

// ActiveAt reports whether the certificate is approved and unexpired at t.
func (c *Certificate) ActiveAt(t time.Time) bool {
	return c.Status == CertificateApproved && t.Before(c.ValidUntil)
}
