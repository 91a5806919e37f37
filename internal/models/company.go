package models

import "time"

// Vendor progress steps written by payment dispatch.
const (
	StepRegistrationPayment = "registration_payment"
	StepRenewalPayment      = "renewal_payment"
)

const StepComplete = "complete"

type Company struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	RegistrationNumber string   `json:"registrationNumber"`
	TaxID              string   `json:"taxId"`
	Address            string   `json:"address"`
	Sectors            []string `json:"sectors"`
	Grade              string   `json:"grade"`
	VendorID           string   `json:"vendorId,omitempty"`
}

func (c *Company) Clone() *Company {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Sectors = append([]string(nil), c.Sectors...)
	return &cp
}

type CompanyDocument struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"companyId"`
	DocumentType string    `json:"documentType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type Vendor struct {
	ID            string            `json:"id"`
	CompanyID     string            `json:"companyId"`
	Email         string            `json:"email,omitempty"`
	Phone         string            `json:"phone,omitempty"`
	CertificateID string            `json:"certificateId,omitempty"`
	Progress      map[string]string `json:"progress,omitempty"`
}

func (v *Vendor) Clone() *Vendor {
	if v == nil {
		return nil
	}
	cp := *v
	if v.Progress != nil {
		cp.Progress = make(map[string]string, len(v.Progress))
		for k, s := range v.Progress {
			cp.Progress[k] = s
		}
	}
	return &cp
}
