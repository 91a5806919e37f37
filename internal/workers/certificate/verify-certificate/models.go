// internal/workers/certificate/verify-certificate/models.go
package verifycertificate

type Input struct {
	CertificateID string `json:"certificateId"`
}

type Output struct {
	Valid           bool     `json:"valid"`
	CertificateID   string   `json:"certificateId"`
	Status          string   `json:"status"`
	CompanyName     string   `json:"companyName"`
	Grade           string   `json:"grade,omitempty"`
	ApprovedSectors []string `json:"approvedSectors,omitempty"`
	IssuedAt        string   `json:"issuedAt"`
	ValidUntil      string   `json:"validUntil"`
}
