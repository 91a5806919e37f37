// internal/workers/certificate/issue-certificate/models.go
package issuecertificate

type Input struct {
	CompanyID     string `json:"companyId"`
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	CertificateID       string `json:"certificateId"`
	CertificateRecordID string `json:"certificateRecordId"`
	IssuedAt            string `json:"issuedAt"`   // ISO 8601
	ValidUntil          string `json:"validUntil"` // ISO 8601
}
