package models

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentVerified  PaymentStatus = "verified"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

const (
	PurposeProcessingFee  = "processing-fee"
	PurposeRenewal        = "renewal"
	PurposeCertificateFee = "certificate-fee"
	PurposeOther          = "other"
)

type Payment struct {
	ID             string        `json:"id"`
	Number         string        `json:"paymentId"`
	CompanyID      string        `json:"companyId"`
	ApplicationID  string        `json:"applicationId,omitempty"`
	Amount         int64         `json:"amount"`
	Currency       string        `json:"currency"`
	Status         PaymentStatus `json:"status"`
	Purpose        string        `json:"purpose"`
	TransactionRef string        `json:"transactionRef"`
	PaymentDate    time.Time     `json:"paymentDate"`
	ProcessedAt    *time.Time    `json:"processedAt,omitempty"`

	// Recorded when the payment is dispatched, replayed on redelivery.
	OutcomeApplicationID string `json:"outcomeApplicationId,omitempty"`
	OutcomeCertificateID string `json:"outcomeCertificateId,omitempty"`
}
