// internal/workers/payment/dispatch-payment-outcome/models.go
package dispatchpaymentoutcome

type Input struct {
	PaymentID string `json:"paymentId"`
}

type Output struct {
	PaymentID        string `json:"paymentId"`
	Purpose          string `json:"purpose"`
	ApplicationID    string `json:"applicationId,omitempty"`
	CertificateID    string `json:"certificateId,omitempty"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
}
