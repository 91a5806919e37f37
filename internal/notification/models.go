package notification

import "certification-workers/internal/models"

// MaxPageSize caps List regardless of the requested limit.
const MaxPageSize = 100

// Notification types emitted by the lifecycle engine.
const (
	TypeApplicationCreated  = "application_created"
	TypeApplicationApproved = "application_approved"
	TypeCertificateIssued   = "certificate_issued"
	TypePaymentProcessed    = "payment_processed"
	TypeSLABreach           = "sla_breach"
	TypeCertificateExpiring = "certificate_expiring"
	TypeCertificateExpired  = "certificate_expired"
	TypeDocumentExpiring    = "document_expiring"
	TypeDocumentExpired     = "document_expired"
)

type NewNotification struct {
	Audience      models.Audience
	RecipientID   string
	Type          string
	Title         string
	Message       string
	Priority      models.Priority
	ApplicationID string
	Reference     string
}

// Recipient is an addressable notification owner. Email and Phone are only
// used for outbound delivery.
type Recipient struct {
	ID    string
	Email string
	Phone string
}

// Event is one state change to announce to the vendor and every admin.
// A zero VendorPriority or AdminPriority skips that side.
type Event struct {
	Type           string
	Title          string
	Message        string
	ApplicationID  string
	Reference      string
	Vendor         Recipient
	VendorPriority models.Priority
	AdminPriority  models.Priority
}

type Page struct {
	Items []*models.Notification `json:"notifications"`
	models.NotificationCounts
}

// Selector picks the notifications to delete: explicit ids, or All.
type Selector struct {
	IDs []string
	All bool
}
