// internal/models/application.go
package models

import "time"

type ApplicationStatus string

const (
	StatusPendingDeskReview      ApplicationStatus = "pending_desk_review"
	StatusForwardedToRegistrar   ApplicationStatus = "forwarded_to_registrar"
	StatusClarificationRequested ApplicationStatus = "clarification_requested"
	StatusPendingPayment         ApplicationStatus = "pending_payment"
	StatusSLABreach              ApplicationStatus = "sla_breach"
	StatusApproved               ApplicationStatus = "approved"
	StatusRejected               ApplicationStatus = "rejected"
)

// AllStatuses lists every status an application can hold.
var AllStatuses = []ApplicationStatus{
	StatusPendingDeskReview,
	StatusForwardedToRegistrar,
	StatusClarificationRequested,
	StatusPendingPayment,
	StatusSLABreach,
	StatusApproved,
	StatusRejected,
}

func (s ApplicationStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed out of s.
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type ApplicationType string

const (
	ApplicationTypeNew     ApplicationType = "new"
	ApplicationTypeRenewal ApplicationType = "renewal"
	ApplicationTypeUpgrade ApplicationType = "upgrade"
)

// PaymentStatusVerified is the only value written to Application.PaymentStatus.
const PaymentStatusVerified = "verified"

type TimelineEntry struct {
	Status    ApplicationStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Notes     string            `json:"notes,omitempty"`
	Actor     string            `json:"actor,omitempty"`
}

type Application struct {
	ID            string            `json:"id"`
	Number        string            `json:"applicationId"`
	CompanyID     string            `json:"companyId"`
	Type          ApplicationType   `json:"type"`
	CurrentStatus ApplicationStatus `json:"currentStatus"`
	Timeline      []TimelineEntry   `json:"timeline"`
	AssigneeID    string            `json:"assigneeId,omitempty"`
	AssigneeName  string            `json:"assigneeName,omitempty"`
	Grade         string            `json:"grade,omitempty"`
	SubmittedAt   time.Time         `json:"submittedAt"`
	PaymentID     string            `json:"paymentId,omitempty"`
	PaymentStatus string            `json:"paymentStatus,omitempty"`
	CertificateID string            `json:"certificateId,omitempty"`
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// LastEntry returns the most recent timeline entry. Every stored application
// has at least one.
func (a *Application) LastEntry() TimelineEntry {
	if len(a.Timeline) == 0 {
		return TimelineEntry{}
	}
	return a.Timeline[len(a.Timeline)-1]
}

// Append records a new status and keeps CurrentStatus in step with the timeline.
func (a *Application) Append(entry TimelineEntry) {
	a.Timeline = append(a.Timeline, entry)
	a.CurrentStatus = entry.Status
}

func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Timeline = append([]TimelineEntry(nil), a.Timeline...)
	return &cp
}
