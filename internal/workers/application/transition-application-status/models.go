// internal/workers/application/transition-application-status/models.go
package transitionapplicationstatus

type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type Input struct {
	ApplicationID string `json:"applicationId"`
	NewStatus     string `json:"newStatus"`
	Notes         string `json:"notes"`
	Actor         *Actor `json:"actor,omitempty"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationNumber string `json:"applicationNumber"`
	PreviousStatus    string `json:"previousStatus"`
	CurrentStatus     string `json:"currentStatus"`
	Changed           bool   `json:"changed"`
	CertificateID     string `json:"certificateId,omitempty"` // public number, set on approval
}
