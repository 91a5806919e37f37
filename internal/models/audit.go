package models

import "time"

type AuditSeverity string

const (
	SeverityInfo    AuditSeverity = "info"
	SeverityWarning AuditSeverity = "warning"
)

type AuditEntry struct {
	Actor      string                 `json:"actor"`
	ActorID    string                 `json:"actorId"`
	Role       string                 `json:"role"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Details    string                 `json:"details,omitempty"`
	Severity   AuditSeverity          `json:"severity"`
	IPAddress  string                 `json:"ipAddress,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

type VendorActivity struct {
	VendorID     string                 `json:"vendorId"`
	ActivityType string                 `json:"activityType"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}
