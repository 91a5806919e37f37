// internal/models/notification.go
package models

import "time"

type Audience string

const (
	AudienceVendor      Audience = "vendor"
	AudienceAdmin       Audience = "admin"
	AudienceRegistrar   Audience = "registrar"
	AudienceDeskOfficer Audience = "desk-officer"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities from low (1) to critical (4). Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) AtLeast(threshold Priority) bool {
	return p.Rank() >= threshold.Rank() && p.Rank() > 0
}

type Notification struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Audience      Audience  `json:"audience"`
	RecipientID   string    `json:"recipientId,omitempty"`
	Priority      Priority  `json:"priority"`
	IsRead        bool      `json:"isRead"`
	ApplicationID string    `json:"applicationId,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NotificationScope identifies the owner of a notification set. Every read
// and every mutation is restricted to one scope.
type NotificationScope struct {
	Audience    Audience `json:"audience"`
	RecipientID string   `json:"recipientId,omitempty"`
}

type NotificationFilter struct {
	IsRead *bool `json:"isRead,omitempty"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// NotificationCounts are aggregates over a whole scope, regardless of any
// read filter applied to the listed items.
type NotificationCounts struct {
	Total    int `json:"total"`
	Unread   int `json:"unread"`
	Critical int `json:"critical"`
	High     int `json:"high"`
}
