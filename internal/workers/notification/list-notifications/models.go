// internal/workers/notification/list-notifications/models.go
package listnotifications

import "certification-workers/internal/models"

type Input struct {
	Audience    string `json:"audience"`
	RecipientID string `json:"recipientId"`
	IsRead      *bool  `json:"isRead,omitempty"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
}

// Output counts always cover the whole recipient scope, independent of the
// isRead filter.
type Output struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int                    `json:"total"`
	Unread        int                    `json:"unread"`
	Critical      int                    `json:"critical"`
	High          int                    `json:"high"`
}
