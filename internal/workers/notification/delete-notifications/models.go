// internal/workers/notification/delete-notifications/models.go
package deletenotifications

type Input struct {
	Audience        string   `json:"audience"`
	RecipientID     string   `json:"recipientId"`
	NotificationIDs []string `json:"notificationIds"`
	All             bool     `json:"all"`
}

type Output struct {
	Deleted int64 `json:"deleted"`
}
