// internal/workers/notification/mark-notifications-read/models.go
package marknotificationsread

type Input struct {
	Audience    string `json:"audience"`
	RecipientID string `json:"recipientId"`
}

type Output struct {
	Updated int64 `json:"updated"`
}
