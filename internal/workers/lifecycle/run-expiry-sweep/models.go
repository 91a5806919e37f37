// internal/workers/lifecycle/run-expiry-sweep/models.go
package runexpirysweep

type Input struct {
	AsOf string `json:"asOf"` // ISO 8601, defaults to now
}

type Output struct {
	ExpiredCertificates  int `json:"expiredCertificates"`
	ExpiringCertificates int `json:"expiringCertificates"`
	ExpiredDocuments     int `json:"expiredDocuments"`
	ExpiringDocuments    int `json:"expiringDocuments"`
	NotificationsSent    int `json:"notificationsSent"`
	DuplicatesSkipped    int `json:"duplicatesSkipped"`
}
