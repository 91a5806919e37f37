// internal/workers/lifecycle/evaluate-sla-breach/models.go
package evaluateslabreach

type Input struct {
	AsOf string `json:"asOf"` // ISO 8601, defaults to now
}

type Output struct {
	Evaluated              int      `json:"evaluated"`
	BreachedApplicationIDs []string `json:"breachedApplicationIds"`
}
