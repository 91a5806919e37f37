package models

const RoleAdmin = "admin"

// User is a back-office account. Only admins are read by this service, as
// notification recipients.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Actor identifies who triggered a change.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

var SystemActor = Actor{ID: "system", Name: "system", Role: "system"}

func (a Actor) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
