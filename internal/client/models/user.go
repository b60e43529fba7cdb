// Package models defines client-side data models used by the Goalie CLI.
package models

// Credentials is the login form payload. It is submitted once and never
// persisted.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up form payload. Registering does not open a
// session; the caller still has to log in afterwards.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is the account record returned by the server. It is cached next to the
// token for display only and is refreshed on every startup validation.
type User struct {
	// ID is the server-assigned identifier.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Email is the login identifier.
	Email string `json:"email"`

	// Profile holds any additional profile fields the server sends along.
	Profile map[string]any `json:"profile,omitempty"`
}

// DisplayName returns the best human-readable label for u.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
