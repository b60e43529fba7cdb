package models

// Status is the authentication status of the current process.
type Status int

const (
	// StatusUninitialized is the state before startup validation ran.
	StatusUninitialized Status = iota
	// StatusValidating means a stored token is being checked against the server.
	StatusValidating
	// StatusAuthenticated means the stored token was confirmed by the server.
	StatusAuthenticated
	// StatusUnauthenticated means no usable token is held.
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusValidating:
		return "validating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Settled reports whether s is a final outcome of startup validation.
func (s Status) Settled() bool {
	return s == StatusAuthenticated || s == StatusUnauthenticated
}

// AuthState is the in-memory session snapshot handed to views.
type AuthState struct {
	Status Status

	// User is the cached account record; nil unless Status is StatusAuthenticated.
	User *User

	// Error is the message of the last failed session-establishing attempt.
	Error string

	// Busy is set while a login request is in flight.
	Busy bool
}

// RedirectReason annotates a redirect to the entry view.
type RedirectReason string

const (
	// ReasonNone is a plain visit to the entry view.
	ReasonNone RedirectReason = ""
	// ReasonProtectedRoute means a protected view was requested without a session.
	ReasonProtectedRoute RedirectReason = "login_required"
	// ReasonSessionExpired means the server rejected the stored token mid-session.
	ReasonSessionExpired RedirectReason = "session_expired"
)
