package client

import (
	"context"

	"github.com/dmitrijs2005/goalie/internal/client/models"
)

// Scope tells the request layer how to classify a failure. It is set by the
// caller explicitly; the request path plays no part in classification.
type Scope int

const (
	// ScopeSession is an ordinary request made on behalf of a session. A 401
	// means the stored token is no longer usable.
	ScopeSession Scope = iota
	// ScopeLogin is a credential submission. Any rejection belongs to the
	// login form; no session exists yet.
	ScopeLogin
	// ScopeRegister is an account creation request.
	ScopeRegister
)

// Request describes one outbound API call.
type Request struct {
	Method string
	Path   string

	// Body, when non-nil, is sent as JSON.
	Body any

	Scope Scope
}

// LoginResult is the outcome of a successful credential submission.
type LoginResult struct {
	Token string
	User  *models.User
}

// RegistrationResult is the server's confirmation of a new account.
type RegistrationResult struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// TokenSource gives the request layer read-only access to the stored token.
type TokenSource interface {
	Get(ctx context.Context) (string, error)
}

// SessionExpiredEvent reports that the server rejected Token on an ordinary
// request.
type SessionExpiredEvent struct {
	Token     string
	Method    string
	Path      string
	RequestID string
}

// SessionExpiredHandler receives SessionExpiredEvents. It is called
// synchronously, before the failing request returns.
type SessionExpiredHandler func(ctx context.Context, ev SessionExpiredEvent)

// Client is the API surface used by the session manager.
type Client interface {
	Login(ctx context.Context, cred models.Credentials) (*LoginResult, error)
	Register(ctx context.Context, reg models.Registration) (*RegistrationResult, error)
	CurrentUser(ctx context.Context) (*models.User, error)
	Do(ctx context.Context, req Request, out any) error
}
