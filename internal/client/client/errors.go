package client

import (
	"errors"
	"strings"
)

// Kind classifies a failed request. Callers branch on it instead of parsing
// status codes: rejections belong to the form that sent the request,
// KindSessionExpired is handled centrally, server and network failures are
// reported with a retry hint.
type Kind int

const (
	KindUnknown Kind = iota
	KindLoginRejected
	KindRegistrationRejected
	KindSessionExpired
	KindServer
	KindNetwork
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindLoginRejected:
		return "login rejected"
	case KindRegistrationRejected:
		return "registration rejected"
	case KindSessionExpired:
		return "session expired"
	case KindServer:
		return "server error"
	case KindNetwork:
		return "network error"
	case KindRejected:
		return "request rejected"
	default:
		return "unknown error"
	}
}

// UserMessage is the generic text shown to a user for k.
func (k Kind) UserMessage() string {
	switch k {
	case KindLoginRejected:
		return "Invalid email or password."
	case KindRegistrationRejected:
		return "Registration failed."
	case KindSessionExpired:
		return "Your session has expired. Please log in again."
	case KindServer:
		return "The server had a problem. Please try again later."
	case KindNetwork:
		return "Could not reach the server. Please check your connection."
	case KindRejected:
		return "The request was rejected."
	default:
		return "Something went wrong."
	}
}

// Error is the error returned by every failed HTTPClient call.
type Error struct {
	Kind Kind

	// StatusCode is the HTTP status, zero for transport failures.
	StatusCode int

	// Message is the server-provided detail, if any.
	Message string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrLoginRejected        = &Error{Kind: KindLoginRejected}
	ErrRegistrationRejected = &Error{Kind: KindRegistrationRejected}
	ErrSessionExpired       = &Error{Kind: KindSessionExpired}
	ErrServer               = &Error{Kind: KindServer}
	ErrNetwork              = &Error{Kind: KindNetwork}
	ErrRejected             = &Error{Kind: KindRejected}
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage returns the text a form should display for err. Rejections
// prefer the server's own explanation; other kinds use the generic message.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return KindUnknown.UserMessage()
	}
	switch e.Kind {
	case KindLoginRejected, KindRegistrationRejected, KindRejected:
		if e.Message != "" {
			return e.Message
		}
	}
	return e.Kind.UserMessage()
}
