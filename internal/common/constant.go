// Package common contains small helpers and constants shared by the client
// packages.
package common

const (
	// AuthorizationHeaderName carries the bearer token on outbound requests.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the token in AuthorizationHeaderName.
	BearerPrefix = "Bearer "

	// RequestIDHeaderName carries the per-request correlation id.
	RequestIDHeaderName = "X-Request-ID"
)
