// Package client is the authenticated request layer of the Goalie CLI.
//
// # Overview
//
// The package provides:
//  1. The API contract used by the session manager (see Client): Login,
//     Register, CurrentUser and the generic Do.
//  2. A REST implementation (see HTTPClient) that attaches the stored token
//     as a bearer credential, tags every request with an X-Request-ID and
//     classifies failures.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) wiring an
//     SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Every failure is an *Error carrying a Kind. Match with errors.Is against
// ErrLoginRejected, ErrRegistrationRejected, ErrSessionExpired, ErrServer,
// ErrNetwork and ErrRejected, or switch on KindOf(err).
//
// Classification depends on the Scope the caller sets on the Request, never
// on the URL. A 401 on a ScopeSession request is reported to the single
// SessionExpiredHandler registered with OnSessionExpired; the caller still
// receives ErrSessionExpired but is expected to drop it, since the handler
// owns logout and navigation.
//
// # Concurrency
//
// HTTPClient is safe for concurrent use. It only reads the token store.
package client
