// Package cli provides the interactive Goalie command-line client.
//
// NewApp wires configuration, the local session database, the API client,
// the session manager and the route guard. App.Run restores a stored session
// (printing a placeholder while it is checked), starts a background session
// watcher and then blocks in the REPL.
//
// Protected commands (me, get) go through the route guard. Without a session
// the user is sent to the entry view, which asks for a login once. A token the
// server rejects mid-session produces a single notification, whichever command
// or background check noticed it.
package cli
