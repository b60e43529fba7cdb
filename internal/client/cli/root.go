package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/goalie/internal/client/client"
	"github.com/dmitrijs2005/goalie/internal/client/guard"
	"github.com/dmitrijs2005/goalie/internal/client/models"
)

func (a *App) getStatus() string {
	st := a.sessions.State()
	switch st.Status {
	case models.StatusAuthenticated:
		return fmt.Sprintf(" (%s)", st.User.DisplayName())
	case models.StatusUninitialized, models.StatusValidating:
		return " (checking session)"
	default:
		return ""
	}
}

// Root runs the REPL on the app's input.
func (a *App) Root(ctx context.Context) {
	runREPL(ctx, a, a.getStatus, a.reader)
}

// Entry renders the entry view when the router is on it. The redirect marker
// is consumed here, so it only has an effect once.
func (a *App) Entry(ctx context.Context) error {
	if a.router.Location() != guard.EntryPath {
		return nil
	}

	switch a.router.ConsumeMarker() {
	case models.ReasonProtectedRoute:
		a.println("Please log in to continue.")
		return a.Login(ctx)
	case models.ReasonSessionExpired:
		// the notification was already shown
	}
	return nil
}

// Status prints the session status.
func (a *App) Status(context.Context) error {
	st := a.sessions.State()
	if st.Status == models.StatusAuthenticated {
		if st.User == nil {
			a.println("Logged in.")
			return nil
		}
		a.printf("Logged in as %s <%s>\n", st.User.DisplayName(), st.User.Email)
		return nil
	}
	a.println("Not logged in.")
	if st.Error != "" {
		a.println("Last error:", st.Error)
	}
	return nil
}

// Me shows the current account. It requires a session.
func (a *App) Me(ctx context.Context) error {
	if !a.enter(ctx, "/me") {
		return nil
	}

	user, err := a.sessions.FetchCurrentUser(ctx)
	if err != nil {
		a.reportError(err)
		return err
	}

	a.printf("ID:    %s\nName:  %s\nEmail: %s\n", user.ID, user.DisplayName(), user.Email)
	for k, v := range user.Profile {
		a.printf("%s: %v\n", k, v)
	}
	return nil
}

// Get fetches path from the API with the session token and prints the JSON
// response. It requires a session.
func (a *App) Get(ctx context.Context, path string) error {
	if !a.enter(ctx, path) {
		return nil
	}

	var body json.RawMessage
	if err := a.api.Do(ctx, client.Request{Method: http.MethodGet, Path: path}, &body); err != nil {
		a.reportError(err)
		return err
	}

	pretty, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		pretty = body
	}
	a.println(string(pretty))
	return nil
}

// enter runs the route guard for path and reports whether the view may render.
func (a *App) enter(ctx context.Context, path string) bool {
	d, err := a.guard.Await(ctx, path)
	if err != nil {
		return false
	}
	if d == guard.Placeholder {
		a.println("Checking your session...")
	}
	return d == guard.Render
}
