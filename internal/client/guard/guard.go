// Package guard decides whether a protected view may render for the current
// session, and keeps the location of the CLI together with the one-shot
// marker that tells the entry view why the user was sent there.
package guard

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/goalie/internal/client/models"
)

// EntryPath is the location of the entry view.
const EntryPath = "/"

// Decision is what a protected view should do for a given session state.
type Decision int

const (
	// Placeholder means the session is not settled yet; show a loading line.
	Placeholder Decision = iota
	// Render means the view may render.
	Render
	// Redirect means the user has to log in first.
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "placeholder"
	}
}

// Decide maps a session state to a Decision.
func Decide(st models.AuthState) Decision {
	switch st.Status {
	case models.StatusAuthenticated:
		return Render
	case models.StatusUninitialized, models.StatusValidating:
		return Placeholder
	default:
		return Redirect
	}
}

// Router holds the current location and the redirect marker.
type Router struct {
	mu       sync.Mutex
	location string
	marker   models.RedirectReason
}

func NewRouter() *Router {
	return &Router{location: EntryPath}
}

// Location returns the current path.
func (r *Router) Location() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.location
}

// Navigate moves to path without a marker.
func (r *Router) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.location = path
	r.marker = models.ReasonNone
}

// RedirectToEntry moves to the entry view and records why.
func (r *Router) RedirectToEntry(reason models.RedirectReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.location = EntryPath
	r.marker = reason
}

// ConsumeMarker returns the pending marker and clears it, so rendering the
// entry view a second time sees ReasonNone.
func (r *Router) ConsumeMarker() models.RedirectReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.marker
	r.marker = models.ReasonNone
	return m
}

// StateReader is the read side of the session manager.
type StateReader interface {
	State() models.AuthState
	Subscribe(fn func(models.AuthState)) (unsubscribe func())
}

type Guard struct {
	sessions StateReader
	router   *Router
}

func New(sessions StateReader, router *Router) *Guard {
	return &Guard{sessions: sessions, router: router}
}

// Enter decides for the current state. On Redirect the router is moved to the
// entry view with ReasonProtectedRoute; otherwise it is moved to path.
func (g *Guard) Enter(path string) Decision {
	d := Decide(g.sessions.State())
	switch d {
	case Redirect:
		g.router.RedirectToEntry(models.ReasonProtectedRoute)
	case Render:
		g.router.Navigate(path)
	}
	return d
}

// Await blocks until the session has settled and then behaves like Enter. It
// never returns Placeholder unless ctx is done first.
func (g *Guard) Await(ctx context.Context, path string) (Decision, error) {
	settled := make(chan struct{}, 1)
	unsubscribe := g.sessions.Subscribe(func(st models.AuthState) {
		if st.Status.Settled() {
			select {
			case settled <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	for !g.sessions.State().Status.Settled() {
		select {
		case <-settled:
		case <-ctx.Done():
			return Placeholder, ctx.Err()
		}
	}
	return g.Enter(path), nil
}
