// Package session owns the authentication state of the Goalie CLI.
//
// Manager is the only writer of the token store. It validates a stored token on
// startup, logs users in and out, and reacts to tokens the server rejects
// mid-session. Every session-establishing attempt gets a generation number;
// an outcome that arrives after a newer attempt started is discarded, so a
// slow startup validation can never overwrite a login that finished first.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/goalie/internal/client/client"
	"github.com/dmitrijs2005/goalie/internal/client/models"
	"github.com/dmitrijs2005/goalie/internal/logging"
)

var (
	// ErrSuperseded is returned when a newer login, logout or expiry replaced
	// the session state while the request was in flight.
	ErrSuperseded = errors.New("superseded by a newer session change")

	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// TokenStore is the persistence the Manager writes to.
type TokenStore interface {
	Get(ctx context.Context) (string, error)
	Load(ctx context.Context) (string, *models.User, error)
	Set(ctx context.Context, token string, user *models.User) error
	Clear(ctx context.Context) error
}

// AuthClient is the subset of client.Client the Manager calls.
type AuthClient interface {
	Login(ctx context.Context, cred models.Credentials) (*client.LoginResult, error)
	Register(ctx context.Context, reg models.Registration) (*client.RegistrationResult, error)
	CurrentUser(ctx context.Context) (*models.User, error)
}

// Navigator moves the UI to the entry view.
type Navigator interface {
	RedirectToEntry(reason models.RedirectReason)
}

// Notifier shows a global, user-visible message.
type Notifier interface {
	Notify(ctx context.Context, msg string)
}

type Manager struct {
	client   AuthClient
	store    TokenStore
	nav      Navigator
	notifier Notifier
	logger   logging.Logger

	mu         sync.Mutex
	state      models.AuthState
	generation uint64

	listeners    map[uint64]func(models.AuthState)
	nextListener uint64
	pending      []models.AuthState
	dispatchMu   sync.Mutex
}

type Option func(*Manager)

func WithNavigator(n Navigator) Option {
	return func(m *Manager) {
		if n != nil {
			m.nav = n
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager returns a Manager in StatusUninitialized. Call Startup before
// rendering anything that depends on the session.
func NewManager(c AuthClient, store TokenStore, opts ...Option) *Manager {
	m := &Manager{
		client:    c,
		store:     store,
		nav:       nopNavigator{},
		notifier:  nopNotifier{},
		logger:    logging.Nop(),
		listeners: make(map[uint64]func(models.AuthState)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current session snapshot.
func (m *Manager) State() models.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn to receive every state change in transition order.
// The returned function removes the subscription.
func (m *Manager) Subscribe(fn func(models.AuthState)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Startup validates the stored token, if any, against the server. It returns
// once the state has settled or the attempt was superseded. A non-nil error
// reports why validation failed; the session is already cleared by then.
func (m *Manager) Startup(ctx context.Context) error {
	token, _, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error(ctx, "stored session unreadable, discarding", "error", err)
		token = ""
	}

	m.mu.Lock()
	m.generation++
	gen := m.generation

	if token == "" {
		if err != nil {
			m.clearStoreLocked(ctx)
		}
		m.setStateAndUnlock(ctx, models.AuthState{Status: models.StatusUnauthenticated})
		return nil
	}
	m.setStateAndUnlock(ctx, models.AuthState{Status: models.StatusValidating})

	user, err := m.client.CurrentUser(ctx)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logger.Debug(ctx, "discarding superseded startup validation")
		return nil
	}

	if err != nil {
		m.clearStoreLocked(ctx)
		m.setStateAndUnlock(ctx, models.AuthState{
			Status: models.StatusUnauthenticated,
			Error:  client.UserMessage(err),
		})
		m.logger.Warn(ctx, "startup validation failed", "kind", client.KindOf(err).String(), "error", err)
		return fmt.Errorf("session validation failed: %w", err)
	}

	if err := m.store.Set(ctx, token, user); err != nil {
		m.logger.Warn(ctx, "failed to refresh cached user", "error", err)
	}
	m.setStateAndUnlock(ctx, models.AuthState{Status: models.StatusAuthenticated, User: user})
	m.logger.Info(ctx, "session restored", "user_id", user.ID)
	return nil
}

// Login submits cred. On success the token and user are stored and the
// session becomes authenticated. A rejection is returned to the caller and
// never triggers a global redirect.
func (m *Manager) Login(ctx context.Context, cred models.Credentials) (*models.User, error) {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	st := m.state
	st.Busy = true
	st.Error = ""
	m.setStateAndUnlock(ctx, st)

	res, err := m.client.Login(ctx, cred)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logger.Debug(ctx, "discarding superseded login result")
		return nil, ErrSuperseded
	}

	if err != nil {
		st := m.state
		st.Busy = false
		st.Error = client.UserMessage(err)
		if !st.Status.Settled() {
			// the validation this login replaced will never report back
			m.clearStoreLocked(ctx)
			st.Status = models.StatusUnauthenticated
			st.User = nil
		}
		m.setStateAndUnlock(ctx, st)
		m.logger.Info(ctx, "login failed", "kind", client.KindOf(err).String())
		return nil, err
	}

	if err := m.store.Set(ctx, res.Token, res.User); err != nil {
		st := m.state
		st.Busy = false
		st.Error = "Could not save the session."
		if !st.Status.Settled() {
			m.clearStoreLocked(ctx)
			st.Status = models.StatusUnauthenticated
			st.User = nil
		}
		m.setStateAndUnlock(ctx, st)
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.setStateAndUnlock(ctx, models.AuthState{Status: models.StatusAuthenticated, User: res.User})
	if res.User != nil {
		m.logger.Info(ctx, "login succeeded", "user_id", res.User.ID)
	}
	return res.User, nil
}

// Register creates an account. It does not touch the session; the caller has
// to log in afterwards.
func (m *Manager) Register(ctx context.Context, reg models.Registration) (*client.RegistrationResult, error) {
	res, err := m.client.Register(ctx, reg)
	if err != nil {
		m.logger.Info(ctx, "registration failed", "kind", client.KindOf(err).String())
		return nil, err
	}
	m.logger.Info(ctx, "account registered", "user_id", res.UserID)
	return res, nil
}

// Logout clears the stored session and returns once the state is
// unauthenticated. In-flight validations and logins are discarded.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.generation++
	err := m.store.Clear(ctx)
	m.setStateAndUnlock(ctx, models.AuthState{Status: models.StatusUnauthenticated})

	if err != nil {
		m.logger.Error(ctx, "failed to clear session", "error", err)
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.logger.Info(ctx, "logged out")
	return nil
}

// FetchCurrentUser reloads the user record of the authenticated session and
// refreshes the cached copy.
func (m *Manager) FetchCurrentUser(ctx context.Context) (*models.User, error) {
	m.mu.Lock()
	if m.state.Status != models.StatusAuthenticated {
		m.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	gen := m.generation
	m.mu.Unlock()

	user, err := m.client.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if gen != m.generation || m.state.Status != models.StatusAuthenticated {
		m.mu.Unlock()
		return nil, ErrSuperseded
	}

	token, err := m.store.Get(ctx)
	if err == nil && token != "" {
		err = m.store.Set(ctx, token, user)
	}
	if err != nil {
		m.logger.Warn(ctx, "failed to refresh cached user", "error", err)
	}

	st := m.state
	st.User = user
	m.setStateAndUnlock(ctx, st)
	return user, nil
}

// HandleSessionExpired is the client.SessionExpiredHandler of the request
// layer. The first event for the stored token clears the session, redirects to
// the entry view and shows one notification; events for a token that is no
// longer stored are ignored.
//
// While a login is in flight the old session is cleared silently: the user is
// already on the login form and the login's outcome decides the final state.
func (m *Manager) HandleSessionExpired(ctx context.Context, ev client.SessionExpiredEvent) {
	m.mu.Lock()

	current, err := m.store.Get(ctx)
	if err != nil {
		m.mu.Unlock()
		m.logger.Error(ctx, "failed to read token while handling expiry", "error", err)
		return
	}
	if ev.Token == "" || current != ev.Token {
		m.mu.Unlock()
		m.logger.Debug(ctx, "ignoring expiry of a token that is no longer stored", "request_id", ev.RequestID)
		return
	}

	m.clearStoreLocked(ctx)

	busy := m.state.Busy
	st := models.AuthState{
		Status: models.StatusUnauthenticated,
		Error:  client.KindSessionExpired.UserMessage(),
		Busy:   busy,
	}
	if !busy {
		m.generation++
	}
	m.setStateAndUnlock(ctx, st)

	m.logger.Warn(ctx, "session expired", "request_id", ev.RequestID, "method", ev.Method, "path", ev.Path)
	if busy {
		return
	}
	m.nav.RedirectToEntry(models.ReasonSessionExpired)
	m.notifier.Notify(ctx, client.KindSessionExpired.UserMessage())
}

// clearStoreLocked must be called with m.mu held.
func (m *Manager) clearStoreLocked(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error(ctx, "failed to clear session", "error", err)
	}
}

// setStateAndUnlock must be called with m.mu held. It records st, releases
// m.mu and delivers every queued state to the listeners.
func (m *Manager) setStateAndUnlock(ctx context.Context, st models.AuthState) {
	m.state = st
	m.pending = append(m.pending, st)
	m.mu.Unlock()

	m.dispatch()
	m.logger.Debug(ctx, "session state changed", "status", st.Status.String(), "busy", st.Busy)
}

// dispatch drains the pending queue. Only one goroutine drains at a time; a
// listener that changes the state re-enters here, finds the lock taken and
// leaves its state to the running drain loop.
func (m *Manager) dispatch() {
	for {
		if !m.dispatchMu.TryLock() {
			return
		}
		for {
			m.mu.Lock()
			if len(m.pending) == 0 {
				m.mu.Unlock()
				break
			}
			st := m.pending[0]
			m.pending = m.pending[1:]
			listeners := make([]func(models.AuthState), 0, len(m.listeners))
			for _, l := range m.listeners {
				listeners = append(listeners, l)
			}
			m.mu.Unlock()

			for _, l := range listeners {
				l(st)
			}
		}
		m.dispatchMu.Unlock()

		m.mu.Lock()
		empty := len(m.pending) == 0
		m.mu.Unlock()
		if empty {
			return
		}
	}
}

type nopNavigator struct{}

func (nopNavigator) RedirectToEntry(models.RedirectReason) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string) {}
