package session

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/goalie/internal/client/client"
	"github.com/dmitrijs2005/goalie/internal/client/clienttest"
	"github.com/dmitrijs2005/goalie/internal/client/models"
	"github.com/dmitrijs2005/goalie/internal/client/tokenstore"
	"github.com/dmitrijs2005/goalie/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type recordingNavigator struct {
	mu      sync.Mutex
	reasons []models.RedirectReason
}

func (n *recordingNavigator) RedirectToEntry(reason models.RedirectReason) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
}

func (n *recordingNavigator) Reasons() []models.RedirectReason {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.RedirectReason(nil), n.reasons...)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type fixture struct {
	api   *clienttest.Server
	db    *sql.DB
	store *tokenstore.Store
	http  *client.HTTPClient
	nav   *recordingNavigator
	notes *recordingNotifier
	mgr   *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := client.InitDatabase(context.Background(), ":memory:", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return attach(t, clienttest.NewServer(t), db)
}

// attach builds a fresh process (store, client, manager) over an existing
// database, the way a restart of the CLI would.
func attach(t *testing.T, api *clienttest.Server, db *sql.DB) *fixture {
	t.Helper()

	store := tokenstore.New(db)
	hc, err := client.NewHTTPClient(api.URL, store, client.WithTimeout(5*time.Second))
	require.NoError(t, err)

	f := &fixture{
		api:   api,
		db:    db,
		store: store,
		http:  hc,
		nav:   &recordingNavigator{},
		notes: &recordingNotifier{},
	}
	f.mgr = NewManager(hc, store, WithNavigator(f.nav), WithNotifier(f.notes))
	hc.OnSessionExpired(f.mgr.HandleSessionExpired)
	return f
}

func (f *fixture) reload(t *testing.T) *fixture {
	return attach(t, f.api, f.db)
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	tok, err := f.store.Get(context.Background())
	require.NoError(t, err)
	return tok
}

// requireSettledInvariant checks that an authenticated status and a stored
// token always go together.
func (f *fixture) requireSettledInvariant(t *testing.T) {
	t.Helper()
	st := f.mgr.State()
	require.True(t, st.Status.Settled(), "status %s is not settled", st.Status)
	assert.Equal(t, st.Status == models.StatusAuthenticated, f.token(t) != "",
		"status %s with token present=%v", st.Status, f.token(t) != "")
}

func TestNewManager_StartsUninitialized(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, models.StatusUninitialized, f.mgr.State().Status)
}

func TestStartup_NoToken(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.mgr.Startup(context.Background()))

	assert.Equal(t, models.StatusUnauthenticated, f.mgr.State().Status)
	assert.Zero(t, f.api.Hits("/auth/me"))
	assert.Empty(t, f.nav.Reasons())
	f.requireSettledInvariant(t)
}

func TestStartup_ValidTokenRefreshesUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.api.AddUser("Ada", "ada@example.com", "secret")
	stale := &models.User{ID: u.ID, Name: "Old name", Email: u.Email}
	require.NoError(t, f.store.Set(ctx, f.api.IssueToken(u.Email), stale))

	require.NoError(t, f.mgr.Startup(ctx))

	st := f.mgr.State()
	assert.Equal(t, models.StatusAuthenticated, st.Status)
	require.NotNil(t, st.User)
	assert.Equal(t, "Ada", st.User.Name)

	cached, err := f.store.User(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Ada", cached.Name)
	assert.EqualValues(t, 1, f.api.Hits("/auth/me"))
	f.requireSettledInvariant(t)
}

func TestStartup_RejectedTokenIsClearedAndNotRevalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.api.AddUser("Ada", "ada@example.com", "secret")
	require.NoError(t, f.store.Set(ctx, f.api.IssueToken(u.Email), &u))
	f.api.RevokeAll()

	// the expiry handler settles the state before Startup sees the result
	require.NoError(t, f.mgr.Startup(ctx))

	assert.Equal(t, models.StatusUnauthenticated, f.mgr.State().Status)
	assert.Empty(t, f.token(t))
	assert.Equal(t, []models.RedirectReason{models.ReasonSessionExpired}, f.nav.Reasons())
	assert.Len(t, f.notes.Messages(), 1)
	f.requireSettledInvariant(t)

	again := f.reload(t)
	require.NoError(t, again.mgr.Startup(ctx))
	assert.Equal(t, models.StatusUnauthenticated, again.mgr.State().Status)
	assert.EqualValues(t, 1, f.api.Hits("/auth/me"))
}

func TestStartup_NetworkFailureClearsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.api.AddUser("Ada", "ada@example.com", "secret")
	require.NoError(t, f.store.Set(ctx, f.api.IssueToken(u.Email), &u))
	f.api.Close()

	err := f.mgr.Startup(ctx)
	require.ErrorIs(t, err, client.ErrNetwork)

	st := f.mgr.State()
	assert.Equal(t, models.StatusUnauthenticated, st.Status)
	assert.Equal(t, client.KindNetwork.UserMessage(), st.Error)
	assert.Empty(t, f.nav.Reasons())
	f.requireSettledInvariant(t)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.AddUser("Ada", "ada@example.com", "secret")
	require.NoError(t, f.mgr.Startup(ctx))

	var busySeen bool
	unsubscribe := f.mgr.Subscribe(func(st models.AuthState) {
		if st.Busy {
			busySeen = true
		}
	})
	defer unsubscribe()

	user, err := f.mgr.Login(ctx, models.Credentials{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Ada", user.Name)
	assert.True(t, busySeen)

	st := f.mgr.State()
	assert.Equal(t, models.StatusAuthenticated, st.Status)
	assert.False(t, st.Busy)
	assert.NotEmpty(t, f.token(t))
	f.requireSettledInvariant(t)
}

func TestLogin_WrongPasswordStaysInline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.AddUser("Ada", "ada@example.com", "secret")
	require.NoError(t, f.mgr.Startup(ctx))

	_, err := f.mgr.Login(ctx, models.Credentials{Email: "ada@example.com", Password: "wrong"})
	require.ErrorIs(t, err, client.ErrLoginRejected)

	st := f.mgr.State()
	assert.Equal(t, models.StatusUnauthenticated, st.Status)
	assert.Equal(t, "Incorrect password", st.Error)
	assert.False(t, st.Busy)
	assert.Empty(t, f.token(t))
	assert.Empty(t, f.nav.Reasons())
	assert.Empty(t, f.notes.Messages())
	f.requireSettledInvariant(t)
}

func TestLogin_RejectedWhileAuthenticatedKeepsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.AddUser("Ada", "ada@example.com", "secret")
	require.NoError(t, f.mgr.Startup(ctx))
	_, err := f.mgr.Login(ctx, models.Credentials{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)
	before := f.token(t)

	_, err = f.mgr.Login(ctx, models.Credentials{Email: "ada@example.com", Password: "wrong"})
	require.ErrorIs(t, err, client.ErrLoginRejected)

	assert.Equal(t, models.StatusAuthenticated, f.mgr.State().Status)
	assert.Equal(t, before, f.token(t))
	assert.Empty(t, f.nav.Reasons())
	f.requireSettledInvariant(t)
}

func TestLogout_ThenReloadStaysLoggedOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.AddUser("Ada", "ada@example.com", "secret")
	require.NoError(t, f.mgr.Startup(ctx))
	_, err := f.mgr.Login(ctx, models.Credentials{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)

	require.NoError(t, f.mgr.Logout(ctx))
	assert.Equal(t, models.StatusUnauthenticated, f.mgr.State().Status)
	f.requireSettledInvariant(t)

	again := f.reload(t)
	require.NoError(t, again.mgr.Startup(ctx))
	assert.Equal(t, models.StatusUnauthenticated, again.mgr.State().Status)
	assert.Zero(t, f.api.Hits("/auth/me"))
}

func TestConcurrentExpiry_HandledOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.AddUser("Ada", "ada@example.com", "secret")
	require.NoError(t, f.mgr.Startup(ctx))
	_, err := f.mgr.Login(ctx, models.Credentials{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)

	f.api.RevokeAll()
	gate := f.api.Hold("/goals")

	const n = 3
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.http.Do(ctx, client.Request{Path: "/goals"}, nil)
		}(i)
	}
	gate.WaitArrivals(t, n, 5*time.Second)
	gate.Release()
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, client.ErrSessionExpired)
	}
	assert.Equal(t, []models.RedirectReason{models.ReasonSessionExpired}, f.nav.Reasons())
	assert.Equal(t, []string{client.KindSessionExpired.UserMessage()}, f.notes.Messages())
	assert.Equal(t, models.StatusUnauthenticated, f.mgr.State().Status)
	f.requireSettledInvariant(t)
}

func TestHandleSessionExpired_IgnoresForeignToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.AddUser("Ada", "ada@example.com", "secret")
	require.NoError(t, f.mgr.Startup(ctx))
	_, err := f.mgr.Login(ctx, models.Credentials{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)

	f.mgr.HandleSessionExpired(ctx, client.SessionExpiredEvent{Token: "some-older-token", Path: "/goals"})
	f.mgr.HandleSessionExpired(ctx, client.SessionExpiredEvent{Path: "/goals"})

	assert.Equal(t, models.StatusAuthenticated, f.mgr.State().Status)
	assert.Empty(t, f.nav.Reasons())
	assert.Empty(t, f.notes.Messages())
}

func TestLoginDuringValidation_LoginArrivesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.api.AddUser("Old", "old@example.com", "secret")
	f.api.AddUser("New", "new@example.com", "secret")
	require.NoError(t, f.store.Set(ctx, f.api.IssueToken(old.Email), &old))
	f.api.RevokeAll()

	gate := f.api.Hold("/auth/me")
	startupDone := make(chan error, 1)
	go func() { startupDone <- f.mgr.Startup(ctx) }()
	gate.WaitArrivals(t, 1, 5*time.Second)
	assert.Equal(t, models.StatusValidating, f.mgr.State().Status)

	user, err := f.mgr.Login(ctx, models.Credentials{Email: "new@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "New", user.Name)
	loginToken := f.token(t)

	gate.Release()
	require.NoError(t, <-startupDone)

	st := f.mgr.State()
	assert.Equal(t, models.StatusAuthenticated, st.Status)
	assert.Equal(t, "New", st.User.Name)
	assert.Equal(t, loginToken, f.token(t))
	assert.Empty(t, f.nav.Reasons())
	f.requireSettledInvariant(t)
}

func TestLoginDuringValidation_ValidationArrivesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.api.AddUser("Old", "old@example.com", "secret")
	f.api.AddUser("New", "new@example.com", "secret")
	require.NoError(t, f.store.Set(ctx, f.api.IssueToken(old.Email), &old))

	meGate := f.api.Hold("/auth/me")
	loginGate := f.api.Hold("/auth/login")

	startupDone := make(chan error, 1)
	go func() { startupDone <- f.mgr.Startup(ctx) }()
	meGate.WaitArrivals(t, 1, 5*time.Second)

	type loginResult struct {
		user *models.User
		err  error
	}
	loginDone := make(chan loginResult, 1)
	go func() {
		u, err := f.mgr.Login(ctx, models.Credentials{Email: "new@example.com", Password: "secret"})
		loginDone <- loginResult{u, err}
	}()
	loginGate.WaitArrivals(t, 1, 5*time.Second)

	meGate.Release()
	require.NoError(t, <-startupDone)
	st := f.mgr.State()
	assert.NotEqual(t, models.StatusAuthenticated, st.Status, "stale validation must not settle the session")
	assert.True(t, st.Busy)

	loginGate.Release()
	res := <-loginDone
	require.NoError(t, res.err)

	st = f.mgr.State()
	assert.Equal(t, models.StatusAuthenticated, st.Status)
	require.NotNil(t, st.User)
	assert.Equal(t, "New", st.User.Name)
	f.requireSettledInvariant(t)
}

func TestLoginDuringValidation_RejectedValidationArrivesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.api.AddUser("Old", "old@example.com", "secret")
	require.NoError(t, f.store.Set(ctx, f.api.IssueToken(old.Email), &old))
	f.api.RevokeAll()
	f.api.AddUser("New", "new@example.com", "secret")

	meGate := f.api.Hold("/auth/me")
	loginGate := f.api.Hold("/auth/login")

	startupDone := make(chan error, 1)
	go func() { startupDone <- f.mgr.Startup(ctx) }()
	meGate.WaitArrivals(t, 1, 5*time.Second)

	loginDone := make(chan error, 1)
	go func() {
		_, err := f.mgr.Login(ctx, models.Credentials{Email: "new@example.com", Password: "secret"})
		loginDone <- err
	}()
	loginGate.WaitArrivals(t, 1, 5*time.Second)

	meGate.Release()
	require.NoError(t, <-startupDone)
	assert.Empty(t, f.token(t), "rejected token is cleared while the login is pending")

	loginGate.Release()
	require.NoError(t, <-loginDone)

	assert.Equal(t, models.StatusAuthenticated, f.mgr.State().Status)
	assert.Empty(t, f.nav.Reasons(), "no redirect while the user is logging in")
	assert.Empty(t, f.notes.Messages())
	f.requireSettledInvariant(t)
}

func TestLoginRejectedDuringValidation_SettlesUnauthenticated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.api.AddUser("Old", "old@example.com", "secret")
	require.NoError(t, f.store.Set(ctx, f.api.IssueToken(old.Email), &old))

	gate := f.api.Hold("/auth/me")
	startupDone := make(chan error, 1)
	go func() { startupDone <- f.mgr.Startup(ctx) }()
	gate.WaitArrivals(t, 1, 5*time.Second)

	_, err := f.mgr.Login(ctx, models.Credentials{Email: "old@example.com", Password: "wrong"})
	require.ErrorIs(t, err, client.ErrLoginRejected)

	gate.Release()
	require.NoError(t, <-startupDone)

	assert.Equal(t, models.StatusUnauthenticated, f.mgr.State().Status)
	f.requireSettledInvariant(t)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mgr.Startup(ctx))

	res, err := f.mgr.Register(ctx, models.Registration{Name: "Ada", Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "Registration successful", res.Message)
	assert.NotEmpty(t, res.UserID)
	assert.Equal(t, models.StatusUnauthenticated, f.mgr.State().Status)
	assert.Empty(t, f.token(t))

	_, err = f.mgr.Register(ctx, models.Registration{Name: "Ada", Email: "ada@example.com", Password: "secret"})
	require.ErrorIs(t, err, client.ErrRegistrationRejected)
	assert.Equal(t, "Email already registered", client.UserMessage(err))
	assert.Empty(t, f.nav.Reasons())
}

func TestFetchCurrentUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.AddUser("Ada", "ada@example.com", "secret")
	require.NoError(t, f.mgr.Startup(ctx))

	_, err := f.mgr.FetchCurrentUser(ctx)
	require.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = f.mgr.Login(ctx, models.Credentials{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)

	u, err := f.mgr.FetchCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	f.api.RevokeAll()
	_, err = f.mgr.FetchCurrentUser(ctx)
	require.ErrorIs(t, err, client.ErrSessionExpired)
	assert.Equal(t, models.StatusUnauthenticated, f.mgr.State().Status)
	assert.Equal(t, []models.RedirectReason{models.ReasonSessionExpired}, f.nav.Reasons())
	f.requireSettledInvariant(t)
}

func TestSubscribe_TransitionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.api.AddUser("Ada", "ada@example.com", "secret")
	require.NoError(t, f.store.Set(ctx, f.api.IssueToken(u.Email), &u))

	var seen []models.Status
	unsubscribe := f.mgr.Subscribe(func(st models.AuthState) {
		// reading the state from a listener must not block
		_ = f.mgr.State()
		seen = append(seen, st.Status)
	})

	require.NoError(t, f.mgr.Startup(ctx))
	require.NoError(t, f.mgr.Logout(ctx))
	unsubscribe()
	require.NoError(t, f.mgr.Startup(ctx))

	assert.Equal(t, []models.Status{
		models.StatusValidating,
		models.StatusAuthenticated,
		models.StatusUnauthenticated,
	}, seen)
}

func TestLogin_ResponseWithoutUserOpensNoSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","user":null}`))
	}))
	defer srv.Close()

	db, err := client.InitDatabase(context.Background(), ":memory:", logging.Nop())
	require.NoError(t, err)
	defer db.Close()

	store := tokenstore.New(db)
	hc, err := client.NewHTTPClient(srv.URL, store)
	require.NoError(t, err)
	mgr := NewManager(hc, store)
	ctx := context.Background()
	require.NoError(t, mgr.Startup(ctx))

	_, err = mgr.Login(ctx, models.Credentials{Email: "ada@example.com", Password: "secret"})
	require.ErrorIs(t, err, client.ErrServer)

	assert.Equal(t, models.StatusUnauthenticated, mgr.State().Status)
	tok, user, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
	assert.Nil(t, user)
}
