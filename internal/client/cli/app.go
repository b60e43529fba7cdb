package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/goalie/internal/client/client"
	"github.com/dmitrijs2005/goalie/internal/client/config"
	"github.com/dmitrijs2005/goalie/internal/client/guard"
	"github.com/dmitrijs2005/goalie/internal/client/models"
	"github.com/dmitrijs2005/goalie/internal/client/session"
	"github.com/dmitrijs2005/goalie/internal/client/tokenstore"
	"github.com/dmitrijs2005/goalie/internal/filex"
	"github.com/dmitrijs2005/goalie/internal/logging"

	_ "modernc.org/sqlite"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	api      *client.HTTPClient
	sessions *session.Manager
	router   *guard.Router
	guard    *guard.Guard
	reader   *bufio.Reader
	out      *syncWriter
}

// syncWriter serialises writes from the REPL and the session watcher.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// NewApp wires the CLI against the terminal.
func NewApp(c *config.Config) (*App, error) {
	return newApp(c, os.Stdin, os.Stdout, os.Stderr)
}

func newApp(c *config.Config, in io.Reader, out, logOut io.Writer) (*App, error) {
	ctx := context.Background()

	logger, err := logging.New(c.LogBackend, c.LogLevel, logOut)
	if err != nil {
		return nil, err
	}

	if c.DatabasePath != ":memory:" {
		if _, err := filex.EnsureParentDir(c.DatabasePath); err != nil {
			return nil, err
		}
	}

	db, err := client.InitDatabase(ctx, c.DatabasePath, logger)
	if err != nil {
		logger.Error(ctx, "error initializing database", "path", c.DatabasePath, "error", err)
		return nil, err
	}

	store := tokenstore.New(db)

	api, err := client.NewHTTPClient(c.ServerURL, store,
		client.WithTimeout(c.RequestTimeout),
		client.WithLogger(logger.With("component", "api")),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{
		config: c,
		logger: logger,
		db:     db,
		api:    api,
		router: guard.NewRouter(),
		reader: bufio.NewReader(in),
		out:    &syncWriter{w: out},
	}

	a.sessions = session.NewManager(api, store,
		session.WithNavigator(a.router),
		session.WithNotifier(a),
		session.WithLogger(logger.With("component", "session")),
	)
	api.OnSessionExpired(a.sessions.HandleSessionExpired)
	a.guard = guard.New(a.sessions, a.router)

	return a, nil
}

// Run restores the stored session, starts the background session check and
// blocks in the REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	a.println("Welcome to Goalie CLI (type 'help' for commands)")
	a.println("Checking your session...")

	if err := a.sessions.Startup(ctx); err != nil {
		a.println("Could not restore your session:", client.UserMessage(err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.config.SessionCheckInterval > 0 {
		go a.StartSessionWatcher(ctx, a.config.SessionCheckInterval)
	}

	a.Root(ctx)
}

// Close releases the local database.
func (a *App) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn(context.Background(), "failed to close database", "error", err)
	}
}

func (a *App) isLoggedIn() bool {
	return a.sessions.State().Status == models.StatusAuthenticated
}

// Notify prints a global notification. It is the session manager's notifier.
func (a *App) Notify(_ context.Context, msg string) {
	a.println()
	a.println("!", msg)
}

// StartSessionWatcher re-validates an authenticated session every interval so
// an expired token is noticed without user action. Rejections are reported by
// the session manager; other failures are only logged.
func (a *App) StartSessionWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !a.isLoggedIn() {
				continue
			}

			checkCtx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
			_, err := a.sessions.FetchCurrentUser(checkCtx)
			cancel()

			if err != nil && !errors.Is(err, client.ErrSessionExpired) && !errors.Is(err, session.ErrSuperseded) {
				a.logger.Debug(ctx, "session check failed", "error", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
