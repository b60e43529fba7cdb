// Package clienttest provides an in-process fake of the Goalie API for tests
// of the client packages.
//
// The fake issues real HS256 tokens, stores bcrypt password hashes and can
// hold requests in flight so tests control the order in which responses
// arrive.
package clienttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/goalie/internal/client/models"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	user models.User
	hash []byte
}

type claims struct {
	Epoch int64 `json:"epoch"`
	jwt.RegisteredClaims
}

// Server is a fake Goalie API backed by httptest.Server.
type Server struct {
	*httptest.Server

	secret []byte

	mu       sync.Mutex
	accounts map[string]*account
	epoch    int64
	gates    map[string]*Gate
	goals    []map[string]any

	// TokenTTL is the lifetime of tokens issued by /auth/login.
	TokenTTL time.Duration

	hits sync.Map // path -> *atomic.Int64
}

// NewServer starts a fake API and stops it when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		secret:   []byte(uuid.NewString()),
		accounts: make(map[string]*account),
		gates:    make(map[string]*Gate),
		TokenTTL: time.Hour,
		goals: []map[string]any{
			{"id": "g1", "title": "Run a marathon", "category": "wellness", "progress": 0.25},
		},
	}

	r := chi.NewRouter()
	r.Use(s.count, s.hold)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.login)
		r.Post("/register", s.register)
		r.With(s.authenticate).Get("/me", s.me)
	})
	r.With(s.authenticate).Get("/goals", s.listGoals)
	r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusInternalServerError, "database unavailable")
	})
	r.With(s.authenticate).Get("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusForbidden, "not your goal")
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)
	return s
}

// AddUser registers an account directly and returns its record.
func (s *Server) AddUser(name, email, password string) models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := models.User{ID: fmt.Sprintf("user_%d", len(s.accounts)+1), Name: name, Email: email}
	s.accounts[strings.ToLower(email)] = &account{user: u, hash: hash}
	return u
}

// IssueToken mints a token for the account with the given email.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		panic("clienttest: unknown account " + email)
	}
	return s.sign(acc.user.ID)
}

// RevokeAll invalidates every token issued so far.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int64 {
	v, ok := s.hits.Load(path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Hold makes every request to path wait until the returned gate is released.
func (s *Server) Hold(path string) *Gate {
	g := &Gate{arrived: make(chan struct{}, 64), release: make(chan struct{})}

	s.mu.Lock()
	s.gates[path] = g
	s.mu.Unlock()

	return g
}

// Gate holds requests in flight. See Server.Hold.
type Gate struct {
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
}

// Arrived receives once per request that reached the gate.
func (g *Gate) Arrived() <-chan struct{} {
	return g.arrived
}

// WaitArrivals blocks until n requests are held or timeout elapses.
func (g *Gate) WaitArrivals(t testing.TB, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-g.arrived:
		case <-deadline:
			t.Fatalf("only %d of %d requests arrived", i, n)
		}
	}
}

// Release lets held requests proceed. It is safe to call more than once.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := s.hits.LoadOrStore(r.URL.Path, new(atomic.Int64))
		v.(*atomic.Int64).Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) hold(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		g := s.gates[r.URL.Path]
		s.mu.Unlock()

		if g != nil {
			select {
			case g.arrived <- struct{}{}:
			default:
			}
			select {
			case <-g.release:
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var cred models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(cred.Email)]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Email not found")
		return
	}
	if bcrypt.CompareHashAndPassword(acc.hash, []byte(cred.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, "Incorrect password")
		return
	}

	s.mu.Lock()
	token := s.sign(acc.user.ID)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user":         acc.user,
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var reg models.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil || reg.Email == "" || reg.Password == "" {
		writeDetail(w, http.StatusBadRequest, "name, email and password are required")
		return
	}

	s.mu.Lock()
	_, exists := s.accounts[strings.ToLower(reg.Email)]
	s.mu.Unlock()
	if exists {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}

	u := s.AddUser(reg.Name, reg.Email, reg.Password)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Registration successful", "user_id": u.ID})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, r.Context().Value(userKey{}))
}

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	goals := s.goals
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, goals)
}

type userKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeDetail(w, http.StatusUnauthorized, "Missing or invalid authorization header")
			return
		}

		var c claims
		_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		s.mu.Lock()
		epoch := s.epoch
		var user *models.User
		for _, acc := range s.accounts {
			if acc.user.ID == c.Subject {
				u := acc.user
				user = &u
				break
			}
		}
		s.mu.Unlock()

		if c.Epoch != epoch || user == nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(contextWithUser(r, user)))
	})
}

// sign must be called with s.mu held.
func (s *Server) sign(userID string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Epoch: s.epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
