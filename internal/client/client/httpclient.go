package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/goalie/internal/client/models"
	"github.com/dmitrijs2005/goalie/internal/common"
	"github.com/dmitrijs2005/goalie/internal/logging"
	"github.com/google/uuid"
)

// ErrForeignPath is returned by Do when a request path would leave the API
// origin. The token is never sent in that case.
var ErrForeignPath = errors.New("request path must be relative to the API")

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	mePath       = "/auth/me"

	maxResponseSize = 4 << 20
)

// HTTPClient talks to the Goalie REST API. It attaches the stored token to
// every request, classifies failures into *Error values and reports rejected
// tokens to a single SessionExpiredHandler. It never writes the token store.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	logger  logging.Logger

	mu        sync.RWMutex
	onExpired SessionExpiredHandler
}

type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default *http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewHTTPClient returns a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, tokens TokenSource, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}

	c := &HTTPClient{
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  tokens,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OnSessionExpired registers the subscriber for SessionExpiredEvents,
// replacing any previous one.
func (c *HTTPClient) OnSessionExpired(h SessionExpiredHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpired = h
}

func (c *HTTPClient) Login(ctx context.Context, cred models.Credentials) (*LoginResult, error) {
	var resp struct {
		AccessToken string       `json:"access_token"`
		TokenType   string       `json:"token_type"`
		User        *models.User `json:"user"`
	}

	err := c.Do(ctx, Request{Method: http.MethodPost, Path: loginPath, Body: cred, Scope: ScopeLogin}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &Error{Kind: KindServer, StatusCode: http.StatusOK, Message: "login response carries no access token"}
	}
	if resp.TokenType != "" && !strings.EqualFold(resp.TokenType, "bearer") {
		return nil, &Error{Kind: KindServer, StatusCode: http.StatusOK, Message: "unsupported token type " + resp.TokenType}
	}
	if resp.User == nil || resp.User.ID == "" {
		return nil, &Error{Kind: KindServer, StatusCode: http.StatusOK, Message: "login response carries no user"}
	}

	return &LoginResult{Token: resp.AccessToken, User: resp.User}, nil
}

func (c *HTTPClient) Register(ctx context.Context, reg models.Registration) (*RegistrationResult, error) {
	var resp RegistrationResult
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: registerPath, Body: reg, Scope: ScopeRegister}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) CurrentUser(ctx context.Context) (*models.User, error) {
	var u *models.User
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: mePath}, &u); err != nil {
		return nil, err
	}
	if u == nil || u.ID == "" {
		return nil, &Error{Kind: KindServer, StatusCode: http.StatusOK, Message: "current user response carries no user"}
	}
	return u, nil
}

// Do sends req and decodes a successful JSON response into out (which may be
// nil). Failures are returned as *Error. A 401 on a ScopeSession request also
// fires the SessionExpiredHandler before Do returns.
func (c *HTTPClient) Do(ctx context.Context, req Request, out any) error {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	requestID := uuid.NewString()
	log := c.logger.With("request_id", requestID, "method", req.Method, "path", req.Path)

	httpReq, err := c.newRequest(ctx, req, token, requestID)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		log.Warn(ctx, "request failed", "error", err)
		return &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		log.Warn(ctx, "reading response failed", "status", resp.StatusCode, "error", err)
		return &Error{Kind: KindNetwork, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Debug(ctx, "request succeeded", "status", resp.StatusCode)
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &Error{Kind: KindServer, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
		}
		return nil
	}

	e := classify(req.Scope, resp.StatusCode, errorDetail(body))
	switch e.Kind {
	case KindSessionExpired:
		log.Warn(ctx, "session rejected by server", "status", resp.StatusCode)
		if token != "" {
			c.emitExpired(ctx, SessionExpiredEvent{Token: token, Method: req.Method, Path: req.Path, RequestID: requestID})
		}
	case KindServer:
		log.Error(ctx, "server error", "status", resp.StatusCode, "detail", e.Message)
	default:
		log.Info(ctx, "request rejected", "kind", e.Kind.String(), "status", resp.StatusCode)
	}
	return e
}

func (c *HTTPClient) newRequest(ctx context.Context, req Request, token, requestID string) (*http.Request, error) {
	raw, err := url.Parse(req.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", req.Path, err)
	}
	if raw.IsAbs() || raw.Host != "" || strings.HasPrefix(req.Path, "//") {
		return nil, fmt.Errorf("%w: %q", ErrForeignPath, req.Path)
	}

	// "./" keeps a colon in the first segment from reading as a scheme
	ref, err := url.Parse("./" + strings.TrimPrefix(req.Path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", req.Path, err)
	}
	base := *c.baseURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	target := base.ResolveReference(ref)

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(common.RequestIDHeaderName, requestID)
	if token != "" {
		httpReq.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}
	return httpReq, nil
}

func (c *HTTPClient) emitExpired(ctx context.Context, ev SessionExpiredEvent) {
	c.mu.RLock()
	h := c.onExpired
	c.mu.RUnlock()

	if h != nil {
		h(ctx, ev)
	}
}

func classify(scope Scope, status int, detail string) *Error {
	e := &Error{StatusCode: status, Message: detail}
	switch {
	case status >= 500:
		e.Kind = KindServer
	case scope == ScopeLogin:
		e.Kind = KindLoginRejected
	case scope == ScopeRegister:
		e.Kind = KindRegistrationRejected
	case status == http.StatusUnauthorized:
		e.Kind = KindSessionExpired
	default:
		e.Kind = KindRejected
	}
	return e
}

// errorDetail extracts the human-readable reason from an error body of the
// form {"detail": "..."} or {"message": "..."}.
func errorDetail(body []byte) string {
	var payload struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if s, ok := payload.Detail.(string); ok && s != "" {
		return s
	}
	return payload.Message
}
