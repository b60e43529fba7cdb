package clienttest

import (
	"context"
	"sync"
)

// Tokens is an in-memory client.TokenSource.
type Tokens struct {
	mu    sync.Mutex
	token string
	err   error
}

func NewTokens(token string) *Tokens {
	return &Tokens{token: token}
}

func (t *Tokens) Get(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token, t.err
}

func (t *Tokens) Set(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

// Fail makes Get return err.
func (t *Tokens) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}
