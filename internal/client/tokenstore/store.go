// Package tokenstore persists the session token together with the cached user
// record in the local client database.
//
// The store is deliberately dumb: it validates nothing and talks to no server.
// Token and user are always written and cleared in one transaction, so a reader
// never observes one without the other.
package tokenstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/goalie/internal/client/models"
	"github.com/dmitrijs2005/goalie/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/goalie/internal/dbx"
)

const (
	keyToken = "access_token"
	keyUser  = "user"
)

var (
	// ErrEmptyToken is returned by Set when asked to store an empty token.
	ErrEmptyToken = errors.New("empty token")

	// ErrEmptyUser is returned by Set when the token comes without a user.
	ErrEmptyUser = errors.New("empty user")
)

// Store is the process-wide token store. Only the session manager writes to
// it; everything else reads.
type Store struct {
	db *sql.DB
}

// New returns a Store over a database migrated with client.RunMigrations.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the stored token, or "" when no session is stored.
func (s *Store) Get(ctx context.Context) (string, error) {
	v, err := metadata.NewSQLiteRepository(s.db).Get(ctx, keyToken)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// User returns the cached user record, or nil when no session is stored.
func (s *Store) User(ctx context.Context) (*models.User, error) {
	v, err := metadata.NewSQLiteRepository(s.db).Get(ctx, keyUser)
	if err != nil {
		return nil, err
	}
	return decodeUser(v)
}

// Load reads token and user in a single transaction.
func (s *Store) Load(ctx context.Context) (token string, user *models.User, err error) {
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)

		t, err := repo.Get(ctx, keyToken)
		if err != nil {
			return err
		}
		u, err := repo.Get(ctx, keyUser)
		if err != nil {
			return err
		}

		token = string(t)
		user, err = decodeUser(u)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Set replaces the stored session with token and user.
func (s *Store) Set(ctx context.Context, token string, user *models.User) error {
	if token == "" {
		return ErrEmptyToken
	}
	if user == nil {
		return ErrEmptyUser
	}

	rawUser, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)

		if err := repo.Set(ctx, keyToken, []byte(token)); err != nil {
			return err
		}
		return repo.Set(ctx, keyUser, rawUser)
	})
}

// Clear removes token and user. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).Delete(ctx, keyToken, keyUser)
	})
}

func decodeUser(raw []byte) (*models.User, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("failed to decode cached user: %w", err)
	}
	return &u, nil
}
