package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/goalie/internal/client/client"
	"github.com/dmitrijs2005/goalie/internal/client/guard"
	"github.com/dmitrijs2005/goalie/internal/client/models"
	"github.com/dmitrijs2005/goalie/internal/client/session"
	"github.com/dmitrijs2005/goalie/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a name, email and password and creates an account.
// It does not log the user in. Rejections are printed inline.
func (a *App) Register(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter name", a.out)
	if err != nil {
		return err
	}

	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	res, err := a.sessions.Register(ctx, models.Registration{Name: name, Email: email, Password: string(password)})
	if err != nil {
		a.println("Registration failed:", client.UserMessage(err))
		return err
	}

	msg := res.Message
	if msg == "" {
		msg = "Registration successful"
	}
	a.println(msg + ". You can log in now.")
	return nil
}

// Login prompts for credentials and opens a session. A rejected login is
// printed inline and leaves the session as it was.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	user, err := a.sessions.Login(ctx, models.Credentials{Email: email, Password: string(password)})
	if err != nil {
		if !errors.Is(err, session.ErrSuperseded) {
			a.println("Login failed:", client.UserMessage(err))
		}
		return err
	}

	a.router.Navigate(guard.EntryPath)
	a.println("Welcome, " + user.DisplayName() + "!")
	return nil
}

// Logout clears the stored session.
func (a *App) Logout(ctx context.Context) error {
	err := a.sessions.Logout(ctx)
	a.router.Navigate(guard.EntryPath)
	if err != nil {
		a.println("Logout failed:", err)
		return err
	}
	a.println("Logged out.")
	return nil
}

// reportError prints err for the view that received it. Session expiry is
// reported centrally and superseded results are stale, so both stay silent.
func (a *App) reportError(err error) {
	if errors.Is(err, client.ErrSessionExpired) || errors.Is(err, session.ErrSuperseded) {
		return
	}
	if errors.Is(err, client.ErrForeignPath) {
		a.println("Error:", err)
		return
	}
	a.println("Error:", client.UserMessage(err))
}
