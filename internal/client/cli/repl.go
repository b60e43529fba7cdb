package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Entry(ctx context.Context) error
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Status(ctx context.Context) error
	Me(ctx context.Context) error
	Get(ctx context.Context, path string) error
	println(args ...any)
}

// runREPL reads commands from reader until EOF, "exit" or "quit".
//
// Before every prompt the entry view gets a chance to render, so a pending
// redirect (for example from a protected command run without a session) is
// handled before the next command is read.
//
//	Not logged in:
//	  - help              show available commands
//	  - register          create an account
//	  - login             authenticate
//	  - status            show the session status
//	  - exit | quit       leave the program
//
//	Logged in:
//	  - help              show available commands
//	  - me                show the current account
//	  - get <path>        fetch an API resource
//	  - status            show the session status
//	  - logout            log out
//	  - exit | quit       leave the program
//
// Command errors are not printed here; handlers report their own failures.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		_ = a.Entry(ctx)

		a.println(fmt.Sprintf("goalie%s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				a.println("Available commands: me, get <path>, status, logout, exit")
			} else {
				a.println("Available commands: register, login, status, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "status":
			_ = a.Status(ctx)

		case "me":
			_ = a.Me(ctx)

		case "get":
			if len(args) == 0 {
				a.println("Usage: get <path>")
				continue
			}
			_ = a.Get(ctx, args[0])

		case "exit", "quit":
			a.println("Bye!")
			return

		default:
			a.println("Unknown command:", cmd)
		}
	}
}
